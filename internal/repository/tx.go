package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
)

// TxRunner runs fn atomically: every write inside either commits as a whole or
// none does. Swap execution is the one caller.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type mongoTxRunner struct {
	client *mongo.Client
}

func NewTxRunner(client *mongo.Client) TxRunner {
	return &mongoTxRunner{client: client}
}

func (t *mongoTxRunner) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := t.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}
