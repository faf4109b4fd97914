package tasks

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"coursecontrol/internal/repository"
)

// Janitor runs the periodic cleanup jobs: expired unused invite codes are
// deleted so dead codes don't accumulate over a semester.
type Janitor struct {
	cron         *cron.Cron
	groupInvites repository.InviteRepo
	swapInvites  repository.InviteRepo
}

func NewJanitor(groupInvites, swapInvites repository.InviteRepo) *Janitor {
	return &Janitor{
		cron:         cron.New(),
		groupInvites: groupInvites,
		swapInvites:  swapInvites,
	}
}

// Start registers and launches the cron jobs.
func (j *Janitor) Start() error {
	_, err := j.cron.AddFunc("@every 15m", j.purgeInvites)
	if err != nil {
		return err
	}
	j.cron.Start()
	log.Println("janitor started")
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

func (j *Janitor) purgeInvites() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	now := time.Now().UnixMilli()

	for _, repo := range []repository.InviteRepo{j.groupInvites, j.swapInvites} {
		n, err := repo.PurgeExpired(ctx, now)
		if err != nil {
			log.Printf("janitor: invite purge failed: %v", err)
			continue
		}
		if n > 0 {
			log.Printf("janitor: purged %d expired invites", n)
		}
	}
}
