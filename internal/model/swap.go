package model

type SwapStatus string

const (
	SwapOpen     SwapStatus = "open"
	SwapLocked   SwapStatus = "locked"
	SwapExecuted SwapStatus = "executed"
)

type Swap struct {
	ID           string     `json:"id" bson:"_id"`
	LeaderUserID string     `json:"leaderUserId" bson:"leaderUserId"`
	Status       SwapStatus `json:"status" bson:"status"`
	CreatedAtMs  int64      `json:"createdAtMs" bson:"createdAtMs"`
	ExecutedAtMs int64      `json:"executedAtMs,omitempty" bson:"executedAtMs,omitempty"`
}

type SwapParticipant struct {
	SwapID        string `json:"swapId" bson:"swapId"`
	UserID        string `json:"userId" bson:"userId"`
	GiveSectionID int    `json:"giveSectionId" bson:"giveSectionId"`
	WantSectionID int    `json:"wantSectionId" bson:"wantSectionId"`
	CreatedAtMs   int64  `json:"createdAtMs" bson:"createdAtMs"`
}
