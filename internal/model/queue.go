package model

import "encoding/json"

type QueueStatus string

const (
	QueueQueued    QueueStatus = "queued"
	QueueRunning   QueueStatus = "running"
	QueueOK        QueueStatus = "ok"
	QueueError     QueueStatus = "error"
	QueueCancelled QueueStatus = "cancelled"
)

type ActionName string

const (
	ActionTake   ActionName = "take"
	ActionDrop   ActionName = "drop"
	ActionChange ActionName = "change"

	ActionGroupCreate  ActionName = "group_create"
	ActionGroupInvite  ActionName = "group_invite"
	ActionGroupJoin    ActionName = "group_join"
	ActionGroupLeave   ActionName = "group_leave"
	ActionGroupDisband ActionName = "group_disband"
	ActionGroupTake    ActionName = "group_take"
	ActionGroupDrop    ActionName = "group_drop"
	ActionGroupChange  ActionName = "group_change"

	ActionSwapCreate ActionName = "swap_create"
	ActionSwapInvite ActionName = "swap_invite"
	ActionSwapJoin   ActionName = "swap_join"
	ActionSwapExec   ActionName = "swap_exec"

	ActionCancel    ActionName = "cancel"
	ActionCancelAll ActionName = "cancel_all"
	ActionMessage   ActionName = "message"
	ActionStatus    ActionName = "status"
)

// QueueError is the terminal error recorded on a failed item.
type QueueItemError struct {
	Code    string `json:"code" bson:"code"`
	Message string `json:"message" bson:"message"`
}

// QueueItem is one entry of a student's append-only action log. The terminal
// status is set exactly once; items are never deleted.
type QueueItem struct {
	ID            string          `json:"id" bson:"_id"`
	StudentUserID string          `json:"-" bson:"studentUserId"`
	Action        ActionName      `json:"action" bson:"action"`
	Status        QueueStatus     `json:"status" bson:"status"`
	CreatedAtMs   int64           `json:"createdAtMs" bson:"createdAtMs"`
	StartedAtMs   int64           `json:"startedAtMs,omitempty" bson:"startedAtMs,omitempty"`
	FinishedAtMs  int64           `json:"finishedAtMs,omitempty" bson:"finishedAtMs,omitempty"`
	Error         *QueueItemError `json:"error,omitempty" bson:"error,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty" bson:"payload,omitempty"`
}
