package model

type Group struct {
	ID           string `json:"id" bson:"_id"`
	SubjectID    int    `json:"subjectId" bson:"subjectId"`
	LeaderUserID string `json:"leaderUserId" bson:"leaderUserId"`
	IsLocked     bool   `json:"isLocked" bson:"isLocked"`
	CreatedAtMs  int64  `json:"createdAtMs" bson:"createdAtMs"`
}

type GroupMember struct {
	GroupID       string `json:"groupId" bson:"groupId"`
	StudentUserID string `json:"studentUserId" bson:"studentUserId"`
	JoinedAtMs    int64  `json:"joinedAtMs" bson:"joinedAtMs"`
}

// Invite is a single-use, optionally time-limited code bound to one group or
// swap. Code is the primary key.
type Invite struct {
	Code         string `json:"code" bson:"_id"`
	TargetID     string `json:"targetId" bson:"targetId"` // group or swap id
	CreatedAtMs  int64  `json:"createdAtMs" bson:"createdAtMs"`
	ExpiresAtMs  int64  `json:"expiresAtMs,omitempty" bson:"expiresAtMs,omitempty"` // 0 = no expiry
	UsedByUserID string `json:"usedByUserId,omitempty" bson:"usedByUserId,omitempty"`
	UsedAtMs     int64  `json:"usedAtMs,omitempty" bson:"usedAtMs,omitempty"`
}

// Used reports whether the invite was already redeemed.
func (i *Invite) Used() bool { return i.UsedByUserID != "" }

// Expired reports whether the invite is past its expiry at nowMs.
func (i *Invite) Expired(nowMs int64) bool { return i.ExpiresAtMs != 0 && nowMs > i.ExpiresAtMs }
