package model

type Notification struct {
	ID              string `json:"id" bson:"_id,omitempty"`
	CreatedByUserID string `json:"createdByUserId" bson:"createdByUserId"` // "system" allowed
	AudienceRole    Role   `json:"audienceRole,omitempty" bson:"audienceRole,omitempty"`
	AudienceUserID  string `json:"audienceUserId,omitempty" bson:"audienceUserId,omitempty"`
	Title           string `json:"title" bson:"title"`
	Body            string `json:"body" bson:"body"`
	CreatedAtMs     int64  `json:"createdAtMs" bson:"createdAtMs"`
}
