package model

type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
	RoleAdmin   Role = "admin"
)

type User struct {
	ID           string `json:"id" bson:"_id"`
	Name         string `json:"name" bson:"name"`
	Email        string `json:"email" bson:"email"`
	Role         Role   `json:"role" bson:"role"`
	PasswordHash string `json:"-" bson:"passwordHash"`
}

// Identity is the trusted caller identity passed to actors. Credential
// enforcement happens at the boundary before dispatch.
type Identity struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}
