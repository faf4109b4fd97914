package push

// Broadcaster delivers server-initiated messages to connected clients.
// The websocket hub implements it; actors and services only see this.
type Broadcaster interface {
	// SendToUser pushes a payload to every live connection of a user.
	// Disconnected users are silently skipped.
	SendToUser(userID string, payload interface{})
	// SendToRole pushes a payload to every connected user holding a role.
	SendToRole(role string, payload interface{})
}

// Nop discards everything. Useful in tests and for actors created before
// the hub is wired.
type Nop struct{}

func (Nop) SendToUser(string, interface{}) {}
func (Nop) SendToRole(string, interface{}) {}
