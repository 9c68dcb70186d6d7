package domain

import "time"

// LoginTicket is the revocable record kept alongside an issued session JWT.
// The ticket lives in a TTL store keyed by its ID (the JWT's jti claim);
// deleting the ticket revokes the token before its natural expiry.
type LoginTicket struct {
	ID        string
	UserID    int64
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the ticket's validity window has passed.
func (t LoginTicket) Expired(at time.Time) bool {
	return !t.ExpiresAt.After(at)
}
