package domain

import "time"

// Role describes an authorization role users can be bound to through a QR
// session. Exclusive roles (e.g. agent) may be held at most once per user.
type Role struct {
	ID          int64
	Code        string
	Name        string
	Description *string
	Exclusive   bool
	CreatedAt   time.Time
}

// UserRole records a role bound to a user, together with the area scope
// captured from the QR session that performed the binding.
type UserRole struct {
	ID         int64
	UserID     int64
	RoleID     int64
	Area       AreaScope
	AssignedAt time.Time
}

// User is the minimal identity view this service needs: role binding only
// has to know the user exists.
type User struct {
	ID        int64
	Username  string
	CreatedAt time.Time
}
