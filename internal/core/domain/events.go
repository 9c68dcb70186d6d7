package domain

import "time"

// QrLoginCreatedEvent represents the payload for qr.login.created messages.
type QrLoginCreatedEvent struct {
	EventID   string
	Token     string
	RoleCode  *string
	CreatedAt time.Time
	ExpiresAt time.Time
	Metadata  map[string]any
}

// QrLoginScannedEvent represents the payload for qr.login.scanned messages.
type QrLoginScannedEvent struct {
	EventID   string
	Token     string
	ScannedAt time.Time
	Metadata  map[string]any
}

// QrLoginConfirmedEvent represents the payload for qr.login.confirmed messages.
type QrLoginConfirmedEvent struct {
	EventID     string
	Token       string
	UserID      int64
	RoleBound   bool
	RoleCode    *string
	ConfirmedAt time.Time
	Metadata    map[string]any
}

// RoleBoundEvent represents the payload for qr.role.bound messages.
type RoleBoundEvent struct {
	EventID  string
	UserID   int64
	RoleCode string
	Area     AreaScope
	BoundAt  time.Time
	Metadata map[string]any
}
