package domain

import "time"

// LoginStatus enumerates the stored states of a QR login session.
type LoginStatus int

const (
	// LoginStatusUnscanned marks a freshly created session awaiting the first scan.
	LoginStatusUnscanned LoginStatus = 0
	// LoginStatusScanned marks a session scanned by a mobile client but not yet approved.
	LoginStatusScanned LoginStatus = 1
	// LoginStatusConfirmed marks a session the mobile client approved. Terminal.
	LoginStatusConfirmed LoginStatus = 2
)

// Wire-level status codes reported to pollers. Expired and NotFound are
// derived at read time and never stored.
const (
	StatusCodeUnscanned = 0
	StatusCodeScanned   = 1
	StatusCodeConfirmed = 2
	StatusCodeExpired   = 3
	StatusCodeNotFound  = -1
)

// AreaScope is the hierarchical location descriptor optionally attached to
// a login session and recorded on the resulting role binding.
type AreaScope struct {
	Province *string
	City     *string
	District *string
	Street   *string
}

// Empty reports whether no level of the hierarchy is set.
func (a AreaScope) Empty() bool {
	return a.Province == nil && a.City == nil && a.District == nil && a.Street == nil
}

// LoginSession is the durable record of one outstanding QR login attempt.
// The token is the only lookup key and never changes after creation.
type LoginSession struct {
	Token       string
	Status      LoginStatus
	RoleCode    *string
	Area        AreaScope
	UserID      *int64
	UserInfo    []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
	ScannedAt   *time.Time
	ConfirmedAt *time.Time
}

// Expired reports whether the session's validity window has passed at the
// supplied moment. The stored status is irrelevant: an expired session is
// dead no matter what state it reached.
func (s LoginSession) Expired(at time.Time) bool {
	return !s.ExpiresAt.After(at)
}

// RequiresRoleBind reports whether confirming this session must also bind
// a role to the confirming identity.
func (s LoginSession) RequiresRoleBind() bool {
	return s.RoleCode != nil && *s.RoleCode != ""
}

// SessionState tags the arms of a SessionView.
type SessionState int

const (
	// SessionNotFound means the token does not correspond to any session.
	SessionNotFound SessionState = iota
	// SessionExpired means the session exists but its TTL has elapsed.
	SessionExpired
	// SessionUnscanned means the session is live and awaiting a scan.
	SessionUnscanned
	// SessionScanned means the session was scanned and awaits approval.
	SessionScanned
	// SessionConfirmed means the login was approved; UserID and UserInfo are set.
	SessionConfirmed
)

// SessionView is the poller-facing snapshot of a session. Only the
// Confirmed arm carries the bound identity, so callers can never observe
// a confirmed state without its payload.
type SessionView struct {
	State    SessionState
	UserID   *int64
	UserInfo []byte
}

// StatusCode maps the view onto the discrete wire code polled by viewers.
func (v SessionView) StatusCode() int {
	switch v.State {
	case SessionUnscanned:
		return StatusCodeUnscanned
	case SessionScanned:
		return StatusCodeScanned
	case SessionConfirmed:
		return StatusCodeConfirmed
	case SessionExpired:
		return StatusCodeExpired
	default:
		return StatusCodeNotFound
	}
}

// ViewOf derives the poller-facing snapshot for a session at the supplied moment.
func ViewOf(s *LoginSession, at time.Time) SessionView {
	if s == nil {
		return SessionView{State: SessionNotFound}
	}
	if s.Expired(at) {
		return SessionView{State: SessionExpired}
	}
	switch s.Status {
	case LoginStatusScanned:
		return SessionView{State: SessionScanned}
	case LoginStatusConfirmed:
		return SessionView{State: SessionConfirmed, UserID: s.UserID, UserInfo: s.UserInfo}
	default:
		return SessionView{State: SessionUnscanned}
	}
}
