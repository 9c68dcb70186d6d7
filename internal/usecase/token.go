package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/core/domain"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/core/port"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/infra/security"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/repository"
)

var (
	// ErrTokenInvalid indicates the presented session token failed verification.
	ErrTokenInvalid = errors.New("session token invalid")
	// ErrTokenRevoked indicates the token's ticket was deleted or never existed.
	ErrTokenRevoked = errors.New("session token revoked")
)

// IssuedToken is the application session handed to a viewer after it
// observes a CONFIRMED QR session.
type IssuedToken struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
}

// TokenService issues and validates application session tokens: a signed
// JWT paired with a revocable ticket in a TTL store. Consuming the QR
// handshake's CONFIRMED outcome is the caller's job; this service only
// turns a user ID into a session.
type TokenService struct {
	signer  *security.JWTManager
	tickets port.TicketStore
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewTokenService constructs a TokenService.
func NewTokenService(signer *security.JWTManager, tickets port.TicketStore, ttl time.Duration, logger *zap.Logger) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{
		signer:  signer,
		tickets: tickets,
		ttl:     ttl,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *TokenService) WithClock(clock func() time.Time) *TokenService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Issue creates a signed session token for the user and stores its ticket.
func (s *TokenService) Issue(ctx context.Context, userID int64) (IssuedToken, error) {
	var issued IssuedToken

	now := s.now()
	ticket := domain.LoginTicket{
		ID:        uuid.NewString(),
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}

	raw, err := s.signer.Sign(userID, ticket.ID, now, ticket.ExpiresAt)
	if err != nil {
		return issued, fmt.Errorf("sign session token: %w", err)
	}

	if err := s.tickets.Store(ctx, ticket, s.ttl); err != nil {
		return issued, fmt.Errorf("store session ticket: %w", err)
	}

	s.logger.Info("session token issued",
		zap.Int64("user_id", userID),
		zap.Time("expires_at", ticket.ExpiresAt),
	)

	return IssuedToken{Token: raw, UserID: userID, ExpiresAt: ticket.ExpiresAt}, nil
}

// Validate verifies the signature and the ticket's continued existence,
// returning the authenticated user ID.
func (s *TokenService) Validate(ctx context.Context, raw string) (int64, error) {
	claims, err := s.signer.Parse(raw)
	if err != nil {
		return 0, ErrTokenInvalid
	}

	ticket, err := s.tickets.Get(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrTokenRevoked
		}
		return 0, fmt.Errorf("load session ticket: %w", err)
	}
	if ticket.Expired(s.now()) {
		return 0, ErrTokenRevoked
	}

	return claims.UserID, nil
}

// Revoke deletes the token's ticket so later validations fail.
func (s *TokenService) Revoke(ctx context.Context, raw string) error {
	claims, err := s.signer.Parse(raw)
	if err != nil {
		return ErrTokenInvalid
	}

	if err := s.tickets.Delete(ctx, claims.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("delete session ticket: %w", err)
	}

	s.logger.Info("session token revoked", zap.Int64("user_id", claims.UserID))
	return nil
}
