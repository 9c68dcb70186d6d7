package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/core/domain"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishQrLoginCreated logs qr.login.created events.
func (p *StubPublisher) PublishQrLoginCreated(_ context.Context, event domain.QrLoginCreatedEvent) error {
	payload := map[string]any{
		"token":      event.Token,
		"role_code":  event.RoleCode,
		"created_at": event.CreatedAt,
		"expires_at": event.ExpiresAt,
		"metadata":   event.Metadata,
	}
	p.logEvent("qr.login.created", event.CreatedAt, payload)
	return nil
}

// PublishQrLoginScanned logs qr.login.scanned events.
func (p *StubPublisher) PublishQrLoginScanned(_ context.Context, event domain.QrLoginScannedEvent) error {
	payload := map[string]any{
		"token":      event.Token,
		"scanned_at": event.ScannedAt,
		"metadata":   event.Metadata,
	}
	p.logEvent("qr.login.scanned", event.ScannedAt, payload)
	return nil
}

// PublishQrLoginConfirmed logs qr.login.confirmed events.
func (p *StubPublisher) PublishQrLoginConfirmed(_ context.Context, event domain.QrLoginConfirmedEvent) error {
	payload := map[string]any{
		"token":        event.Token,
		"user_id":      event.UserID,
		"role_bound":   event.RoleBound,
		"role_code":    event.RoleCode,
		"confirmed_at": event.ConfirmedAt,
		"metadata":     event.Metadata,
	}
	p.logEvent("qr.login.confirmed", event.ConfirmedAt, payload)
	return nil
}

// PublishRoleBound logs qr.role.bound events.
func (p *StubPublisher) PublishRoleBound(_ context.Context, event domain.RoleBoundEvent) error {
	payload := map[string]any{
		"user_id":   event.UserID,
		"role_code": event.RoleCode,
		"area":      event.Area,
		"bound_at":  event.BoundAt,
		"metadata":  event.Metadata,
	}
	p.logEvent("qr.role.bound", event.BoundAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
