package port

import (
	"context"

	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/core/domain"
)

// EventPublisher emits QR login lifecycle events. Publishing is best-effort:
// callers log failures but never fail the handshake on them.
type EventPublisher interface {
	PublishQrLoginCreated(ctx context.Context, event domain.QrLoginCreatedEvent) error
	PublishQrLoginScanned(ctx context.Context, event domain.QrLoginScannedEvent) error
	PublishQrLoginConfirmed(ctx context.Context, event domain.QrLoginConfirmedEvent) error
	PublishRoleBound(ctx context.Context, event domain.RoleBoundEvent) error
}
