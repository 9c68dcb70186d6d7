package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/core/domain"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/core/port"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type areaPayload struct {
	Province *string `json:"province,omitempty"`
	City     *string `json:"city,omitempty"`
	District *string `json:"district,omitempty"`
	Street   *string `json:"street,omitempty"`
}

func areaPayloadFrom(area domain.AreaScope) *areaPayload {
	if area.Empty() {
		return nil
	}
	return &areaPayload{
		Province: area.Province,
		City:     area.City,
		District: area.District,
		Street:   area.Street,
	}
}

// PublishQrLoginCreated publishes qr.login.created events.
func (p *EventPublisher) PublishQrLoginCreated(ctx context.Context, event domain.QrLoginCreatedEvent) error {
	payload := struct {
		Token     string         `json:"token"`
		RoleCode  *string        `json:"role_code,omitempty"`
		CreatedAt time.Time      `json:"created_at"`
		ExpiresAt time.Time      `json:"expires_at"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		Token:     event.Token,
		RoleCode:  event.RoleCode,
		CreatedAt: event.CreatedAt.UTC(),
		ExpiresAt: event.ExpiresAt.UTC(),
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, "qr.login.created", "", event.CreatedAt, payload)
}

// PublishQrLoginScanned publishes qr.login.scanned events.
func (p *EventPublisher) PublishQrLoginScanned(ctx context.Context, event domain.QrLoginScannedEvent) error {
	payload := struct {
		Token     string         `json:"token"`
		ScannedAt time.Time      `json:"scanned_at"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		Token:     event.Token,
		ScannedAt: event.ScannedAt.UTC(),
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, "qr.login.scanned", "", event.ScannedAt, payload)
}

// PublishQrLoginConfirmed publishes qr.login.confirmed events.
func (p *EventPublisher) PublishQrLoginConfirmed(ctx context.Context, event domain.QrLoginConfirmedEvent) error {
	payload := struct {
		Token       string         `json:"token"`
		UserID      int64          `json:"user_id"`
		RoleBound   bool           `json:"role_bound"`
		RoleCode    *string        `json:"role_code,omitempty"`
		ConfirmedAt time.Time      `json:"confirmed_at"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}{
		Token:       event.Token,
		UserID:      event.UserID,
		RoleBound:   event.RoleBound,
		RoleCode:    event.RoleCode,
		ConfirmedAt: event.ConfirmedAt.UTC(),
		Metadata:    event.Metadata,
	}

	return p.publish(ctx, event.EventID, "qr.login.confirmed", fmt.Sprintf("%d", event.UserID), event.ConfirmedAt, payload)
}

// PublishRoleBound publishes qr.role.bound events.
func (p *EventPublisher) PublishRoleBound(ctx context.Context, event domain.RoleBoundEvent) error {
	payload := struct {
		UserID   int64          `json:"user_id"`
		RoleCode string         `json:"role_code"`
		Area     *areaPayload   `json:"area,omitempty"`
		BoundAt  time.Time      `json:"bound_at"`
		Metadata map[string]any `json:"metadata,omitempty"`
	}{
		UserID:   event.UserID,
		RoleCode: event.RoleCode,
		Area:     areaPayloadFrom(event.Area),
		BoundAt:  event.BoundAt.UTC(),
		Metadata: event.Metadata,
	}

	return p.publish(ctx, event.EventID, "qr.role.bound", fmt.Sprintf("%d", event.UserID), event.BoundAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
