package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/core/domain"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/core/port"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/repository"
)

const (
	defaultTicketPrefix = "ticket"

	fieldUserID    = "user_id"
	fieldIssuedAt  = "issued_at"
	fieldExpiresAt = "expires_at"
)

// TicketRepository keeps session ticket records in Redis hashes with a TTL
// matching the token lifetime. Deleting the hash revokes the token.
type TicketRepository struct {
	client *red.Client
	prefix string
}

// NewTicketRepository constructs a ticket repository with the provided
// Redis client and key prefix.
func NewTicketRepository(client *red.Client, keyPrefix string) *TicketRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultTicketPrefix
	}

	return &TicketRepository{client: client, prefix: prefix}
}

// Store persists the ticket under its ID with the supplied TTL.
func (r *TicketRepository) Store(ctx context.Context, ticket domain.LoginTicket, ttl time.Duration) error {
	if strings.TrimSpace(ticket.ID) == "" {
		return errors.New("ticket id is required")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	key := r.key(ticket.ID)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		fieldUserID:    strconv.FormatInt(ticket.UserID, 10),
		fieldIssuedAt:  strconv.FormatInt(ticket.IssuedAt.Unix(), 10),
		fieldExpiresAt: strconv.FormatInt(ticket.ExpiresAt.Unix(), 10),
	})
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store ticket: %w", err)
	}

	return nil
}

// Get retrieves the ticket for the provided ID.
func (r *TicketRepository) Get(ctx context.Context, id string) (*domain.LoginTicket, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("ticket id is required")
	}

	values, err := r.client.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall ticket: %w", err)
	}
	if len(values) == 0 {
		return nil, repository.ErrNotFound
	}

	userID, err := strconv.ParseInt(values[fieldUserID], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse ticket user_id: %w", err)
	}

	issuedAt, err := parseUnix(values[fieldIssuedAt])
	if err != nil {
		return nil, fmt.Errorf("parse ticket issued_at: %w", err)
	}

	expiresAt, err := parseUnix(values[fieldExpiresAt])
	if err != nil {
		return nil, fmt.Errorf("parse ticket expires_at: %w", err)
	}

	return &domain.LoginTicket{
		ID:        id,
		UserID:    userID,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Delete removes the ticket, revoking the associated token.
func (r *TicketRepository) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("ticket id is required")
	}

	deleted, err := r.client.Del(ctx, r.key(id)).Result()
	if err != nil {
		return fmt.Errorf("redis delete ticket: %w", err)
	}
	if deleted == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *TicketRepository) key(id string) string {
	return fmt.Sprintf("%s:%s", r.prefix, id)
}

func parseUnix(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(v, 0).UTC(), nil
}

var _ port.TicketStore = (*TicketRepository)(nil)
