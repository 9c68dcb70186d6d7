package usecase

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/core/domain"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/core/port"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/infra/security"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/repository"
)

const defaultQrTTL = 5 * time.Minute

var (
	// ErrQrNotFound indicates the token does not match any session.
	ErrQrNotFound = errors.New("qr session not found")
	// ErrQrExpired indicates the session's TTL elapsed; the viewer must start over.
	ErrQrExpired = errors.New("qr session expired")
	// ErrQrAlreadyScanned indicates a scan was attempted on a session past UNSCANNED.
	ErrQrAlreadyScanned = errors.New("qr session already scanned")
	// ErrQrNotScanned indicates a confirm was attempted before any scan.
	ErrQrNotScanned = errors.New("qr session not yet scanned")
	// ErrQrAlreadyConfirmed indicates the session was already consumed by a confirm.
	ErrQrAlreadyConfirmed = errors.New("qr session already confirmed")
	// ErrQrNoRole indicates a role-bind confirm on a session created without a role.
	ErrQrNoRole = errors.New("qr session carries no role to bind")
)

// RoleBinder performs the role-binding side effect of a confirm. Satisfied
// by RoleService.
type RoleBinder interface {
	BindRole(ctx context.Context, userID int64, roleCode string, area domain.AreaScope) (*domain.Role, error)
}

// QrLoginConfig tunes the handshake coordinator.
type QrLoginConfig struct {
	TTL           time.Duration
	ContentScheme string
}

// CreateQrInput carries the optional authorization context attached at
// session creation. Empty fields are treated as absent.
type CreateQrInput struct {
	Role     string
	Province string
	City     string
	District string
	Street   string
}

// CreateQrResult is returned to the viewer that will render and poll.
type CreateQrResult struct {
	Token     string
	Content   string
	Image     string
	ExpiresAt time.Time
}

// ConfirmResult reports whether confirming also bound a role.
type ConfirmResult struct {
	RoleBound bool
	RoleCode  *string
}

// QrLoginService coordinates the QR cross-device login handshake: it is the
// sole mutator of LoginSession state and owns the UNSCANNED -> SCANNED ->
// CONFIRMED machine, treating expiry as terminal on every operation.
type QrLoginService struct {
	sessions port.LoginSessionRepository
	users    port.UserRepository
	binder   RoleBinder
	renderer port.CodeRenderer
	events   port.EventPublisher
	tx       port.TxManager
	logger   *zap.Logger
	cfg      QrLoginConfig
	now      func() time.Time
}

// NewQrLoginService constructs the handshake coordinator.
func NewQrLoginService(
	sessions port.LoginSessionRepository,
	users port.UserRepository,
	binder RoleBinder,
	renderer port.CodeRenderer,
	events port.EventPublisher,
	tx port.TxManager,
	cfg QrLoginConfig,
	logger *zap.Logger,
) *QrLoginService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultQrTTL
	}
	if cfg.ContentScheme == "" {
		cfg.ContentScheme = "brewingmachine"
	}
	return &QrLoginService{
		sessions: sessions,
		users:    users,
		binder:   binder,
		renderer: renderer,
		events:   events,
		tx:       tx,
		logger:   logger,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *QrLoginService) WithClock(clock func() time.Time) *QrLoginService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Create inserts a fresh UNSCANNED session and returns the token plus the
// content the viewer renders as a QR code. A rendering failure does not fail
// creation: the token and content are still returned with an empty image.
func (s *QrLoginService) Create(ctx context.Context, input CreateQrInput) (CreateQrResult, error) {
	var result CreateQrResult

	token, err := security.GenerateSecureToken(32)
	if err != nil {
		return result, fmt.Errorf("generate qr token: %w", err)
	}

	now := s.now()
	session := domain.LoginSession{
		Token:     token,
		Status:    domain.LoginStatusUnscanned,
		RoleCode:  optional(input.Role),
		Area: domain.AreaScope{
			Province: optional(input.Province),
			City:     optional(input.City),
			District: optional(input.District),
			Street:   optional(input.Street),
		},
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return result, fmt.Errorf("create qr session: %w", err)
	}

	result.Token = token
	result.Content = s.content(token, session.RoleCode)
	result.ExpiresAt = session.ExpiresAt

	if s.renderer != nil {
		png, err := s.renderer.RenderPNG(result.Content)
		if err != nil {
			s.logger.Warn("qr image rendering failed",
				zap.String("token", security.MaskToken(token)),
				zap.Error(err),
			)
		} else {
			result.Image = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
		}
	}

	s.publishCreated(ctx, session)

	s.logger.Info("qr session created",
		zap.String("token", security.MaskToken(token)),
		zap.Stringp("role", session.RoleCode),
		zap.Time("expires_at", session.ExpiresAt),
	)

	return result, nil
}

// Query returns the poller-facing snapshot for a token. It never mutates
// state and reports EXPIRED for any session past its TTL regardless of the
// stored status.
func (s *QrLoginService) Query(ctx context.Context, token string) (domain.SessionView, error) {
	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.SessionView{State: domain.SessionNotFound}, nil
		}
		return domain.SessionView{}, fmt.Errorf("load qr session: %w", err)
	}

	return domain.ViewOf(session, s.now()), nil
}

// Scan transitions UNSCANNED -> SCANNED. Under concurrent scans exactly one
// caller succeeds; the rest observe ErrQrAlreadyScanned.
func (s *QrLoginService) Scan(ctx context.Context, token string) error {
	session, err := s.load(ctx, token)
	if err != nil {
		return err
	}
	if session.Status != domain.LoginStatusUnscanned {
		return ErrQrAlreadyScanned
	}

	now := s.now()
	if err := s.sessions.MarkScanned(ctx, token, now); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ErrQrAlreadyScanned
		}
		return fmt.Errorf("mark qr session scanned: %w", err)
	}

	s.publishScanned(ctx, token, now)

	s.logger.Info("qr session scanned", zap.String("token", security.MaskToken(token)))
	return nil
}

// Confirm transitions SCANNED -> CONFIRMED, binding the confirming identity
// as the login result. When the session carries a role, the binding and the
// state transition execute in one transaction: a binding rejection leaves
// the session in SCANNED, and a lost transition race undoes the binding.
func (s *QrLoginService) Confirm(ctx context.Context, token string, userID int64, userInfo map[string]any) (ConfirmResult, error) {
	var result ConfirmResult

	session, err := s.loadForConfirm(ctx, token)
	if err != nil {
		return result, err
	}

	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return result, ErrUserNotFound
		}
		return result, fmt.Errorf("load confirming user: %w", err)
	}

	infoJSON, err := marshalUserInfo(userInfo)
	if err != nil {
		return result, err
	}

	now := s.now()
	confirm := func(ctx context.Context) error {
		if session.RequiresRoleBind() {
			if _, err := s.binder.BindRole(ctx, userID, *session.RoleCode, session.Area); err != nil {
				return err
			}
		}
		return s.sessions.ConfirmLogin(ctx, token, userID, infoJSON, now)
	}

	if session.RequiresRoleBind() && s.tx != nil {
		err = s.tx.WithinTx(ctx, confirm)
	} else {
		err = confirm(ctx)
	}
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return result, ErrQrAlreadyConfirmed
		}
		if errors.Is(err, ErrRoleAlreadyBound) || errors.Is(err, ErrRoleNotFound) || errors.Is(err, ErrUserNotFound) {
			return result, err
		}
		return result, fmt.Errorf("confirm qr login: %w", err)
	}

	result.RoleBound = session.RequiresRoleBind()
	result.RoleCode = session.RoleCode

	s.publishConfirmed(ctx, token, userID, result, now)

	s.logger.Info("qr login confirmed",
		zap.String("token", security.MaskToken(token)),
		zap.Int64("user_id", userID),
		zap.Bool("role_bound", result.RoleBound),
	)

	return result, nil
}

// ConfirmRoleBind consumes a SCANNED session purely to bind its role to the
// supplied identity: the session advances to CONFIRMED but records no login
// result. Sessions created without a role cannot be consumed this way.
func (s *QrLoginService) ConfirmRoleBind(ctx context.Context, token string, userID int64) (ConfirmResult, error) {
	var result ConfirmResult

	session, err := s.loadForConfirm(ctx, token)
	if err != nil {
		return result, err
	}
	if !session.RequiresRoleBind() {
		return result, ErrQrNoRole
	}

	now := s.now()
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.binder.BindRole(ctx, userID, *session.RoleCode, session.Area); err != nil {
			return err
		}
		return s.sessions.MarkConfirmed(ctx, token, now)
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return result, ErrQrAlreadyConfirmed
		}
		if errors.Is(err, ErrRoleAlreadyBound) || errors.Is(err, ErrRoleNotFound) || errors.Is(err, ErrUserNotFound) {
			return result, err
		}
		return result, fmt.Errorf("confirm qr role bind: %w", err)
	}

	result.RoleBound = true
	result.RoleCode = session.RoleCode

	s.logger.Info("qr role bind confirmed",
		zap.String("token", security.MaskToken(token)),
		zap.Int64("user_id", userID),
		zap.Stringp("role", session.RoleCode),
	)

	return result, nil
}

// Reap deletes sessions whose TTL elapsed. Housekeeping only: Query already
// treats expired sessions as terminal, so a missed cycle costs storage, not
// correctness.
func (s *QrLoginService) Reap(ctx context.Context) (int64, error) {
	removed, err := s.sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("reap expired qr sessions: %w", err)
	}
	if removed > 0 {
		s.logger.Info("reaped expired qr sessions", zap.Int64("removed", removed))
	}
	return removed, nil
}

// RunReaper periodically invokes Reap until the context is cancelled.
func (s *QrLoginService) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Reap(ctx); err != nil {
				s.logger.Warn("reaper cycle failed", zap.Error(err))
			}
		}
	}
}

func (s *QrLoginService) load(ctx context.Context, token string) (*domain.LoginSession, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrQrNotFound
	}

	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrQrNotFound
		}
		return nil, fmt.Errorf("load qr session: %w", err)
	}
	if session.Expired(s.now()) {
		return nil, ErrQrExpired
	}

	return session, nil
}

func (s *QrLoginService) loadForConfirm(ctx context.Context, token string) (*domain.LoginSession, error) {
	session, err := s.load(ctx, token)
	if err != nil {
		return nil, err
	}
	switch session.Status {
	case domain.LoginStatusUnscanned:
		return nil, ErrQrNotScanned
	case domain.LoginStatusConfirmed:
		return nil, ErrQrAlreadyConfirmed
	}
	return session, nil
}

func (s *QrLoginService) content(token string, role *string) string {
	values := url.Values{}
	values.Set("token", token)
	if role != nil {
		values.Set("role", *role)
	}
	return fmt.Sprintf("%s://login?%s", s.cfg.ContentScheme, values.Encode())
}

func (s *QrLoginService) publishCreated(ctx context.Context, session domain.LoginSession) {
	if s.events == nil {
		return
	}
	event := domain.QrLoginCreatedEvent{
		EventID:   uuid.NewString(),
		Token:     security.HashToken(session.Token),
		RoleCode:  session.RoleCode,
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
	}
	if err := s.events.PublishQrLoginCreated(ctx, event); err != nil {
		s.logger.Warn("publish qr created event failed", zap.Error(err))
	}
}

func (s *QrLoginService) publishScanned(ctx context.Context, token string, at time.Time) {
	if s.events == nil {
		return
	}
	event := domain.QrLoginScannedEvent{
		EventID:   uuid.NewString(),
		Token:     security.HashToken(token),
		ScannedAt: at,
	}
	if err := s.events.PublishQrLoginScanned(ctx, event); err != nil {
		s.logger.Warn("publish qr scanned event failed", zap.Error(err))
	}
}

func (s *QrLoginService) publishConfirmed(ctx context.Context, token string, userID int64, result ConfirmResult, at time.Time) {
	if s.events == nil {
		return
	}
	event := domain.QrLoginConfirmedEvent{
		EventID:     uuid.NewString(),
		Token:       security.HashToken(token),
		UserID:      userID,
		RoleBound:   result.RoleBound,
		RoleCode:    result.RoleCode,
		ConfirmedAt: at,
	}
	if err := s.events.PublishQrLoginConfirmed(ctx, event); err != nil {
		s.logger.Warn("publish qr confirmed event failed", zap.Error(err))
	}
}

func marshalUserInfo(userInfo map[string]any) ([]byte, error) {
	if userInfo == nil {
		return []byte("{}"), nil
	}
	payload, err := json.Marshal(userInfo)
	if err != nil {
		return nil, fmt.Errorf("marshal user info: %w", err)
	}
	return payload, nil
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
