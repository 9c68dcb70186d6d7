package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/core/domain"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/infra/config"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/infra/security"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/repository"
	httproutes "github.com/LuoXianShengChangetheWorld/brewingMachine/internal/transport/http/routes"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/usecase"
)

type sessionStore struct {
	sessions map[string]*domain.LoginSession
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*domain.LoginSession)}
}

func (s *sessionStore) Create(_ context.Context, session domain.LoginSession) error {
	copy := session
	s.sessions[session.Token] = &copy
	return nil
}

func (s *sessionStore) GetByToken(_ context.Context, token string) (*domain.LoginSession, error) {
	session, ok := s.sessions[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *session
	return &copy, nil
}

func (s *sessionStore) MarkScanned(_ context.Context, token string, at time.Time) error {
	session, ok := s.sessions[token]
	if !ok {
		return repository.ErrNotFound
	}
	if session.Status != domain.LoginStatusUnscanned || !session.ExpiresAt.After(at) {
		return repository.ErrConflict
	}
	session.Status = domain.LoginStatusScanned
	session.ScannedAt = &at
	return nil
}

func (s *sessionStore) ConfirmLogin(_ context.Context, token string, userID int64, userInfo []byte, at time.Time) error {
	session, ok := s.sessions[token]
	if !ok {
		return repository.ErrNotFound
	}
	if session.Status != domain.LoginStatusScanned || !session.ExpiresAt.After(at) {
		return repository.ErrConflict
	}
	session.Status = domain.LoginStatusConfirmed
	session.UserID = &userID
	session.UserInfo = userInfo
	session.ConfirmedAt = &at
	return nil
}

func (s *sessionStore) MarkConfirmed(_ context.Context, token string, at time.Time) error {
	session, ok := s.sessions[token]
	if !ok {
		return repository.ErrNotFound
	}
	if session.Status != domain.LoginStatusScanned || !session.ExpiresAt.After(at) {
		return repository.ErrConflict
	}
	session.Status = domain.LoginStatusConfirmed
	session.ConfirmedAt = &at
	return nil
}

func (s *sessionStore) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	for token, session := range s.sessions {
		if !session.ExpiresAt.After(cutoff) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed, nil
}

type userStore struct {
	users map[int64]domain.User
}

func (s *userStore) GetByID(_ context.Context, userID int64) (*domain.User, error) {
	user, ok := s.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := user
	return &copy, nil
}

type roleStore struct {
	roles    []domain.Role
	bindings map[int64][]int64
}

func (s *roleStore) List(context.Context) ([]domain.Role, error) {
	return s.roles, nil
}

func (s *roleStore) GetByCode(_ context.Context, code string) (*domain.Role, error) {
	for _, role := range s.roles {
		if role.Code == code {
			copy := role
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *roleStore) ListByUser(_ context.Context, userID int64) ([]domain.Role, error) {
	var held []domain.Role
	for _, roleID := range s.bindings[userID] {
		for _, role := range s.roles {
			if role.ID == roleID {
				held = append(held, role)
			}
		}
	}
	return held, nil
}

func (s *roleStore) BindToUser(_ context.Context, binding domain.UserRole) error {
	for _, roleID := range s.bindings[binding.UserID] {
		if roleID == binding.RoleID {
			return repository.ErrConflict
		}
	}
	s.bindings[binding.UserID] = append(s.bindings[binding.UserID], binding.RoleID)
	return nil
}

type ticketStore struct {
	tickets map[string]domain.LoginTicket
}

func (s *ticketStore) Store(_ context.Context, ticket domain.LoginTicket, _ time.Duration) error {
	s.tickets[ticket.ID] = ticket
	return nil
}

func (s *ticketStore) Get(_ context.Context, id string) (*domain.LoginTicket, error) {
	ticket, ok := s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := ticket
	return &copy, nil
}

func (s *ticketStore) Delete(_ context.Context, id string) error {
	if _, ok := s.tickets[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.tickets, id)
	return nil
}

type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestEngine(t *testing.T) (*gin.Engine, *usecase.TokenService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zaptest.NewLogger(t)
	cfg := &config.AppConfig{App: config.AppSettings{Env: "test"}}

	users := &userStore{users: map[int64]domain.User{
		7: {ID: 7, Username: "mobile-user"},
	}}
	roles := &roleStore{
		roles: []domain.Role{
			{ID: 1, Code: "farmer", Name: "Farmer", Exclusive: true},
		},
		bindings: make(map[int64][]int64),
	}

	roleService := usecase.NewRoleService(roles, users, nil, logger)

	qrService := usecase.NewQrLoginService(
		newSessionStore(),
		users,
		roleService,
		nil,
		nil,
		passthroughTx{},
		usecase.QrLoginConfig{TTL: 5 * time.Minute},
		logger,
	)

	signer, err := security.NewJWTManager("0123456789abcdef0123456789abcdef", "brewing-machine")
	if err != nil {
		t.Fatalf("NewJWTManager returned error: %v", err)
	}
	tokenService := usecase.NewTokenService(signer, &ticketStore{tickets: make(map[string]domain.LoginTicket)}, time.Hour, logger)

	engine := httproutes.Register(httproutes.Dependencies{
		Config: cfg,
		Logger: logger,
		Services: httproutes.ServiceSet{
			QrLogin: qrService,
			Roles:   roleService,
			Tokens:  tokenService,
		},
	})

	return engine, tokenService
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	engine, _ := newTestEngine(t)

	w := doJSON(t, engine, http.MethodGet, "/healthz", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestQrHandshakeOverHTTP(t *testing.T) {
	engine, tokens := newTestEngine(t)

	// The mobile client already holds a session token.
	issued, err := tokens.Issue(context.Background(), 7)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	// Viewer generates a code.
	w := doJSON(t, engine, http.MethodPost, "/api/v1/qr/login/generate", map[string]string{"role": "farmer"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("generate: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var generated struct {
		Token   string `json:"token"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &generated); err != nil {
		t.Fatalf("decode generate response: %v", err)
	}
	if generated.Token == "" || generated.Content == "" {
		t.Fatalf("incomplete generate response: %s", w.Body.String())
	}

	statusPath := fmt.Sprintf("/api/v1/qr/login/status/%s", generated.Token)

	w = doJSON(t, engine, http.MethodGet, statusPath, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", w.Code)
	}
	var status struct {
		Status int    `json:"status"`
		UserID *int64 `json:"user_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status response: %v", err)
	}
	if status.Status != domain.StatusCodeUnscanned {
		t.Fatalf("expected unscanned, got %d", status.Status)
	}

	// Scanning without a bearer token is rejected.
	w = doJSON(t, engine, http.MethodPost, "/api/v1/qr/login/scan", map[string]string{"token": generated.Token}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated scan: expected 401, got %d", w.Code)
	}

	w = doJSON(t, engine, http.MethodPost, "/api/v1/qr/login/scan", map[string]string{"token": generated.Token}, issued.Token)
	if w.Code != http.StatusOK {
		t.Fatalf("scan: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, engine, http.MethodPost, "/api/v1/qr/login/confirm", map[string]any{
		"token":     generated.Token,
		"user_info": map[string]any{"nickname": "brewer"},
	}, issued.Token)
	if w.Code != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var confirm struct {
		RoleBound bool    `json:"role_bound"`
		RoleCode  *string `json:"role_code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &confirm); err != nil {
		t.Fatalf("decode confirm response: %v", err)
	}
	if !confirm.RoleBound || confirm.RoleCode == nil || *confirm.RoleCode != "farmer" {
		t.Fatalf("unexpected confirm result: %s", w.Body.String())
	}

	// Poller now observes CONFIRMED with the bound identity.
	w = doJSON(t, engine, http.MethodGet, statusPath, nil, "")
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status response: %v", err)
	}
	if status.Status != domain.StatusCodeConfirmed {
		t.Fatalf("expected confirmed, got %d", status.Status)
	}
	if status.UserID == nil || *status.UserID != 7 {
		t.Fatalf("expected user 7, got %v", status.UserID)
	}

	// The viewer trades the confirmed token for its own session.
	w = doJSON(t, engine, http.MethodPost, "/api/v1/auth/session", map[string]string{"token": generated.Token}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("session exchange: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var exchanged struct {
		AccessToken string `json:"access_token"`
		UserID      int64  `json:"user_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &exchanged); err != nil {
		t.Fatalf("decode exchange response: %v", err)
	}
	if exchanged.AccessToken == "" || exchanged.UserID != 7 {
		t.Fatalf("unexpected exchange result: %s", w.Body.String())
	}
}

func TestQrStatusUnknownToken(t *testing.T) {
	engine, _ := newTestEngine(t)

	w := doJSON(t, engine, http.MethodGet, "/api/v1/qr/login/status/unknown", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var status struct {
		Status int `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status response: %v", err)
	}
	if status.Status != domain.StatusCodeNotFound {
		t.Fatalf("expected not-found code, got %d", status.Status)
	}
}

func TestRolesEndpoint(t *testing.T) {
	engine, _ := newTestEngine(t)

	w := doJSON(t, engine, http.MethodGet, "/api/v1/roles", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Roles []struct {
			Code string `json:"code"`
		} `json:"roles"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode roles response: %v", err)
	}
	if len(resp.Roles) != 1 || resp.Roles[0].Code != "farmer" {
		t.Fatalf("unexpected roles: %s", w.Body.String())
	}
}

func TestSessionExchangeRejectsUnconfirmed(t *testing.T) {
	engine, _ := newTestEngine(t)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/qr/login/generate", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("generate: expected 200, got %d", w.Code)
	}
	var generated struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &generated); err != nil {
		t.Fatalf("decode generate response: %v", err)
	}

	w = doJSON(t, engine, http.MethodPost, "/api/v1/auth/session", map[string]string{"token": generated.Token}, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for unconfirmed session, got %d", w.Code)
	}
}
