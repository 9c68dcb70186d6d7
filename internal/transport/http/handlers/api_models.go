package handlers

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// QrGenerateRequest carries the optional authorization context bound to a
// freshly generated login code.
type QrGenerateRequest struct {
	Role     string `json:"role"`
	Province string `json:"province"`
	City     string `json:"city"`
	District string `json:"district"`
	Street   string `json:"street"`
}

// QrGenerateResponse returns the token the viewer polls with and the QR
// content plus an optional rendered image as a data URL.
type QrGenerateResponse struct {
	Token     string    `json:"token"`
	Content   string    `json:"content"`
	Image     string    `json:"image,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// QrStatusResponse is the polling snapshot of a login session.
type QrStatusResponse struct {
	Status   int             `json:"status"`
	UserID   *int64          `json:"user_id,omitempty"`
	UserInfo json.RawMessage `json:"user_info,omitempty"`
}

// QrScanRequest identifies the session a mobile client scanned.
type QrScanRequest struct {
	Token string `json:"token" binding:"required"`
}

// QrConfirmRequest approves a scanned session. UserInfo is an optional
// client-supplied profile snapshot stored verbatim on the session.
type QrConfirmRequest struct {
	Token    string         `json:"token" binding:"required"`
	UserInfo map[string]any `json:"user_info"`
}

// QrConfirmResponse reports the confirmation outcome.
type QrConfirmResponse struct {
	Message   string  `json:"message"`
	RoleBound bool    `json:"role_bound"`
	RoleCode  *string `json:"role_code,omitempty"`
}

// RoleSummary describes a bindable role.
type RoleSummary struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Exclusive   bool      `json:"exclusive"`
	CreatedAt   time.Time `json:"created_at"`
}

// RoleListResponse wraps a collection of roles.
type RoleListResponse struct {
	Roles []RoleSummary `json:"roles"`
}

// SessionExchangeRequest trades a confirmed QR token for a session token.
type SessionExchangeRequest struct {
	Token string `json:"token" binding:"required"`
}

// SessionExchangeResponse carries the issued session token.
type SessionExchangeResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	UserID      int64     `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// HealthResponse reports liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports the readiness of downstream dependencies.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
