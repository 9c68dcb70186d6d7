package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/core/domain"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/usecase"
)

// AuthHandler exchanges confirmed QR handshakes for web session tokens.
type AuthHandler struct {
	qr     *usecase.QrLoginService
	tokens *usecase.TokenService
}

// NewAuthHandler builds the session exchange handler.
func NewAuthHandler(qr *usecase.QrLoginService, tokens *usecase.TokenService) *AuthHandler {
	return &AuthHandler{qr: qr, tokens: tokens}
}

// ExchangeSession trades a CONFIRMED login token for a session token the
// viewer can use on subsequent requests. Only confirmed sessions qualify;
// anything else is rejected with the handshake's current state.
func (h *AuthHandler) ExchangeSession(c *gin.Context) {
	var req SessionExchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid session payload"))
		return
	}

	view, err := h.qr.Query(c.Request.Context(), strings.TrimSpace(req.Token))
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to query login status"))
		return
	}

	switch view.State {
	case domain.SessionConfirmed:
	case domain.SessionNotFound:
		c.JSON(http.StatusNotFound, NewErrorResponse(c, "login code not found"))
		return
	case domain.SessionExpired:
		c.JSON(http.StatusGone, NewErrorResponse(c, "login code expired"))
		return
	default:
		c.JSON(http.StatusConflict, NewErrorResponse(c, "login not yet confirmed"))
		return
	}

	if view.UserID == nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "confirmed login has no user"))
		return
	}

	issued, err := h.tokens.Issue(c.Request.Context(), *view.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to issue session token"))
		return
	}

	c.JSON(http.StatusOK, SessionExchangeResponse{
		AccessToken: issued.Token,
		TokenType:   "Bearer",
		UserID:      issued.UserID,
		ExpiresAt:   issued.ExpiresAt,
	})
}
