package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/transport/http/middleware"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/usecase"
)

// QrLoginHandler serves the QR cross-device login handshake endpoints.
type QrLoginHandler struct {
	qr *usecase.QrLoginService
}

// NewQrLoginHandler builds the handshake handler.
func NewQrLoginHandler(qr *usecase.QrLoginService) *QrLoginHandler {
	return &QrLoginHandler{qr: qr}
}

// Generate creates a fresh login session and returns the QR payload for the
// viewer to render and poll.
func (h *QrLoginHandler) Generate(c *gin.Context) {
	var req QrGenerateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid generate payload"))
			return
		}
	}

	result, err := h.qr.Create(c.Request.Context(), usecase.CreateQrInput{
		Role:     strings.TrimSpace(req.Role),
		Province: strings.TrimSpace(req.Province),
		City:     strings.TrimSpace(req.City),
		District: strings.TrimSpace(req.District),
		Street:   strings.TrimSpace(req.Street),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to generate login code"))
		return
	}

	c.JSON(http.StatusOK, QrGenerateResponse{
		Token:     result.Token,
		Content:   result.Content,
		Image:     result.Image,
		ExpiresAt: result.ExpiresAt,
	})
}

// Status reports the current handshake state for a token. Unknown and
// expired tokens are reported inline rather than as HTTP errors so pollers
// can keep a single code path.
func (h *QrLoginHandler) Status(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "missing token"))
		return
	}

	view, err := h.qr.Query(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to query login status"))
		return
	}

	resp := QrStatusResponse{
		Status:   view.StatusCode(),
		UserID:   view.UserID,
		UserInfo: view.UserInfo,
	}

	c.JSON(http.StatusOK, resp)
}

// Scan marks a session as scanned on behalf of the authenticated mobile
// client. Exactly one concurrent scanner wins.
func (h *QrLoginHandler) Scan(c *gin.Context) {
	var req QrScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid scan payload"))
		return
	}

	if err := h.qr.Scan(c.Request.Context(), strings.TrimSpace(req.Token)); err != nil {
		RespondWithMappedError(c, err, http.StatusInternalServerError, "failed to scan login code",
			ErrorCase{Err: usecase.ErrQrNotFound, Status: http.StatusNotFound, Message: "login code not found"},
			ErrorCase{Err: usecase.ErrQrExpired, Status: http.StatusGone, Message: "login code expired"},
			ErrorCase{Err: usecase.ErrQrAlreadyScanned, Status: http.StatusConflict, Message: "login code already scanned"},
			ErrorCase{Err: usecase.ErrQrAlreadyConfirmed, Status: http.StatusConflict, Message: "login already confirmed"},
		)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "scanned"})
}

// Confirm approves a scanned session as the authenticated user, binding the
// session role when one is attached.
func (h *QrLoginHandler) Confirm(c *gin.Context) {
	userID, ok := middleware.AuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	var req QrConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid confirm payload"))
		return
	}

	result, err := h.qr.Confirm(c.Request.Context(), strings.TrimSpace(req.Token), userID, req.UserInfo)
	if err != nil {
		h.respondConfirmError(c, err)
		return
	}

	c.JSON(http.StatusOK, QrConfirmResponse{
		Message:   "confirmed",
		RoleBound: result.RoleBound,
		RoleCode:  result.RoleCode,
	})
}

// ConfirmRole retries the role binding side of confirmation for a session
// whose earlier confirm attempt failed at the binding step.
func (h *QrLoginHandler) ConfirmRole(c *gin.Context) {
	userID, ok := middleware.AuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	var req QrScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid confirm payload"))
		return
	}

	result, err := h.qr.ConfirmRoleBind(c.Request.Context(), strings.TrimSpace(req.Token), userID)
	if err != nil {
		h.respondConfirmError(c, err)
		return
	}

	c.JSON(http.StatusOK, QrConfirmResponse{
		Message:   "confirmed",
		RoleBound: result.RoleBound,
		RoleCode:  result.RoleCode,
	})
}

func (h *QrLoginHandler) respondConfirmError(c *gin.Context, err error) {
	RespondWithMappedError(c, err, http.StatusInternalServerError, "failed to confirm login",
		ErrorCase{Err: usecase.ErrQrNotFound, Status: http.StatusNotFound, Message: "login code not found"},
		ErrorCase{Err: usecase.ErrQrExpired, Status: http.StatusGone, Message: "login code expired"},
		ErrorCase{Err: usecase.ErrQrNotScanned, Status: http.StatusConflict, Message: "login code not yet scanned"},
		ErrorCase{Err: usecase.ErrQrAlreadyConfirmed, Status: http.StatusConflict, Message: "login already confirmed"},
		ErrorCase{Err: usecase.ErrQrNoRole, Status: http.StatusConflict, Message: "login code carries no role"},
		ErrorCase{Err: usecase.ErrUserNotFound, Status: http.StatusBadRequest, Message: "user not found"},
		ErrorCase{Err: usecase.ErrRoleNotFound, Status: http.StatusBadRequest, Message: "role not found"},
		ErrorCase{Err: usecase.ErrRoleAlreadyBound, Status: http.StatusConflict, Message: "user already holds an exclusive role"},
	)
}
