package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/core/domain"
	"github.com/LuoXianShengChangetheWorld/brewingMachine/internal/usecase"
)

// RoleHandler serves the role catalog endpoints.
type RoleHandler struct {
	roles *usecase.RoleService
}

// NewRoleHandler builds the role catalog handler.
func NewRoleHandler(roles *usecase.RoleService) *RoleHandler {
	return &RoleHandler{roles: roles}
}

// List returns every bindable role.
func (h *RoleHandler) List(c *gin.Context) {
	roles, err := h.roles.ListRoles(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list roles"))
		return
	}

	c.JSON(http.StatusOK, RoleListResponse{Roles: roleSummaries(roles)})
}

// Get returns a single role by its code.
func (h *RoleHandler) Get(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "missing role code"))
		return
	}

	role, err := h.roles.GetRole(c.Request.Context(), code)
	if err != nil {
		RespondWithMappedError(c, err, http.StatusInternalServerError, "failed to load role",
			ErrorCase{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
		)
		return
	}

	c.JSON(http.StatusOK, roleSummary(*role))
}

// ListForUser returns the roles bound to a user.
func (h *RoleHandler) ListForUser(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid user id"))
		return
	}

	roles, err := h.roles.ListUserRoles(c.Request.Context(), userID)
	if err != nil {
		RespondWithMappedError(c, err, http.StatusInternalServerError, "failed to list user roles",
			ErrorCase{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
		)
		return
	}

	c.JSON(http.StatusOK, RoleListResponse{Roles: roleSummaries(roles)})
}

func roleSummary(role domain.Role) RoleSummary {
	return RoleSummary{
		ID:          role.ID,
		Code:        role.Code,
		Name:        role.Name,
		Description: role.Description,
		Exclusive:   role.Exclusive,
		CreatedAt:   role.CreatedAt,
	}
}

func roleSummaries(roles []domain.Role) []RoleSummary {
	summaries := make([]RoleSummary, 0, len(roles))
	for _, role := range roles {
		summaries = append(summaries, roleSummary(role))
	}
	return summaries
}
