package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/internal/service"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
	"github.com/noah-isme/course-admin-api/pkg/response"
)

// SessionInfo describes the caller and what the UI may offer them.
type SessionInfo struct {
	UserID      string          `json:"user_id"`
	Role        models.UserRole `json:"role"`
	Email       string          `json:"email,omitempty"`
	FullName    string          `json:"full_name,omitempty"`
	Permissions map[string]bool `json:"permissions"`
}

// AuthHandler reports the authenticated session.
type AuthHandler struct {
	access service.PermissionChecker
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(access service.PermissionChecker) *AuthHandler {
	return &AuthHandler{access: access}
}

// Me godoc
// @Summary Current session
// @Description Returns the caller's identity and course permissions so clients can hide actions they cannot perform
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	perms := map[string]bool{}
	for _, p := range []string{models.PermissionViewCourses, models.PermissionEditCourses} {
		perms[p] = h.access.HasPermission(claims.Role, p)
	}
	response.OK(c, SessionInfo{
		UserID:      claims.UserID,
		Role:        claims.Role,
		Email:       claims.Email,
		FullName:    claims.FullName,
		Permissions: perms,
	})
}
