package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/internal/service"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
	"github.com/noah-isme/course-admin-api/pkg/response"
)

// RequirePermission rejects requests whose role lacks permission. Denials are
// reported to notifier as warnings when one is supplied.
func RequirePermission(checker service.PermissionChecker, notifier service.NotificationSink, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if checker.HasPermission(claims.Role, permission) {
			c.Next()
			return
		}

		if notifier != nil {
			notifier.Notify(c.Request.Context(), models.NotificationWarning, "Permission denied",
				"You do not have permission to perform this action ("+permission+")")
		}
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "missing permission "+permission))
		c.Abort()
	}
}
