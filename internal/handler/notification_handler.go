package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-admin-api/internal/models"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
	"github.com/noah-isme/course-admin-api/pkg/response"
)

const defaultNotificationLimit = 20

type notificationFeed interface {
	Recent(limit int) []models.Notification
}

// NotificationHandler serves the recent notification feed.
type NotificationHandler struct {
	feed notificationFeed
}

// NewNotificationHandler constructs a NotificationHandler.
func NewNotificationHandler(feed notificationFeed) *NotificationHandler {
	return &NotificationHandler{feed: feed}
}

// List godoc
// @Summary Recent notifications
// @Description Newest first. mine=true keeps only notifications caused by the caller.
// @Tags Notifications
// @Produce json
// @Param limit query int false "Maximum entries (default 20)"
// @Param mine query bool false "Only the caller's notifications"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	limit := defaultNotificationLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.Error(c, appErrors.WithDetails(appErrors.ErrValidation, "invalid limit",
				map[string]string{"limit": "limit must be a positive integer"}))
			return
		}
		limit = n
	}

	var items []models.Notification
	if mine, _ := strconv.ParseBool(c.Query("mine")); mine {
		actor := ""
		if claims := claimsFromContext(c); claims != nil {
			actor = claims.UserID
		}
		for _, n := range h.feed.Recent(0) {
			if n.ActorID == actor {
				items = append(items, n)
				if len(items) == limit {
					break
				}
			}
		}
		if items == nil {
			items = []models.Notification{}
		}
	} else {
		items = h.feed.Recent(limit)
	}
	response.OK(c, items, map[string]interface{}{"count": len(items)})
}
