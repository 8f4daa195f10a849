package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"taskflow/internal/middleware"
	"taskflow/internal/notification"
)

type NotificationHandler struct {
	deriver *notification.Deriver
}

func NewNotificationHandler(deriver *notification.Deriver) *NotificationHandler {
	return &NotificationHandler{deriver: deriver}
}

// MarkReadRequest представляет запрос на отметку уведомлений прочитанными
type MarkReadRequest struct {
	IDs []string `json:"ids" binding:"omitempty,dive,uuid"`
	All bool     `json:"all"`
}

// List возвращает страницу уведомлений получателя и количество непрочитанных
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := middleware.CallerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Not authenticated"})
		return
	}

	page := intQuery(c, "page", 1)
	limit := intQuery(c, "limit", 10)

	notifications, pagination, unread, err := h.deriver.List(c.Request.Context(), userID, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to retrieve notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"data":         notifications,
		"pagination":   pagination,
		"unread_count": unread,
	})
}

// MarkRead переводит указанные уведомления (или все) в состояние READ
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := middleware.CallerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Not authenticated"})
		return
	}

	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request"})
		return
	}

	if req.All {
		if err := h.deriver.MarkAllRead(c.Request.Context(), userID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to mark notifications read"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	if len(req.IDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Either ids or all must be provided"})
		return
	}
	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid notification ID format"})
			return
		}
		ids = append(ids, id)
	}
	if err := h.deriver.MarkRead(c.Request.Context(), userID, ids); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to mark notifications read"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
