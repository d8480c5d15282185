package notification

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler handles notification HTTP requests
type Handler struct {
	repo Repository
}

// NewHandler creates a new notification Handler
func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// List returns the user's notifications, newest first
// GET /api/notifications?unread=true&limit=50&offset=0
func (h *Handler) List(c *gin.Context) {
	userID := c.GetString("userID")

	unreadOnly := c.Query("unread") == "true"
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	notifications, total, err := h.repo.FindByOwner(userID, unreadOnly, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": notifications,
		"total":         total,
	})
}

// MarkRead marks one notification as read
// PATCH /api/notifications/:id/read
func (h *Handler) MarkRead(c *gin.Context) {
	userID := c.GetString("userID")
	notificationID := c.Param("id")

	if err := h.repo.MarkRead(userID, notificationID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notification marked read"})
}

// Delete removes a notification
// DELETE /api/notifications/:id
func (h *Handler) Delete(c *gin.Context) {
	userID := c.GetString("userID")
	notificationID := c.Param("id")

	if err := h.repo.Delete(userID, notificationID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notification deleted"})
}
