package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"messenger-service/internal/models"
	"messenger-service/internal/store"
)

// ContactsHandler lists the other registered users with their presence.
type ContactsHandler struct {
	log   *slog.Logger
	users store.UserRepository
}

// NewContactsHandler builds a ContactsHandler.
func NewContactsHandler(log *slog.Logger, users store.UserRepository) *ContactsHandler {
	return &ContactsHandler{log: log, users: users}
}

// List returns every user except the caller.
func (h *ContactsHandler) List(c *gin.Context) {
	userID := c.GetString("userID")

	users, err := h.users.List()
	if err != nil {
		h.log.Error("list users failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load contacts"})
		return
	}

	contacts := lo.FilterMap(users, func(u models.User, _ int) (models.Contact, bool) {
		if u.ID == userID {
			return models.Contact{}, false
		}
		status := u.Status
		if status == "" {
			status = models.PresenceOffline
		}
		return models.Contact{
			ID:       u.ID,
			Username: u.Username,
			Avatar:   u.Avatar,
			Status:   status,
			LastSeen: u.LastSeen,
		}, true
	})

	c.JSON(http.StatusOK, contacts)
}
