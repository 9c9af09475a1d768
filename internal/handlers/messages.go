package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/core"
)

// MessageHandler is the REST face of the message ledger. Edits and deletes
// go through the same engine commands as the websocket path, so both
// surfaces mutate one ledger.
type MessageHandler struct {
	log    *slog.Logger
	engine *core.Engine
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(log *slog.Logger, engine *core.Engine) *MessageHandler {
	return &MessageHandler{log: log, engine: engine}
}

// Edit mutates a message's content, sender only.
func (h *MessageHandler) Edit(c *gin.Context) {
	messageID := c.Param("id")
	userID := c.GetString("userID")

	var req struct {
		NewContent string `json:"newContent" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.engine.Edit(c.Request.Context(), userID, messageID, req.NewContent)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrMessageNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		case errors.Is(err, core.ErrNotSender):
			c.JSON(http.StatusForbidden, gin.H{"error": "only the sender can edit"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not edit message"})
		}
		return
	}

	c.JSON(http.StatusOK, msg)
}

// Delete hard-removes a message, sender only.
func (h *MessageHandler) Delete(c *gin.Context) {
	messageID := c.Param("id")
	userID := c.GetString("userID")

	if err := h.engine.Delete(c.Request.Context(), userID, messageID); err != nil {
		switch {
		case errors.Is(err, core.ErrMessageNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		case errors.Is(err, core.ErrNotSender):
			c.JSON(http.StatusForbidden, gin.H{"error": "only the sender can delete"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete message"})
		}
		return
	}

	c.Status(http.StatusNoContent)
}
