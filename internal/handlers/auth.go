package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"messenger-service/internal/auth"
	"messenger-service/internal/models"
	"messenger-service/internal/store"
	"messenger-service/internal/telemetry"
)

const defaultAvatar = "/images/default-avatar.png"

// AuthHandler manages credential issuance endpoints.
type AuthHandler struct {
	log    *slog.Logger
	users  store.UserRepository
	tokens *auth.TokenManager
	audit  *telemetry.AuditEmitter
}

// NewAuthHandler builds an AuthHandler.
func NewAuthHandler(log *slog.Logger, users store.UserRepository, tokens *auth.TokenManager, audit *telemetry.AuditEmitter) *AuthHandler {
	return &AuthHandler{log: log, users: users, tokens: tokens, audit: audit}
}

type userResponse struct {
	ID       string          `json:"id"`
	Username string          `json:"username"`
	Email    string          `json:"email"`
	Avatar   string          `json:"avatar"`
	Status   models.Presence `json:"status"`
}

func toUserResponse(u models.User) userResponse {
	status := u.Status
	if status == "" {
		status = models.PresenceOffline
	}
	return userResponse{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Avatar:   u.Avatar,
		Status:   status,
	}
}

// Register creates an account and issues a token.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=6"`
		Avatar   string `json:"avatar"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}

	avatar := req.Avatar
	if avatar == "" {
		avatar = defaultAvatar
	}
	user := models.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Avatar:       avatar,
		Status:       models.PresenceOffline,
		LastSeen:     time.Now().UTC(),
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.users.Create(user); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}

	token, err := h.tokens.Issue(user.ID, user.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "user registered", requestIDFromContext(c), &user.ID)
	c.JSON(http.StatusOK, gin.H{"token": token, "user": toUserResponse(user)})
}

// Login verifies credentials and issues a token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.GetByEmail(req.Email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.tokens.Issue(user.ID, user.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "user logged in", requestIDFromContext(c), &user.ID)
	c.JSON(http.StatusOK, gin.H{"token": token, "user": toUserResponse(user)})
}

// VerifyToken echoes the profile behind a valid token.
func (h *AuthHandler) VerifyToken(c *gin.Context) {
	userID := c.GetString("userID")
	user, err := h.users.GetByID(userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": toUserResponse(user)})
}
