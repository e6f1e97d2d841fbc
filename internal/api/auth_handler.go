package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"coachsim/internal/api/middleware"
	"coachsim/internal/auth"
	"coachsim/internal/database"
)

const loginRateLimitPerHour = 10

// AuthHandler handles registration and login.
type AuthHandler struct {
	db          *gorm.DB
	authService *auth.Service
	redis       redis.UniversalClient
	logger      *slog.Logger
}

// NewAuthHandler constructs the auth handler. redisClient may be nil, which
// disables login rate limiting.
func NewAuthHandler(db *gorm.DB, authService *auth.Service, redisClient redis.UniversalClient, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		db:          db,
		authService: authService,
		redis:       redisClient,
		logger:      logger,
	}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required,max=255"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

// Register creates a new user account.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(slog.String("email", req.Email))

	var existing database.User
	if err := h.db.WithContext(ctx).Where("email = ?", req.Email).First(&existing).Error; err == nil {
		logger.Info("register conflict: email already registered")
		Conflict(c, "email already registered")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("register lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	hashed, err := h.authService.HashPassword(req.Password)
	if err != nil {
		logger.Error("hash password failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	user := database.User{
		Name:     req.Name,
		Email:    req.Email,
		Password: hashed,
	}

	if err := h.db.WithContext(ctx).Create(&user).Error; err != nil {
		logger.Error("create user failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("user registered", slog.Uint64("user_id", uint64(user.ID)))
	c.JSON(http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login verifies credentials and returns a bearer token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(slog.String("email", req.Email))

	if h.redis != nil {
		// Rate limit: per IP+email per hour.
		rateKey := "rate:login:" + c.ClientIP() + ":" + strings.ToLower(req.Email) + ":" + time.Now().UTC().Format("2006010215")
		count, err := incrWithTTL(ctx, h.redis, rateKey, time.Hour)
		if err != nil {
			count = 0
		}
		if count > loginRateLimitPerHour {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
	}

	var user database.User
	if err := h.db.WithContext(ctx).Where("email = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Info("login failed: user not found")
			Error(c, http.StatusUnauthorized, "invalid credentials")
			return
		}
		logger.Error("login query failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if !h.authService.CheckPasswordHash(req.Password, user.Password) {
		logger.Info("login failed: password mismatch", slog.Uint64("user_id", uint64(user.ID)))
		Error(c, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.authService.GenerateToken(user.ID, user.Email)
	if err != nil {
		if errors.Is(err, auth.ErrSecretMissing) {
			logger.Error("login failed: signing secret not configured")
			Internal(c, "server configuration error")
			return
		}
		logger.Error("generate token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *AuthHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	if logger := middleware.LoggerFromContext(c); logger != nil {
		return logger
	}
	if h.logger != nil {
		return h.logger
	}
	return slog.Default()
}
