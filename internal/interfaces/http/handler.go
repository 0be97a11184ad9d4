package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"smartreply/internal/config"
	"smartreply/internal/infrastructure"
	"smartreply/internal/interfaces"
	"smartreply/internal/repository"
	"smartreply/internal/usecases"
)

type Handler struct {
	replyService *usecases.ReplyService
	metrics      interfaces.MetricsStore
	cfg          *config.Config
	logger       *slog.Logger
}

func NewHandler(service *usecases.ReplyService, metrics interfaces.MetricsStore, cfg *config.Config, logger *slog.Logger) *Handler {
	return &Handler{
		replyService: service,
		metrics:      metrics,
		cfg:          cfg,
		logger:       logger,
	}
}

func SetupRoutes(r *gin.Engine, service *usecases.ReplyService, auth *usecases.AuthUsecase,
	metrics interfaces.MetricsStore, cfg *config.Config, middleware *Middleware, logger *slog.Logger) {
	h := NewHandler(service, metrics, cfg, logger)

	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(10 << 20)) // 10MB max request size
	r.Use(middleware.CORSMiddleware())

	// Public webhook route (provider-invoked, no bearer token)
	r.POST("/webhook/whatsapp", h.HandleWhatsAppWebhook)

	// Public auth routes
	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/login", func(c *gin.Context) {
			var loginReq struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&loginReq); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			token, err := auth.Login(c.Request.Context(), loginReq.Username, loginReq.Password)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"token": token})
		})

		authGroup.POST("/register", func(c *gin.Context) {
			var regReq struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&regReq); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			if !ValidUsername(regReq.Username) || len(regReq.Password) < 6 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid username or password (min 6 chars)"})
				return
			}
			if err := auth.Register(c.Request.Context(), regReq.Username, regReq.Password); err != nil {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusCreated, gin.H{"status": "registered"})
		})
	}

	// Protected routes
	api := r.Group("/api")
	api.Use(middleware.AuthRequired())
	api.Use(middleware.RateLimitPerUser(5, 10))
	{
		api.POST("/replies/generate", h.GenerateReplies)
		api.POST("/whatsapp/send", h.SendWhatsAppReply)
		api.POST("/email/send", h.SendEmailReply)
		api.POST("/email/fetch", h.FetchEmails)

		api.GET("/messages", h.ListMessages)
		api.DELETE("/messages/:id", h.DeleteMessage)

		api.GET("/metrics/latest", h.LatestMetrics)
	}
}

// userID extracts the verified user id set by AuthRequired.
func userID(c *gin.Context) int {
	v, _ := c.Get("user_id")
	id, _ := v.(int)
	return id
}

// errorStatus maps pipeline errors to HTTP status codes: validation failures
// are 400, upstream provider failures 502, everything else 500.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, infrastructure.ErrEmptyBody),
		errors.Is(err, infrastructure.ErrMissingThreadID),
		errors.Is(err, infrastructure.ErrEmptyReply),
		errors.Is(err, infrastructure.ErrReplyTooLong),
		errors.Is(err, infrastructure.ErrMissingFormData):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, infrastructure.ErrTruncated),
		errors.Is(err, infrastructure.ErrSafetyBlocked),
		errors.Is(err, infrastructure.ErrNoReplies):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
