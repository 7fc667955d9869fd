package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tunehub/internal/domain"
	"tunehub/internal/service"
)

const (
	contextUserKey      = "tunehub.user"
	contextSessionKey   = "tunehub.session"
	contextRequestIDKey = "tunehub.request_id"

	requestIDHeader = "X-Request-ID"
)

// RequireAuth admits requests carrying a live session cookie or a valid
// bearer token and stores the resolved user on the context.
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.authenticate(c) {
			return
		}
		c.Next()
	}
}

// RequireRole is RequireAuth followed by a role check.
func (h *Handler) RequireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.authenticate(c) {
			return
		}
		if currentUser(c).Role != role {
			h.writeError(c, domain.Authorization(msgForbidden))
			return
		}
		c.Next()
	}
}

func (h *Handler) authenticate(c *gin.Context) bool {
	ctx := c.Request.Context()

	if id, ok := h.cookie.Read(c.Request); ok {
		user, err := h.auth.CurrentUser(ctx, id)
		switch {
		case err == nil:
			c.Set(contextUserKey, user)
			c.Set(contextSessionKey, id)
			return true
		case !errors.Is(err, domain.ErrAuthentication):
			h.writeError(c, err)
			return false
		}
	}

	if raw, ok := bearerToken(c.GetHeader("Authorization")); ok {
		user, err := h.auth.Authenticate(ctx, raw)
		if err == nil {
			c.Set(contextUserKey, user)
			return true
		}
	}

	h.writeError(c, domain.Authentication(service.MsgNotAuthenticated))
	return false
}

func bearerToken(header string) (string, bool) {
	scheme, raw, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func currentUser(c *gin.Context) *domain.PublicUser {
	if v, ok := c.Get(contextUserKey); ok {
		if user, ok := v.(*domain.PublicUser); ok {
			return user
		}
	}
	return nil
}

// currentSessionID is empty for requests authenticated by bearer token.
func currentSessionID(c *gin.Context) string {
	return c.GetString(contextSessionKey)
}

func requestID(c *gin.Context) string {
	return c.GetString(contextRequestIDKey)
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(contextRequestIDKey, id)
		c.Header(requestIDHeader, id)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := logger.WithFields(logrus.Fields{
			"request_id": id,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"latency":    time.Since(start).String(),
		})
		switch {
		case status >= http.StatusInternalServerError:
			entry.Warn("request completed")
		case c.Request.URL.Path == "/health":
			entry.Debug("request completed")
		default:
			entry.Info("request completed")
		}
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", requestIDHeader}
	cfg.ExposeHeaders = []string{requestIDHeader, "Retry-After"}
	cfg.MaxAge = 12 * time.Hour
	return cors.New(cfg)
}
