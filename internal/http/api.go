package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"tunehub/internal/domain"
	"tunehub/internal/service"
	"tunehub/internal/session"
)

const (
	msgInvalidBody     = "Invalid request body."
	msgForbidden       = "Forbidden: insufficient permissions."
	msgLoggedOut       = "Logged out successfully."
	msgPasswordChanged = "Password changed successfully."
)

// Options configure the HTTP boundary.
type Options struct {
	// AllowedOrigins lists the browser origins allowed to call the API with
	// credentials. CORS is disabled when empty.
	AllowedOrigins []string
	Logger         *logrus.Logger
}

// Handler wires HTTP routes to the auth service.
type Handler struct {
	auth    service.AuthService
	cookie  *session.Cookie
	log     *logrus.Logger
	origins []string
}

func NewHandler(auth service.AuthService, cookie *session.Cookie, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		auth:    auth,
		cookie:  cookie,
		log:     logger,
		origins: opts.AllowedOrigins,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestLogger(h.log))
	if len(h.origins) > 0 {
		router.Use(corsMiddleware(h.origins))
	}

	auth := router.Group("/auth")
	{
		auth.POST("/register", h.register)
		auth.POST("/login", h.login)
		auth.GET("/me", h.me)
		auth.POST("/logout", h.logout)
		auth.PATCH("/me", h.RequireAuth(), h.updateProfile)
		auth.POST("/change-password", h.RequireAuth(), h.changePassword)
		auth.POST("/token", h.RequireAuth(), h.issueToken)
	}

	router.GET("/listener/profile", h.RequireRole(domain.RoleListener), h.roleProfile)
	router.GET("/artist/profile", h.RequireRole(domain.RoleArtist), h.roleProfile)
	router.GET("/health", h.health)
}

type registerRequest struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profileRequest struct {
	Email     *string `json:"email"`
	Username  *string `json:"username"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}

	user, sess, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Email:     req.Email,
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.cookie.Write(c.Writer, sess); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user})
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	user, sess, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.cookie.Write(c.Writer, sess); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *Handler) me(c *gin.Context) {
	id, _ := h.cookie.Read(c.Request)

	user, err := h.auth.CurrentUser(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrAuthentication) {
			c.JSON(http.StatusUnauthorized, gin.H{"user": nil})
			return
		}
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *Handler) logout(c *gin.Context) {
	id, _ := h.cookie.Read(c.Request)

	if err := h.auth.Logout(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	h.cookie.Clear(c.Writer)

	c.JSON(http.StatusOK, gin.H{"message": msgLoggedOut})
}

func (h *Handler) updateProfile(c *gin.Context) {
	var req profileRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.auth.UpdateProfile(c.Request.Context(), currentUser(c), currentSessionID(c), service.ProfileInput{
		Email:     req.Email,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *Handler) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.auth.ChangePassword(c.Request.Context(), currentUser(c), req.CurrentPassword, req.NewPassword); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": msgPasswordChanged})
}

func (h *Handler) issueToken(c *gin.Context) {
	raw, exp, err := h.auth.IssueToken(c.Request.Context(), currentUser(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, TokenResponse{Token: raw, ExpiresAt: exp.UTC().Format(time.RFC3339)})
}

func (h *Handler) roleProfile(c *gin.Context) {
	user := currentUser(c)
	profile, err := h.auth.RoleProfile(c.Request.Context(), user)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user, "profile": profile})
}

func (h *Handler) health(c *gin.Context) {
	status := h.auth.Health(c.Request.Context())

	code := http.StatusOK
	if !status.OK() {
		code = http.StatusInternalServerError
		h.log.WithFields(logrus.Fields{
			"request_id": requestID(c),
			"db":         status.Database,
			"sessions":   status.Sessions,
		}).Warn("health check failed")
	}

	c.JSON(code, gin.H{
		"ok":       status.OK(),
		"service":  "tunehub",
		"db":       upDown(status.Database),
		"sessions": upDown(status.Sessions),
	})
}

func upDown(err error) string {
	if err != nil {
		return "down"
	}
	return "up"
}

// bindJSON decodes the request body into dst. An empty body decodes to the
// zero value so that field validation can report what is missing.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"message": msgInvalidBody})
		return false
	}
	return true
}

// writeError maps err onto a status code and a {message} body. Only the
// client-safe message leaves the process; the cause is logged.
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrAuthentication):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrAuthorization):
		status = http.StatusForbidden
	}

	msg := service.MsgInternal
	if status != http.StatusInternalServerError || errors.Is(err, domain.ErrUnavailable) {
		msg = domain.MessageOf(err, service.MsgInternal)
	}

	if status == http.StatusInternalServerError {
		h.log.WithError(err).WithFields(logrus.Fields{
			"request_id": requestID(c),
			"path":       c.FullPath(),
		}).Error("request failed")
		if domain.IsRetryable(err) {
			c.Header("Retry-After", "1")
		}
	}

	c.AbortWithStatusJSON(status, gin.H{"message": msg})
}
