// internal/server/auth_handlers.go
package server

import (
	"net/http"

	"dealdesk/internal/backend"
	"dealdesk/internal/common/errors"
	"dealdesk/internal/common/logger"
	"dealdesk/internal/session"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	backend  *backend.Service
	registry *session.Registry
	errs     *errors.ErrorHandler
	logger   logger.Logger
}

func NewAuthHandler(b *backend.Service, registry *session.Registry, errs *errors.ErrorHandler, log logger.Logger) *AuthHandler {
	return &AuthHandler{
		backend:  b,
		registry: registry,
		errs:     errs,
		logger:   log.WithFields(map[string]interface{}{"handler": "auth"}),
	}
}

type signUpRequest struct {
	Email    string            `json:"email"`
	Password string            `json:"password"`
	Attrs    map[string]string `json:"attrs"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signOutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHandler) SignUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errs.Respond(c, errors.NewValidationError("body", "malformed request body"))
		return
	}
	if req.Email == "" {
		h.errs.Respond(c, errors.NewValidationError("email", "is required"))
		return
	}
	if req.Password == "" {
		h.errs.Respond(c, errors.NewValidationError("password", "is required"))
		return
	}

	sess, err := h.backend.SignUp(c.Request.Context(), req.Email, req.Password, req.Attrs)
	if err != nil {
		h.errs.Respond(c, err)
		return
	}

	if _, err := h.registry.Attach(c.Request.Context(), sess.AccessToken, sess.Identity); err != nil {
		h.errs.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, sess)
}

func (h *AuthHandler) SignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errs.Respond(c, errors.NewValidationError("body", "malformed request body"))
		return
	}

	sess, err := h.backend.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.errs.Respond(c, err)
		return
	}

	if _, err := h.registry.Attach(c.Request.Context(), sess.AccessToken, sess.Identity); err != nil {
		h.errs.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, sess)
}

func (h *AuthHandler) SignOut(c *gin.Context) {
	var req signOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errs.Respond(c, errors.NewValidationError("body", "malformed request body"))
		return
	}

	token := bearerToken(c)
	if token != "" {
		h.registry.Drop(c.Request.Context(), token)
	}

	if err := h.backend.SignOut(c.Request.Context(), req.RefreshToken); err != nil {
		// The local session is already gone; remote revocation failure is
		// reported but the user is signed out either way.
		h.logger.WithError(err).Warn("remote sign-out failed", nil)
	}

	c.JSON(http.StatusOK, gin.H{"status": "signed out"})
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	if cookie, err := c.Cookie("session_token"); err == nil {
		return cookie
	}
	return ""
}
