// internal/guard/middleware.go
package guard

import (
	"net/http"
	"net/url"
	"strings"

	"dealdesk/internal/common/logger"
	"dealdesk/internal/models"
	"dealdesk/internal/session"

	"github.com/gin-gonic/gin"
)

// Context keys set by the middleware for admitted requests.
const (
	ContextIdentity = "identity"
	ContextProfile  = "profile"
	ContextSession  = "session"
)

// Middleware enforces the guard decision table on gin routes.
type Middleware struct {
	registry   *session.Registry
	signInPath string
	homePath   string
	logger     logger.Logger
}

func NewMiddleware(registry *session.Registry, signInPath, homePath string, log logger.Logger) *Middleware {
	if signInPath == "" {
		signInPath = "/signin"
	}
	if homePath == "" {
		homePath = "/"
	}
	return &Middleware{
		registry:   registry,
		signInPath: signInPath,
		homePath:   homePath,
		logger:     log.WithFields(map[string]interface{}{"component": "guard"}),
	}
}

// Require gates a route on an authenticated identity, and on one of the
// given roles when any are listed. The table is re-evaluated per request;
// nothing is cached across identity changes.
func (g *Middleware) Require(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			loading  bool
			identity *models.Identity
			profile  *models.Profile
			mgr      *session.Manager
		)

		token := bearerToken(c)
		if token != "" {
			var err error
			mgr, err = g.registry.Resolve(c.Request.Context(), token)
			if err != nil {
				g.logger.WithError(err).Error("session resolution failed", nil)
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
					"error": "session store unavailable",
				})
				return
			}
			if mgr != nil {
				loading = mgr.Loading()
				identity = mgr.Identity()
				profile = mgr.Profile()
			}
		}

		switch Evaluate(loading, identity, profile, roles...) {
		case OutcomeLoading:
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"status": "loading",
			})
		case OutcomeSignIn:
			c.Redirect(http.StatusFound, g.signInPath+"?redirect="+url.QueryEscape(c.Request.URL.RequestURI()))
			c.Abort()
		case OutcomeHome:
			c.Redirect(http.StatusFound, g.homePath)
			c.Abort()
		case OutcomeRender:
			c.Set(ContextIdentity, identity)
			c.Set(ContextProfile, profile)
			c.Set(ContextSession, mgr)
			c.Next()
		}
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := c.Cookie("session_token"); err == nil {
		return cookie
	}
	return ""
}
