package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	userIDContextKey     = "auth_user_id"
	authTokenContextKey  = "auth_token"
	cookieAuthContextKey = "auth_from_cookie"
)

// Middleware resolves the caller's credential, validates it, and records
// the authenticated user plus how the credential arrived. Requests with
// no credential or a bad one stop here with 401.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authToken, fromCookie := s.credential(c)
		if authToken == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		userID, err := s.ValidateToken(c.Request.Context(), authToken)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(userIDContextKey, userID)
		c.Set(authTokenContextKey, authToken)
		c.Set(cookieAuthContextKey, fromCookie)
		c.Next()
	}
}

// CSRFMiddleware guards mutating requests whose credential rode in on the
// auth cookie: those must double-submit the CSRF token as header and
// cookie. Reads and explicit bearer requests carry no ambient credential
// and pass through. Must run after Middleware.
func (s *Service) CSRFMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		if !c.GetBool(cookieAuthContextKey) {
			c.Next()
			return
		}
		sent := c.GetHeader(s.csrfHeaderName)
		stored, err := c.Cookie(s.csrfCookieName)
		if err != nil || sent == "" || sent != stored {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "csrf token mismatch"})
			return
		}
		c.Next()
	}
}

// credential returns the bearer token and whether it came from the auth
// cookie rather than the Authorization header. The header wins when both
// are present.
func (s *Service) credential(c *gin.Context) (string, bool) {
	header := c.GetHeader(s.headerName)
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[len("bearer "):]), false
	}
	if token, err := c.Cookie(s.cookieName); err == nil && token != "" {
		return token, true
	}
	return "", false
}

// UserIDFromContext retrieves the authenticated user id set by Middleware.
func UserIDFromContext(c *gin.Context) (int64, bool) {
	val, ok := c.Get(userIDContextKey)
	if !ok {
		return 0, false
	}
	userID, ok := val.(int64)
	return userID, ok
}

// AuthTokenFromContext retrieves the validated token set by Middleware.
func AuthTokenFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(authTokenContextKey)
	if !ok {
		return "", false
	}
	token, ok := val.(string)
	return token, ok
}
