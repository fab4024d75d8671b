package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ResultKey is the gin context key holding the *Result of an authenticated request.
const ResultKey = "auth_result"

// GinAuth authenticates the request with a bearer token or basic credentials.
func (s *Service) GinAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := s.authenticate(c.Request)
		if err != nil {
			c.Header("WWW-Authenticate", `Basic realm="supervisr"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Set(ResultKey, res)
		c.Next()
	}
}

// GinRequire rejects requests whose role does not cover need. It must run after GinAuth.
func GinRequire(need Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(ResultKey)
		res, _ := v.(*Result)
		if !ok || res == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if !res.Role.Allows(need) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": ErrForbidden.Error()})
			return
		}
		c.Next()
	}
}

// GinLogin handles POST {base}/login.
func (s *Service) GinLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON: " + err.Error()})
		return
	}
	tok, err := s.Login(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tok)
}

func (s *Service) authenticate(r *http.Request) (*Result, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return s.Verify(strings.TrimSpace(token))
		}
	}
	if user, pass, ok := r.BasicAuth(); ok {
		return s.Basic(user, pass)
	}
	return nil, ErrInvalidCredentials
}
