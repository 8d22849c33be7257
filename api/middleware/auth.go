package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/storesleuth/models"
)

// Auth guards the API with static keys. Clients present a key either as
// X-API-Key or as a bearer token, so both curl one-liners and SDK-style
// clients work unchanged. With no keys configured the middleware is a no-op
// (open instance, typically local development).
func Auth(apiKeys []string) gin.HandlerFunc {
	keys := make([][]byte, 0, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}
	if len(keys) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		presented := presentedKey(c)
		if presented == "" {
			unauthorized(c, "missing API key: send X-API-Key or Authorization: Bearer <key>")
			return
		}
		if !keyMatches(keys, presented) {
			unauthorized(c, "invalid API key")
			return
		}

		// Downstream middleware keys its rate limiting off this.
		c.Set("api_key", presented)
		c.Next()
	}
}

// keyMatches compares the presented key against every configured key in
// constant time per key, so response timing does not tell a caller how close
// a guess came.
func keyMatches(keys [][]byte, presented string) bool {
	p := []byte(presented)
	match := false
	for _, k := range keys {
		if subtle.ConstantTimeCompare(k, p) == 1 {
			match = true
		}
	}
	return match
}

// presentedKey reads X-API-Key first, then a bearer Authorization header.
func presentedKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	const prefix = "Bearer "
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, prefix) {
		return auth[len(prefix):]
	}
	return ""
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ExtractResponse{
		Success: false,
		Error: &models.ErrorDetail{
			Kind:    models.ErrKindUnauthorized,
			Message: msg,
		},
	})
}
