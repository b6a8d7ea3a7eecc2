// Package auth identifies API clients by key.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderAPIKey carries the client key.
	HeaderAPIKey = "X-Heady-Api-Key"

	identityKey = "heady.identity"
)

// Config holds the accepted keys. With no keys every request passes and
// identity is the presence of the header.
type Config struct {
	Keys         []string
	SkipPrefixes []string
}

// DefaultConfig leaves health and metrics open.
func DefaultConfig() Config {
	return Config{SkipPrefixes: []string{"/health", "/metrics"}}
}

// Enforced reports whether requests without a valid key are rejected.
func (c Config) Enforced() bool {
	for _, k := range c.Keys {
		if k != "" {
			return true
		}
	}
	return false
}

func (c Config) skip(path string) bool {
	for _, p := range c.SkipPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func (c Config) valid(key string) bool {
	ok := false
	for _, k := range c.Keys {
		if k == "" {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			ok = true
		}
	}
	return ok
}

// Middleware records client identity on the context and, when keys are
// configured, rejects requests that do not present one of them.
func Middleware(cfg Config) gin.HandlerFunc {
	enforced := cfg.Enforced()
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderAPIKey))

		if !enforced {
			c.Set(identityKey, key != "")
			c.Next()
			return
		}

		if cfg.valid(key) {
			c.Set(identityKey, true)
			c.Next()
			return
		}
		if cfg.skip(c.Request.URL.Path) {
			c.Set(identityKey, false)
			c.Next()
			return
		}

		msg := "invalid api key"
		if key == "" {
			msg = "missing api key"
		}
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   msg,
		})
		c.Abort()
	}
}

// IdentityPresent reports whether the request carried a client identity.
func IdentityPresent(c *gin.Context) bool {
	return c.GetBool(identityKey)
}
