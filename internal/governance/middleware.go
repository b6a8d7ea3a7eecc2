package governance

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HeaderConfirmed marks a destructive request as confirmed by the caller.
const HeaderConfirmed = "X-Heady-Confirmed"

// maxInspectBody bounds how much of a body is read for inspection.
const maxInspectBody = 1 << 20

// IdentityFunc reports whether the request carried a client identity.
type IdentityFunc func(c *gin.Context) bool

// Confirmed reports whether a header value confirms the request.
func Confirmed(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "no":
		return false
	}
	return true
}

// Middleware gates every request that is not bypassed. Denied requests get a
// 403; allowed ones are audited and marked as checked on their context.
func (in *Interceptor) Middleware(identity IdentityFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if in.ShouldBypass(path) {
			c.Next()
			return
		}

		req := Request{
			Method:     c.Request.Method,
			Path:       path,
			Confirmed:  Confirmed(c.GetHeader(HeaderConfirmed)),
			RemoteAddr: c.ClientIP(),
		}
		if identity != nil {
			req.ClientIdentity = identity(c)
		}

		if c.Request.Body != nil {
			body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxInspectBody))
			if err != nil {
				in.logger.Warn("read request body", zap.String("path", path), zap.Error(err))
			}
			rest := c.Request.Body
			c.Request.Body = readCloser{io.MultiReader(bytes.NewReader(body), rest), rest}
			req.Body = body
		}

		d := in.Check(req)
		if denied, ok := d.(Denied); ok {
			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "Governance check failed",
				"reason":  denied.Reason,
			})
			c.Abort()
			return
		}

		in.Audit(c.Request.Context(), req)
		c.Request = c.Request.WithContext(WithChecked(c.Request.Context()))
		c.Next()
	}
}

type readCloser struct {
	io.Reader
	io.Closer
}
