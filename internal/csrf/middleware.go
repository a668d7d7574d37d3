package csrf

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	HeaderName = "X-CSRF-Token"
	BodyField  = "_csrf"

	maxPeekBody = 1 << 20
)

// Middleware rejects state-changing requests that do not carry a valid
// token in the X-CSRF-Token header or the _csrf JSON body field. Rejected
// requests are aborted before any handler runs.
func Middleware(issuer *Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		token := c.GetHeader(HeaderName)
		if token == "" {
			token = tokenFromBody(c.Request)
		}
		if !issuer.Validate(token) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "invalid csrf token",
				"code":  "CSRF_INVALID",
			})
			return
		}
		c.Next()
	}
}

// tokenFromBody reads the _csrf field and restores the body for binding.
func tokenFromBody(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	b, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBody))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(b))
	if err != nil || len(b) == 0 {
		return ""
	}
	var holder struct {
		Token string `json:"_csrf"`
	}
	if err := json.Unmarshal(b, &holder); err != nil {
		return ""
	}
	return holder.Token
}
