package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"socialhub/internal/tokens"
	"socialhub/pkg/logger"
)

// Context keys set by the session middleware
const (
	ContextAccessToken = "access_token"
	ContextRenewed     = "access_token_renewed"
	ContextRequestID   = "request_id"
)

const HeaderRequestID = "X-Request-ID"

// AccessToken returns the access token for the current request without the
// scheme prefix. A token minted by SessionRefresh earlier in the chain wins
// over the cookie the client sent.
func AccessToken(c *gin.Context) string {
	if v, ok := c.Get(ContextAccessToken); ok {
		if token, ok := v.(string); ok && token != "" {
			return token
		}
	}
	return tokens.StripBearer(readCookie(c, tokens.AccessCookieName))
}

func readCookie(c *gin.Context, name string) string {
	value, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}

// replaceRequestCookie rewrites the Cookie header so handlers reading the
// raw request see value instead of what the client sent
func replaceRequestCookie(r *http.Request, name, value string) {
	existing := r.Cookies()
	r.Header.Del("Cookie")

	replaced := false
	for _, ck := range existing {
		if ck.Name == name {
			ck.Value = value
			replaced = true
		}
		r.AddCookie(ck)
	}
	if !replaced {
		r.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}

// RequestID tags each request with X-Request-ID, keeping one sent by an upstream proxy
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(ContextRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestLogger logs every request once the handler chain has finished.
// Server errors recorded with c.Error are logged with their cause.
func RequestLogger(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log := l
		if id := c.GetString(ContextRequestID); id != "" {
			log = l.WithRequestID(id)
		}
		if status := c.Writer.Status(); status >= http.StatusInternalServerError && len(c.Errors) > 0 {
			log.LogHTTPError(c, c.Errors.Last().Err, status)
		}
		log.LogHTTPRequest(c, time.Since(start))
	}
}
