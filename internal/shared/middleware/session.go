package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"socialhub/internal/shared/utils/response"
	"socialhub/internal/tokens"
	"socialhub/pkg/logger"
)

// AccessRenewer is the part of the token service the session middleware needs
type AccessRenewer interface {
	Validate(token string) bool
	RenewAccess(refreshToken string) (string, error)
}

// SessionOptions tune SessionRefresh
type SessionOptions struct {
	// UnauthorizedStatus is returned when the refresh token is rejected. Defaults to 401.
	UnauthorizedStatus int
}

// SessionRefresh keeps cookie sessions alive.
//
// A valid access token passes through untouched. An expired or missing access
// token with a usable refresh token is renewed: the new token is visible to
// the rest of the chain via AccessToken(c) and is written back as the
// access-token cookie once the handler responds. A rejected refresh token
// ends the request with both cookies cleared. Requests carrying neither
// token continue anonymously.
func SessionRefresh(renewer AccessRenewer, cookies *tokens.Cookies, log *logger.Logger, opts SessionOptions) gin.HandlerFunc {
	unauthorized := opts.UnauthorizedStatus
	if unauthorized == 0 {
		unauthorized = http.StatusUnauthorized
	}
	log = log.WithComponent("session")

	return func(c *gin.Context) {
		access := tokens.StripBearer(readCookie(c, tokens.AccessCookieName))
		refresh := readCookie(c, tokens.RefreshCookieName)

		if access != "" && renewer.Validate(access) {
			c.Set(ContextAccessToken, access)
			c.Next()
			return
		}

		if refresh == "" {
			c.Next()
			return
		}

		renewed, err := renew(renewer, refresh)
		if err != nil {
			cookies.Clear(c.Writer)
			if errors.Is(err, tokens.ErrInvalidRefreshToken) {
				log.LogAuthFailure(c.Request.Context(), "", "refresh token rejected")
				response.RespondJSON(c, "error", unauthorized, "Session expired, please log in again", nil, nil)
				c.Abort()
				return
			}
			log.WithError(err).ErrorContext(c.Request.Context(), "session renewal failed",
				slog.String("path", c.Request.URL.Path),
			)
			response.RespondJSON(c, "error", http.StatusInternalServerError, "Internal server error", nil, nil)
			c.Abort()
			return
		}

		c.Set(ContextAccessToken, renewed)
		c.Set(ContextRenewed, true)
		replaceRequestCookie(c.Request, tokens.AccessCookieName, tokens.BearerPrefix+renewed)

		w := &renewingWriter{ResponseWriter: c.Writer, cookie: cookies.AccessCookie(renewed)}
		c.Writer = w
		c.Next()
		// handlers that never wrote a body still get the cookie
		w.inject()
		c.Writer = w.ResponseWriter

		log.LogTokenRenewed(c.Request.Context(), c.Request.URL.Path)
	}
}

// renew converts a panic inside the token service into an error
func renew(renewer AccessRenewer, refresh string) (token string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during renewal: %v", r)
		}
	}()
	return renewer.RenewAccess(refresh)
}

// renewingWriter adds the renewed access cookie right before the first
// header or body byte reaches the client
type renewingWriter struct {
	gin.ResponseWriter
	cookie   *http.Cookie
	injected bool
}

// inject leaves the response alone when the handler already set or cleared
// the access cookie itself, e.g. on login or logout
func (w *renewingWriter) inject() {
	if w.injected || w.ResponseWriter.Written() {
		return
	}
	w.injected = true
	if setsCookie(w.ResponseWriter.Header(), w.cookie.Name) {
		return
	}
	http.SetCookie(w.ResponseWriter, w.cookie)
}

func setsCookie(h http.Header, name string) bool {
	prefix := name + "="
	for _, line := range h.Values("Set-Cookie") {
		if strings.HasPrefix(strings.TrimSpace(line), prefix) {
			return true
		}
	}
	return false
}

func (w *renewingWriter) WriteHeader(code int) {
	w.inject()
	w.ResponseWriter.WriteHeader(code)
}

func (w *renewingWriter) WriteHeaderNow() {
	w.inject()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *renewingWriter) Write(data []byte) (int, error) {
	w.inject()
	return w.ResponseWriter.Write(data)
}

func (w *renewingWriter) WriteString(s string) (int, error) {
	w.inject()
	return w.ResponseWriter.WriteString(s)
}

func (w *renewingWriter) Flush() {
	w.inject()
	w.ResponseWriter.Flush()
}
