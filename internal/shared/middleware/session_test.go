package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialhub/internal/shared/config"
	"socialhub/internal/tokens"
	"socialhub/pkg/logger"
)

const testSecret = "session-test-secret"

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

type sessionFixture struct {
	clock   *clock
	service *tokens.Service
	cookies *tokens.Cookies
	engine  *gin.Engine
	calls   int
	seen    string
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &sessionFixture{clock: &clock{t: time.Unix(1_700_000_000, 0)}}
	codec := tokens.NewCodec(testSecret, "HS256").WithClock(f.clock.Now)
	f.service = tokens.NewService(codec, 30*time.Minute, 7*24*time.Hour)
	f.cookies = tokens.NewCookies(config.CookieConfig{}, f.service.AccessTTL(), f.service.RefreshTTL())

	f.engine = gin.New()
	f.engine.Use(SessionRefresh(f.service, f.cookies, logger.Discard(), SessionOptions{}))
	f.engine.GET("/feed", func(c *gin.Context) {
		f.calls++
		f.seen = AccessToken(c)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	f.engine.GET("/empty", func(c *gin.Context) {
		f.calls++
	})
	return f
}

func (f *sessionFixture) do(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func responseCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, ck := range w.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

func TestSessionRefresh_Anonymous(t *testing.T) {
	f := newSessionFixture(t)

	w := f.do("/feed")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, f.calls)
	require.Empty(t, f.seen)
	require.Empty(t, w.Result().Cookies())
}

func TestSessionRefresh_ValidAccess(t *testing.T) {
	f := newSessionFixture(t)
	access, err := f.service.IssueAccess("alice")
	require.NoError(t, err)

	w := f.do("/feed", f.cookies.AccessCookie(access))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, f.calls)
	require.Equal(t, access, f.seen)
	require.Nil(t, responseCookie(w, tokens.AccessCookieName))
}

func TestSessionRefresh_RenewsExpiredAccess(t *testing.T) {
	f := newSessionFixture(t)

	pair, err := f.service.IssuePair("alice")
	require.NoError(t, err)
	originalExp := f.clock.t.Add(30 * time.Minute).Unix()

	// access expired one second ago, refresh still valid
	f.clock.t = f.clock.t.Add(30*time.Minute + time.Second)

	w := f.do("/feed", f.cookies.AccessCookie(pair.AccessToken), f.cookies.RefreshCookie(pair.RefreshToken))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, f.calls)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())

	renewed := responseCookie(w, tokens.AccessCookieName)
	require.NotNil(t, renewed)
	assert.True(t, renewed.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, renewed.SameSite)
	assert.Equal(t, 1800, renewed.MaxAge)

	newToken := tokens.StripBearer(renewed.Value)
	require.NotEqual(t, pair.AccessToken, newToken)
	require.Equal(t, newToken, f.seen)

	sub, err := f.service.Subject(newToken)
	require.NoError(t, err)
	require.Equal(t, "alice", sub)

	codec := tokens.NewCodec(testSecret, "HS256").WithClock(f.clock.Now)
	claims, err := codec.Decode(newToken)
	require.NoError(t, err)
	newExp, _ := claims.ExpiresAt()
	require.Greater(t, newExp, originalExp)

	// the refresh token is not rotated
	require.Nil(t, responseCookie(w, tokens.RefreshCookieName))
}

func TestSessionRefresh_RenewsWithoutAccessCookie(t *testing.T) {
	f := newSessionFixture(t)
	refresh, err := f.service.IssueRefresh("bob")
	require.NoError(t, err)

	w := f.do("/empty", f.cookies.RefreshCookie(refresh))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, f.calls)
	require.NotNil(t, responseCookie(w, tokens.AccessCookieName))
}

func TestSessionRefresh_ExpiredRefresh(t *testing.T) {
	f := newSessionFixture(t)
	pair, err := f.service.IssuePair("alice")
	require.NoError(t, err)

	f.clock.t = f.clock.t.Add(8 * 24 * time.Hour)

	w := f.do("/feed", f.cookies.AccessCookie(pair.AccessToken), f.cookies.RefreshCookie(pair.RefreshToken))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Zero(t, f.calls)

	for _, name := range []string{tokens.AccessCookieName, tokens.RefreshCookieName} {
		ck := responseCookie(w, name)
		require.NotNil(t, ck, name)
		require.Empty(t, ck.Value)
		require.Negative(t, ck.MaxAge)
	}
}

func TestSessionRefresh_CustomUnauthorizedStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := tokens.NewService(tokens.NewCodec(testSecret, "HS256"), time.Minute, time.Hour)
	cookies := tokens.NewCookies(config.CookieConfig{}, time.Minute, time.Hour)

	engine := gin.New()
	engine.Use(SessionRefresh(svc, cookies, logger.Discard(), SessionOptions{UnauthorizedStatus: http.StatusForbidden}))
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: tokens.RefreshCookieName, Value: "garbage"})
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
}

type brokenRenewer struct {
	panics bool
}

func (brokenRenewer) Validate(string) bool { return false }

func (b brokenRenewer) RenewAccess(string) (string, error) {
	if b.panics {
		panic("boom")
	}
	return "", tokens.ErrConfiguration
}

func TestSessionRefresh_UnexpectedErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cookies := tokens.NewCookies(config.CookieConfig{}, time.Minute, time.Hour)

	for name, renewer := range map[string]brokenRenewer{
		"error": {},
		"panic": {panics: true},
	} {
		t.Run(name, func(t *testing.T) {
			called := false
			engine := gin.New()
			engine.Use(SessionRefresh(renewer, cookies, logger.Discard(), SessionOptions{}))
			engine.GET("/", func(c *gin.Context) { called = true })

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(&http.Cookie{Name: tokens.RefreshCookieName, Value: "whatever"})
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)

			require.Equal(t, http.StatusInternalServerError, w.Code)
			require.False(t, called)
			require.NotNil(t, responseCookie(w, tokens.AccessCookieName))
			require.NotNil(t, responseCookie(w, tokens.RefreshCookieName))
		})
	}
}

func accessCookies(w *httptest.ResponseRecorder) []*http.Cookie {
	var out []*http.Cookie
	for _, ck := range w.Result().Cookies() {
		if ck.Name == tokens.AccessCookieName {
			out = append(out, ck)
		}
	}
	return out
}

func TestSessionRefresh_HandlerCookiesWin(t *testing.T) {
	f := newSessionFixture(t)
	f.engine.POST("/logout", func(c *gin.Context) {
		f.cookies.Clear(c.Writer)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	f.engine.POST("/login", func(c *gin.Context) {
		pair, err := f.service.IssuePair("bob")
		require.NoError(t, err)
		f.cookies.SetPair(c.Writer, pair)
		c.Status(http.StatusOK)
	})

	pair, err := f.service.IssuePair("alice")
	require.NoError(t, err)
	f.clock.t = f.clock.t.Add(31 * time.Minute)

	send := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.AddCookie(f.cookies.AccessCookie(pair.AccessToken))
		req.AddCookie(f.cookies.RefreshCookie(pair.RefreshToken))
		w := httptest.NewRecorder()
		f.engine.ServeHTTP(w, req)
		return w
	}

	t.Run("logout", func(t *testing.T) {
		w := send("/logout")
		require.Equal(t, http.StatusOK, w.Code)
		got := accessCookies(w)
		require.Len(t, got, 1)
		require.Empty(t, got[0].Value)
		require.Negative(t, got[0].MaxAge)
	})

	t.Run("login as someone else", func(t *testing.T) {
		w := send("/login")
		require.Equal(t, http.StatusOK, w.Code)
		got := accessCookies(w)
		require.Len(t, got, 1)
		sub, err := f.service.Subject(tokens.StripBearer(got[0].Value))
		require.NoError(t, err)
		require.Equal(t, "bob", sub)
	})
}
