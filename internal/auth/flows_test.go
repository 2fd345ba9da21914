package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"socialhub/internal/notifications"
	"socialhub/internal/pending"
	"socialhub/internal/security"
	"socialhub/internal/shared/config"
	"socialhub/internal/shared/constants"
	"socialhub/internal/shared/middleware"
	"socialhub/internal/shared/utils/response"
	"socialhub/internal/tokens"
	"socialhub/internal/users"
	"socialhub/pkg/logger"
)

type recordingDispatcher struct {
	requests []notifications.ConfirmationRequest
}

func (d *recordingDispatcher) EnqueueConfirmation(_ context.Context, req notifications.ConfirmationRequest) {
	d.requests = append(d.requests, req)
}

type harness struct {
	engine     *gin.Engine
	repo       *mockRepo
	mr         *miniredis.Miniredis
	dispatcher *recordingDispatcher
	tokens     *tokens.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	log := logger.Discard()
	store := pending.NewStore(client, pending.Options{OpTimeout: time.Second}, log)

	tokenService := newTestTokens()
	cookies := tokens.NewCookies(config.CookieConfig{Path: "/"}, tokenService.AccessTTL(), tokenService.RefreshTTL())
	repo := new(mockRepo)
	dispatcher := &recordingDispatcher{}

	gate := NewGate(repo, tokenService, log)
	ttl := config.PendingConfig{ConfirmTTL: 1800 * time.Second, ResetTTL: 600 * time.Second}
	svc := NewService(gate, repo, tokenService, store, dispatcher, ttl, log)

	engine := gin.New()
	engine.Use(middleware.SessionRefresh(tokenService, cookies, log, middleware.SessionOptions{}))
	NewRouter(NewController(svc, cookies, "http://example.com/"), gate).SetupRoutes(engine.Group("/api/v1"))

	return &harness{
		engine:     engine,
		repo:       repo,
		mr:         mr,
		dispatcher: dispatcher,
		tokens:     tokenService,
	}
}

func (h *harness) do(method, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	switch b := body.(type) {
	case nil:
		req = httptest.NewRequest(method, path, nil)
	case url.Values:
		req = httptest.NewRequest(method, path, strings.NewReader(b.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	default:
		raw, _ := json.Marshal(b)
		req = httptest.NewRequest(method, path, strings.NewReader(string(raw)))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.StandardApiResponse {
	t.Helper()
	var body response.StandardApiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func cookieNamed(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, ck := range w.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

func requireSessionCookies(t *testing.T, w *httptest.ResponseRecorder) (*http.Cookie, *http.Cookie) {
	t.Helper()
	access := cookieNamed(w, tokens.AccessCookieName)
	refresh := cookieNamed(w, tokens.RefreshCookieName)
	require.NotNil(t, access)
	require.NotNil(t, refresh)

	assert.True(t, strings.HasPrefix(access.Value, tokens.BearerPrefix))
	assert.True(t, access.HttpOnly)
	assert.True(t, refresh.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, access.SameSite)
	assert.Equal(t, http.SameSiteLaxMode, refresh.SameSite)
	assert.Equal(t, 1800, access.MaxAge)
	assert.Equal(t, 604800, refresh.MaxAge)
	return access, refresh
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	alice := newUser(t, "alice", "correct horse", true)
	h.repo.On("FindByUsername", mock.Anything, "alice").Return(alice, nil)

	t.Run("json", func(t *testing.T) {
		w := h.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "alice", "password": "correct horse"})
		require.Equal(t, http.StatusOK, w.Code)
		access, _ := requireSessionCookies(t, w)

		sub, err := h.tokens.Subject(tokens.StripBearer(access.Value))
		require.NoError(t, err)
		require.Equal(t, "alice", sub)
	})

	t.Run("form", func(t *testing.T) {
		w := h.do(http.MethodPost, "/api/v1/auth/login", url.Values{"username": {"alice"}, "password": {"correct horse"}})
		require.Equal(t, http.StatusOK, w.Code)
		requireSessionCookies(t, w)
	})

	t.Run("wrong password", func(t *testing.T) {
		w := h.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "alice", "password": "nope"})
		require.Equal(t, http.StatusUnauthorized, w.Code)
		require.Equal(t, "incorrect credentials", decode(t, w).Message)
		require.Nil(t, cookieNamed(w, tokens.AccessCookieName))
	})

	t.Run("missing fields", func(t *testing.T) {
		w := h.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "alice"})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestLogout(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/api/v1/auth/logout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	for _, name := range []string{tokens.AccessCookieName, tokens.RefreshCookieName} {
		ck := cookieNamed(w, name)
		require.NotNil(t, ck, name)
		require.Empty(t, ck.Value)
		require.Negative(t, ck.MaxAge)
	}
}

func TestMe(t *testing.T) {
	h := newHarness(t)
	alice := newUser(t, "alice", "correct horse", true)
	h.repo.On("FindByUsername", mock.Anything, "alice").Return(alice, nil)

	w := h.do(http.MethodGet, "/api/v1/auth/me", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	pair, err := h.tokens.IssuePair("alice")
	require.NoError(t, err)

	w = h.do(http.MethodGet, "/api/v1/auth/me", nil, &http.Cookie{Name: tokens.AccessCookieName, Value: tokens.BearerPrefix + pair.AccessToken})
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w).Data.(map[string]interface{})
	require.Equal(t, "alice", data["username"])
	require.NotContains(t, w.Body.String(), alice.PasswordHash)

	// refresh cookie alone: the middleware renews and the gate sees the new token
	w = h.do(http.MethodGet, "/api/v1/auth/me", nil, &http.Cookie{Name: tokens.RefreshCookieName, Value: pair.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, cookieNamed(w, tokens.AccessCookieName))
}

func registerForm(username, email string) map[string]string {
	return map[string]string{
		"username":  username,
		"email":     email,
		"password":  "long-enough-pw",
		"password2": "long-enough-pw",
	}
}

func TestRegister_Conflicts(t *testing.T) {
	h := newHarness(t)
	h.repo.On("UsernameExists", mock.Anything, "alice").Return(true, nil)
	h.repo.On("UsernameExists", mock.Anything, "newbie").Return(false, nil)
	h.repo.On("EmailExists", mock.Anything, "taken@example.com").Return(true, nil)

	w := h.do(http.MethodPost, "/api/v1/auth/register", registerForm("alice", "fresh@example.com"))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "username already taken", decode(t, w).Message)

	w = h.do(http.MethodPost, "/api/v1/auth/register", registerForm("newbie", "taken@example.com"))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "email already registered", decode(t, w).Message)

	require.Empty(t, h.dispatcher.requests)
	require.Empty(t, h.mr.Keys())
	h.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegister_PasswordMismatch(t *testing.T) {
	h := newHarness(t)
	form := registerForm("newbie", "newbie@example.com")
	form["password2"] = "something-else"

	w := h.do(http.MethodPost, "/api/v1/auth/register", form)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "passwords do not match", decode(t, w).Message)
}

func TestRegister_StoreDown(t *testing.T) {
	h := newHarness(t)
	h.repo.On("UsernameExists", mock.Anything, "newbie").Return(false, nil)
	h.repo.On("EmailExists", mock.Anything, "newbie@example.com").Return(false, nil)
	h.mr.Close()

	w := h.do(http.MethodPost, "/api/v1/auth/register", registerForm("newbie", "newbie@example.com"))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Empty(t, h.dispatcher.requests)
}

func TestRegisterThenConfirm(t *testing.T) {
	h := newHarness(t)
	h.repo.On("UsernameExists", mock.Anything, "newbie").Return(false, nil)
	h.repo.On("EmailExists", mock.Anything, "newbie@example.com").Return(false, nil)
	h.repo.On("Create", mock.Anything, mock.MatchedBy(func(u *users.User) bool {
		ok, err := security.VerifyPassword("long-enough-pw", u.PasswordHash)
		return u.Username == "newbie" && u.IsActive && ok && err == nil
	})).Return(nil).Once()

	w := h.do(http.MethodPost, "/api/v1/auth/register", registerForm("newbie", "newbie@example.com"))
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Len(t, h.dispatcher.requests, 1)
	sent := h.dispatcher.requests[0]
	require.Equal(t, notifications.KindRegister, sent.Kind)
	require.Equal(t, "newbie@example.com", sent.Recipient)
	require.Equal(t, "http://example.com", sent.BaseURL)
	require.NotEmpty(t, sent.Token)
	require.Equal(t, 1800*time.Second, h.mr.TTL(constants.BuildPendingActionKey(sent.Token)))

	// the plaintext never reaches redis
	raw, err := h.mr.Get(constants.BuildPendingActionKey(sent.Token))
	require.NoError(t, err)
	require.NotContains(t, raw, "long-enough-pw")

	w = h.do(http.MethodGet, "/api/v1/auth/confirm?token="+sent.Token, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	requireSessionCookies(t, w)

	w = h.do(http.MethodGet, "/api/v1/auth/confirm?token="+sent.Token, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "link expired or invalid", decode(t, w).Message)

	h.repo.AssertNumberOfCalls(t, "Create", 1)
}

func TestConfirm_Expired(t *testing.T) {
	h := newHarness(t)
	h.repo.On("UsernameExists", mock.Anything, "newbie").Return(false, nil)
	h.repo.On("EmailExists", mock.Anything, "newbie@example.com").Return(false, nil)

	w := h.do(http.MethodPost, "/api/v1/auth/register", registerForm("newbie", "newbie@example.com"))
	require.Equal(t, http.StatusAccepted, w.Code)
	token := h.dispatcher.requests[0].Token

	h.mr.FastForward(31 * time.Minute)

	w = h.do(http.MethodGet, "/api/v1/auth/confirm?token="+token, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	h.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestForgotAndResetPassword(t *testing.T) {
	h := newHarness(t)
	bob := newUser(t, "bob", "old-password", true)
	h.repo.On("FindByEmail", mock.Anything, "bob@example.com").Return(bob, nil)
	h.repo.On("SetPasswordHash", mock.Anything, bob, mock.MatchedBy(func(hash string) bool {
		ok, err := security.VerifyPassword("brand-new-pw", hash)
		return ok && err == nil
	})).Return(nil).Once()

	w := h.do(http.MethodPost, "/api/v1/auth/forgot-password", map[string]string{"email": "bob@example.com"})
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Len(t, h.dispatcher.requests, 1)
	sent := h.dispatcher.requests[0]
	require.Equal(t, notifications.KindResetPassword, sent.Kind)
	require.Equal(t, notifications.TemplateResetPassword, sent.Template)
	require.Equal(t, 600*time.Second, h.mr.TTL(constants.BuildPendingActionKey(sent.Token)))

	// peeking does not consume
	for i := 0; i < 2; i++ {
		w = h.do(http.MethodGet, "/api/v1/auth/reset-password?token="+sent.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "bob@example.com", decode(t, w).Data.(map[string]interface{})["email"])
	}

	reset := map[string]string{"token": sent.Token, "new_password": "brand-new-pw", "new_password2": "brand-new-pw"}
	w = h.do(http.MethodPost, "/api/v1/auth/reset-password", reset)
	require.Equal(t, http.StatusOK, w.Code)
	requireSessionCookies(t, w)

	w = h.do(http.MethodPost, "/api/v1/auth/reset-password", reset)
	require.Equal(t, http.StatusBadRequest, w.Code)

	h.repo.AssertNumberOfCalls(t, "SetPasswordHash", 1)
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	h := newHarness(t)
	h.repo.On("FindByEmail", mock.Anything, "nobody@example.com").Return(nil, users.ErrUserNotFound)

	w := h.do(http.MethodPost, "/api/v1/auth/forgot-password", map[string]string{"email": "nobody@example.com"})
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Empty(t, h.dispatcher.requests)
}

func TestResetPassword_RejectsOtherTokenKinds(t *testing.T) {
	h := newHarness(t)
	h.repo.On("UsernameExists", mock.Anything, "newbie").Return(false, nil)
	h.repo.On("EmailExists", mock.Anything, "newbie@example.com").Return(false, nil)

	w := h.do(http.MethodPost, "/api/v1/auth/register", registerForm("newbie", "newbie@example.com"))
	require.Equal(t, http.StatusAccepted, w.Code)
	token := h.dispatcher.requests[0].Token

	w = h.do(http.MethodPost, "/api/v1/auth/reset-password?token="+token, map[string]string{"new_password": "brand-new-pw", "new_password2": "brand-new-pw"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// the registration token survives the misuse
	require.True(t, h.mr.Exists(constants.BuildPendingActionKey(token)))
}

func TestResetPassword_Mismatch(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/api/v1/auth/reset-password", map[string]string{"token": "abc", "new_password": "brand-new-pw", "new_password2": "different-pw"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "passwords do not match", decode(t, w).Message)
}

func TestRegister_EmailCaseVariantConflicts(t *testing.T) {
	h := newHarness(t)
	h.repo.On("UsernameExists", mock.Anything, "newbie").Return(false, nil)
	h.repo.On("EmailExists", mock.Anything, "alice@example.com").Return(true, nil)

	w := h.do(http.MethodPost, "/api/v1/auth/register", registerForm("newbie", "Alice@Example.COM"))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "email already registered", decode(t, w).Message)
	require.Empty(t, h.mr.Keys())
	require.Empty(t, h.dispatcher.requests)
}

func TestConfirm_DuplicateOnCreate(t *testing.T) {
	h := newHarness(t)
	h.repo.On("UsernameExists", mock.Anything, "newbie").Return(false, nil)
	h.repo.On("EmailExists", mock.Anything, "newbie@example.com").Return(false, nil)
	h.repo.On("Create", mock.Anything, mock.Anything).Return(users.ErrDuplicateUser)

	w := h.do(http.MethodPost, "/api/v1/auth/register", registerForm("newbie", "NewBie@example.com"))
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, "newbie@example.com", h.dispatcher.requests[0].Recipient)

	w = h.do(http.MethodGet, "/api/v1/auth/confirm?token="+h.dispatcher.requests[0].Token, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "account already exists", decode(t, w).Message)
}

func TestForgotPassword_NormalizesEmail(t *testing.T) {
	h := newHarness(t)
	h.repo.On("FindByEmail", mock.Anything, "bob@example.com").Return(newUser(t, "bob", "old-password", true), nil)

	w := h.do(http.MethodPost, "/api/v1/auth/forgot-password", map[string]string{"email": "BOB@Example.com"})
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, "bob@example.com", h.dispatcher.requests[0].Recipient)
}

func TestForgotPassword_IgnoresHostHeader(t *testing.T) {
	h := newHarness(t)
	h.repo.On("FindByEmail", mock.Anything, "bob@example.com").Return(newUser(t, "bob", "old-password", true), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/forgot-password", strings.NewReader(`{"email":"bob@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Host = "attacker.test"
	req.Header.Set("X-Forwarded-Host", "attacker.test")
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, "http://example.com", h.dispatcher.requests[0].BaseURL)
}

func TestPasswordByteLimit(t *testing.T) {
	h := newHarness(t)
	long := strings.Repeat("é", 40) // 80 bytes

	form := registerForm("newbie", "newbie@example.com")
	form["password"], form["password2"] = long, long
	w := h.do(http.MethodPost, "/api/v1/auth/register", form)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "Validation failed", decode(t, w).Message)

	w = h.do(http.MethodPost, "/api/v1/auth/reset-password", map[string]string{"token": "abc", "new_password": long, "new_password2": long})
	require.Equal(t, http.StatusBadRequest, w.Code)

	h.repo.AssertNotCalled(t, "UsernameExists", mock.Anything, mock.Anything)
}

func TestSessionCookiesSetByHandlersSurviveRenewal(t *testing.T) {
	h := newHarness(t)
	h.repo.On("FindByUsername", mock.Anything, "bob").Return(newUser(t, "bob", "bobs-password", true), nil)

	alice, err := h.tokens.IssueRefresh("alice")
	require.NoError(t, err)
	refresh := &http.Cookie{Name: tokens.RefreshCookieName, Value: alice}

	accessCookies := func(w *httptest.ResponseRecorder) []*http.Cookie {
		var out []*http.Cookie
		for _, ck := range w.Result().Cookies() {
			if ck.Name == tokens.AccessCookieName {
				out = append(out, ck)
			}
		}
		return out
	}

	w := h.do(http.MethodPost, "/api/v1/auth/logout", nil, refresh)
	require.Equal(t, http.StatusOK, w.Code)
	got := accessCookies(w)
	require.Len(t, got, 1)
	require.Empty(t, got[0].Value)

	w = h.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "bob", "password": "bobs-password"}, refresh)
	require.Equal(t, http.StatusOK, w.Code)
	got = accessCookies(w)
	require.Len(t, got, 1)
	sub, err := h.tokens.Subject(tokens.StripBearer(got[0].Value))
	require.NoError(t, err)
	require.Equal(t, "bob", sub)
}
