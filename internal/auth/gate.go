package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"socialhub/internal/security"
	"socialhub/internal/shared/middleware"
	"socialhub/internal/shared/utils/response"
	"socialhub/internal/tokens"
	"socialhub/internal/users"
	"socialhub/pkg/logger"
)

const contextUserKey = "current_user"

// UserFinder is the lookup the gate needs from the user store
type UserFinder interface {
	FindByUsername(ctx context.Context, username string) (*users.User, error)
}

// Gate checks credentials and resolves the user behind a session
type Gate struct {
	users  UserFinder
	tokens *tokens.Service
	log    *logger.Logger
}

func NewGate(finder UserFinder, tokenService *tokens.Service, log *logger.Logger) *Gate {
	return &Gate{
		users:  finder,
		tokens: tokenService,
		log:    log.WithComponent("auth"),
	}
}

// Authenticate verifies username and password. Unknown users and wrong
// passwords fail with the same 401 so usernames cannot be enumerated.
func (g *Gate) Authenticate(ctx context.Context, username, password string) (*users.User, error) {
	user, err := g.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			g.log.LogAuthFailure(ctx, username, "unknown user")
			return nil, incorrectCredentials()
		}
		g.log.Critical(ctx, "authentication lookup failed", slog.String("username", username), slog.Any("error", err))
		return nil, internalError(err)
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		g.log.ErrorContext(ctx, "stored password hash unreadable", slog.String("username", username), slog.Any("error", err))
		return nil, incorrectCredentials()
	}
	if !ok {
		g.log.LogAuthFailure(ctx, username, "wrong password")
		return nil, incorrectCredentials()
	}

	if !user.IsActive {
		g.log.LogAuthFailure(ctx, username, "account disabled")
		return nil, newAuthError(http.StatusForbidden, ErrAccountDisabled)
	}

	g.log.LogAuthSuccess(ctx, username, "password")
	return user, nil
}

// CurrentUserFromCookie resolves the user named by an access token.
// The value may carry the "Bearer " prefix used in the cookie.
func (g *Gate) CurrentUserFromCookie(ctx context.Context, accessToken string) (*users.User, error) {
	token := tokens.StripBearer(accessToken)
	if token == "" {
		return nil, newAuthError(http.StatusUnauthorized, ErrNotAuthenticated)
	}

	username, err := g.tokens.Subject(token)
	if err != nil {
		if errors.Is(err, tokens.ErrConfiguration) {
			g.log.Critical(ctx, "token service misconfigured", slog.Any("error", err))
			return nil, internalError(err)
		}
		return nil, &AuthError{Status: http.StatusUnauthorized, Message: ErrNotAuthenticated.Error(), Err: err}
	}

	user, err := g.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return nil, &AuthError{Status: http.StatusUnauthorized, Message: "user not found", Err: err}
		}
		g.log.Critical(ctx, "current user lookup failed", slog.String("username", username), slog.Any("error", err))
		return nil, internalError(err)
	}
	return user, nil
}

// RequireUser rejects requests without a resolvable session and stores the
// user for CurrentUser. It must run after middleware.SessionRefresh.
func (g *Gate) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := g.CurrentUserFromCookie(c.Request.Context(), middleware.AccessToken(c))
		if err != nil {
			status, message := statusOf(err)
			response.RespondJSON(c, "error", status, message, nil, nil)
			c.Abort()
			return
		}
		c.Set(contextUserKey, user)
		c.Next()
	}
}

// CurrentUser returns the user stored by RequireUser
func CurrentUser(c *gin.Context) (*users.User, bool) {
	v, ok := c.Get(contextUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*users.User)
	return user, ok
}
