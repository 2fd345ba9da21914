package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"socialhub/internal/notifications"
	"socialhub/internal/pending"
	"socialhub/internal/security"
	"socialhub/internal/shared/config"
	"socialhub/internal/tokens"
	"socialhub/internal/users"
	"socialhub/pkg/logger"
)

// PendingStore is the one-time token store used by the confirmation flows
type PendingStore interface {
	Save(ctx context.Context, token string, kind pending.Kind, payload interface{}, ttl time.Duration) bool
	Get(ctx context.Context, token string) (*pending.Action, error)
	Consume(ctx context.Context, token string) (*pending.Action, error)
}

// Session is a signed-in user with the token pair to hand out as cookies
type Session struct {
	User   *users.User
	Tokens *tokens.TokenPair
}

type Service interface {
	Login(ctx context.Context, req *LoginRequest) (*Session, error)
	StartRegistration(ctx context.Context, req *RegisterRequest, baseURL string) error
	ConfirmRegistration(ctx context.Context, token string) (*Session, error)
	ForgotPassword(ctx context.Context, req *ForgotPasswordRequest, baseURL string) error
	PeekReset(ctx context.Context, token string) (string, error)
	ResetPassword(ctx context.Context, req *ResetPasswordRequest) (*Session, error)
}

type service struct {
	gate       *Gate
	repo       users.Repository
	tokens     *tokens.Service
	pending    PendingStore
	dispatcher notifications.Dispatcher
	ttl        config.PendingConfig
	log        *logger.Logger
	now        func() time.Time
}

func NewService(
	gate *Gate,
	repo users.Repository,
	tokenService *tokens.Service,
	store PendingStore,
	dispatcher notifications.Dispatcher,
	ttl config.PendingConfig,
	log *logger.Logger,
) Service {
	return &service{
		gate:       gate,
		repo:       repo,
		tokens:     tokenService,
		pending:    store,
		dispatcher: dispatcher,
		ttl:        ttl,
		log:        log.WithComponent("auth"),
		now:        time.Now,
	}
}

func (s *service) Login(ctx context.Context, req *LoginRequest) (*Session, error) {
	user, err := s.gate.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}
	return s.newSession(ctx, user)
}

func (s *service) newSession(ctx context.Context, user *users.User) (*Session, error) {
	pair, err := s.tokens.IssuePair(user.Username)
	if err != nil {
		s.log.Critical(ctx, "token issue failed", slog.String("username", user.Username), slog.Any("error", err))
		return nil, internalError(err)
	}
	return &Session{User: user, Tokens: pair}, nil
}

// StartRegistration parks the form in the pending store and mails a
// confirmation link. No user row exists until the link is followed.
func (s *service) StartRegistration(ctx context.Context, req *RegisterRequest, baseURL string) error {
	if req.Password != req.Password2 {
		return newAuthError(http.StatusBadRequest, ErrPasswordMismatch)
	}
	email := users.NormalizeEmail(req.Email)
	if err := s.checkAvailable(ctx, req.Username, email); err != nil {
		return err
	}

	hash, err := security.HashPassword(req.Password)
	if err != nil {
		return hashError(err)
	}

	token := uuid.NewString()
	payload := pending.RegistrationPayload{
		Username:     req.Username,
		Email:        email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
	}
	if !s.pending.Save(ctx, token, pending.KindRegister, payload, s.ttl.ConfirmTTL) {
		return newAuthError(http.StatusServiceUnavailable, ErrPendingUnavailable)
	}

	s.dispatcher.EnqueueConfirmation(ctx, notifications.ConfirmationRequest{
		Kind:      notifications.KindRegister,
		Template:  notifications.TemplateConfirmEmail,
		Recipient: email,
		Token:     token,
		BaseURL:   baseURL,
		ExpiresAt: s.now().Add(s.ttl.ConfirmTTL),
	})
	return nil
}

// checkAvailable reports which field, if any, collides with an existing user
func (s *service) checkAvailable(ctx context.Context, username, email string) error {
	taken, err := s.repo.UsernameExists(ctx, username)
	if err != nil {
		return internalError(err)
	}
	if taken {
		return newAuthError(http.StatusBadRequest, ErrUsernameTaken)
	}

	taken, err = s.repo.EmailExists(ctx, email)
	if err != nil {
		return internalError(err)
	}
	if taken {
		return newAuthError(http.StatusBadRequest, ErrEmailTaken)
	}
	return nil
}

// ConfirmRegistration consumes a registration token and creates the user
func (s *service) ConfirmRegistration(ctx context.Context, token string) (*Session, error) {
	action, err := s.consume(ctx, token, pending.KindRegister)
	if err != nil {
		return nil, err
	}

	var form pending.RegistrationPayload
	if err := action.Decode(&form); err != nil {
		return nil, internalError(err)
	}

	// someone may have taken the name while the link sat in an inbox
	if err := s.checkAvailable(ctx, form.Username, form.Email); err != nil {
		return nil, err
	}

	user := &users.User{
		Username:     form.Username,
		Email:        form.Email,
		PasswordHash: form.PasswordHash,
		FirstName:    form.FirstName,
		LastName:     form.LastName,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, users.ErrDuplicateUser) {
			return nil, newAuthError(http.StatusBadRequest, ErrAccountExists)
		}
		return nil, internalError(err)
	}

	s.log.InfoContext(ctx, "registration confirmed", slog.String("username", user.Username))
	return s.newSession(ctx, user)
}

func (s *service) ForgotPassword(ctx context.Context, req *ForgotPasswordRequest, baseURL string) error {
	email := users.NormalizeEmail(req.Email)
	if _, err := s.repo.FindByEmail(ctx, email); err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return newAuthError(http.StatusNotFound, ErrUnknownEmail)
		}
		return internalError(err)
	}

	token := uuid.NewString()
	if !s.pending.Save(ctx, token, pending.KindResetPassword, pending.EmailPayload{Email: email}, s.ttl.ResetTTL) {
		return newAuthError(http.StatusServiceUnavailable, ErrPendingUnavailable)
	}

	s.dispatcher.EnqueueConfirmation(ctx, notifications.ConfirmationRequest{
		Kind:      notifications.KindResetPassword,
		Template:  notifications.TemplateResetPassword,
		Recipient: email,
		Token:     token,
		BaseURL:   baseURL,
		ExpiresAt: s.now().Add(s.ttl.ResetTTL),
	})
	return nil
}

// PeekReset returns the email a reset token belongs to without using it up
func (s *service) PeekReset(ctx context.Context, token string) (string, error) {
	action, err := s.lookup(ctx, token, pending.KindResetPassword)
	if err != nil {
		return "", err
	}
	var payload pending.EmailPayload
	if err := action.Decode(&payload); err != nil {
		return "", internalError(err)
	}
	return payload.Email, nil
}

func (s *service) ResetPassword(ctx context.Context, req *ResetPasswordRequest) (*Session, error) {
	if req.NewPassword != req.NewPassword2 {
		return nil, newAuthError(http.StatusBadRequest, ErrPasswordMismatch)
	}
	// hashed up front so a rejected password does not use up the link
	hash, err := security.HashPassword(req.NewPassword)
	if err != nil {
		return nil, hashError(err)
	}

	action, err := s.consume(ctx, req.Token, pending.KindResetPassword)
	if err != nil {
		return nil, err
	}
	var payload pending.EmailPayload
	if err := action.Decode(&payload); err != nil {
		return nil, internalError(err)
	}

	user, err := s.repo.FindByEmail(ctx, payload.Email)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return nil, newAuthError(http.StatusBadRequest, ErrLinkInvalid)
		}
		return nil, internalError(err)
	}
	if !user.IsActive {
		return nil, newAuthError(http.StatusForbidden, ErrAccountDisabled)
	}

	if err := s.repo.SetPasswordHash(ctx, user, hash); err != nil {
		return nil, internalError(err)
	}

	s.log.InfoContext(ctx, "password reset", slog.String("username", user.Username))
	return s.newSession(ctx, user)
}

// lookup reads a token of the given kind without deleting it
func (s *service) lookup(ctx context.Context, token string, kind pending.Kind) (*pending.Action, error) {
	if token == "" {
		return nil, newAuthError(http.StatusBadRequest, ErrLinkInvalid)
	}
	action, err := s.pending.Get(ctx, token)
	if err != nil {
		return nil, s.storeError(ctx, err)
	}
	if action == nil || action.Kind != kind {
		return nil, newAuthError(http.StatusBadRequest, ErrLinkInvalid)
	}
	return action, nil
}

// consume checks the kind first so a token is never burned by the wrong flow,
// then takes it. A token consumed by a concurrent request reads as invalid.
func (s *service) consume(ctx context.Context, token string, kind pending.Kind) (*pending.Action, error) {
	if _, err := s.lookup(ctx, token, kind); err != nil {
		return nil, err
	}
	action, err := s.pending.Consume(ctx, token)
	if err != nil {
		return nil, s.storeError(ctx, err)
	}
	if action == nil {
		return nil, newAuthError(http.StatusBadRequest, ErrLinkInvalid)
	}
	return action, nil
}

func (s *service) storeError(ctx context.Context, err error) error {
	s.log.ErrorContext(ctx, "pending store failed", slog.Any("error", err))
	if errors.Is(err, pending.ErrStoreUnavailable) {
		return &AuthError{Status: http.StatusServiceUnavailable, Message: ErrPendingUnavailable.Error(), Err: err}
	}
	return internalError(err)
}
