package tokens

import (
	"errors"
	"fmt"
	"time"

	"socialhub/internal/shared/config"
)

// TokenPair represents access and refresh tokens
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Service issues, validates and renews session tokens.
// It keeps no record of what it issued; validity lives in the signed payload.
type Service struct {
	codec      *Codec
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewService(codec *Codec, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		codec:      codec,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// NewServiceFromConfig wires a codec and lifetimes from the JWT settings
func NewServiceFromConfig(cfg config.JWTConfig) *Service {
	return NewService(NewCodec(cfg.Secret, cfg.Algorithm), cfg.AccessExpiresIn, cfg.RefreshExpiresIn)
}

func (s *Service) AccessTTL() time.Duration  { return s.accessTTL }
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }

func (s *Service) IssueAccess(subject string) (string, error) {
	return s.issue(subject, s.accessTTL)
}

func (s *Service) IssueRefresh(subject string) (string, error) {
	return s.issue(subject, s.refreshTTL)
}

// IssuePair issues a fresh access and refresh token for subject
func (s *Service) IssuePair(subject string) (*TokenPair, error) {
	access, err := s.IssueAccess(subject)
	if err != nil {
		return nil, err
	}
	refresh, err := s.IssueRefresh(subject)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *Service) issue(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", ErrEmptySubject
	}
	return s.codec.Encode(map[string]interface{}{ClaimSubject: subject}, ttl)
}

// Validate reports whether token decodes and names a subject
func (s *Service) Validate(token string) bool {
	_, err := s.Subject(token)
	return err == nil
}

// Subject decodes token and returns its non-empty subject
func (s *Service) Subject(token string) (string, error) {
	claims, err := s.codec.Decode(token)
	if err != nil {
		return "", err
	}
	sub := claims.Subject()
	if sub == "" {
		return "", fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	return sub, nil
}

// RenewAccess mints a new access token for the subject of a valid refresh token.
// The refresh token itself is left untouched and stays valid until its own exp.
func (s *Service) RenewAccess(refreshToken string) (string, error) {
	sub, err := s.Subject(refreshToken)
	if err != nil {
		if errors.Is(err, ErrConfiguration) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidRefreshToken, err)
	}
	return s.IssueAccess(sub)
}
