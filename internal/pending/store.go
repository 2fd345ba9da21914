// Package pending keeps short-lived one-time tokens in Redis.
//
// Each token maps to a JSON envelope describing a deferred action
// (finish registration, reset a password). Expiry is left to Redis TTLs;
// an expired token and a token that never existed look the same.
package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"socialhub/internal/shared/constants"
	"socialhub/pkg/logger"
)

// ErrStoreUnavailable is returned when Redis cannot be reached
var ErrStoreUnavailable = errors.New("pending action store unavailable")

// Options tune a Store
type Options struct {
	DefaultTTL time.Duration
	OpTimeout  time.Duration
}

// Store is a TTL key-value store for pending actions
type Store struct {
	client    *redis.Client
	opts      Options
	log       *logger.Logger
	connected atomic.Bool
	now       func() time.Time
}

func NewStore(client *redis.Client, opts Options, log *logger.Logger) *Store {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = constants.TTL_PENDING_CONFIRM
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 3 * time.Second
	}
	return &Store{
		client: client,
		opts:   opts,
		log:    log.WithComponent("pending"),
		now:    time.Now,
	}
}

// Connect pings Redis and marks the store usable
func (s *Store) Connect(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("%w: no redis client", ErrStoreUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		s.connected.Store(false)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.connected.Store(true)
	return nil
}

func (s *Store) ensureConnected(ctx context.Context) error {
	if s.connected.Load() {
		return nil
	}
	return s.Connect(ctx)
}

// unavailable flags the store for a reconnect on the next call
func (s *Store) unavailable(op string, err error) error {
	s.connected.Store(false)
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

// Save stores payload under token for ttl (the default TTL when ttl <= 0).
// It never returns an error: failures are logged and reported as false.
func (s *Store) Save(ctx context.Context, token string, kind Kind, payload interface{}, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = s.opts.DefaultTTL
	}
	if err := s.ensureConnected(ctx); err != nil {
		s.log.ErrorContext(ctx, "pending save failed", slog.String("kind", string(kind)), slog.Any("error", err))
		return false
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		s.log.ErrorContext(ctx, "pending payload not serializable", slog.String("kind", string(kind)), slog.Any("error", err))
		return false
	}
	envelope, err := json.Marshal(Action{Kind: kind, Payload: raw, CreatedAt: s.now().UTC()})
	if err != nil {
		s.log.ErrorContext(ctx, "pending envelope not serializable", slog.Any("error", err))
		return false
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	if err := s.client.Set(opCtx, constants.BuildPendingActionKey(token), envelope, ttl).Err(); err != nil {
		s.log.ErrorContext(ctx, "pending save failed", slog.String("kind", string(kind)), slog.Any("error", s.unavailable("set", err)))
		return false
	}

	s.log.LogPendingAction(ctx, string(kind), "saved")
	return true
}

// Get returns the action stored under token, or nil when it is missing or expired.
// It does not delete the key.
func (s *Store) Get(ctx context.Context, token string) (*Action, error) {
	if err := s.ensureConnected(ctx); err != nil {
		return nil, err
	}
	opCtx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	val, err := s.client.Get(opCtx, constants.BuildPendingActionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, s.unavailable("get", err)
	}

	var action Action
	if err := json.Unmarshal(val, &action); err != nil {
		return nil, fmt.Errorf("decode pending action: %w", err)
	}
	action.Token = token
	return &action, nil
}

// Exists reports whether token is currently stored
func (s *Store) Exists(ctx context.Context, token string) (bool, error) {
	if err := s.ensureConnected(ctx); err != nil {
		return false, err
	}
	opCtx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	n, err := s.client.Exists(opCtx, constants.BuildPendingActionKey(token)).Result()
	if err != nil {
		return false, s.unavailable("exists", err)
	}
	return n > 0, nil
}

// Delete removes token and reports whether a key was actually removed
func (s *Store) Delete(ctx context.Context, token string) (bool, error) {
	if err := s.ensureConnected(ctx); err != nil {
		return false, err
	}
	opCtx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	n, err := s.client.Del(opCtx, constants.BuildPendingActionKey(token)).Result()
	if err != nil {
		return false, s.unavailable("del", err)
	}
	return n > 0, nil
}

// Consume reads token and then deletes it. It returns nil when the token is
// missing or when another caller deleted it first.
//
// Get and Delete are separate round trips: two concurrent consumers can both
// read the payload before either delete lands. Only the caller whose delete
// removed the key gets a non-nil action back.
func (s *Store) Consume(ctx context.Context, token string) (*Action, error) {
	action, err := s.Get(ctx, token)
	if err != nil || action == nil {
		return nil, err
	}

	removed, err := s.Delete(ctx, token)
	if err != nil {
		return nil, err
	}
	if !removed {
		s.log.LogPendingAction(ctx, string(action.Kind), "already_consumed")
		return nil, nil
	}

	s.log.LogPendingAction(ctx, string(action.Kind), "consumed")
	return action, nil
}
