// Package recordstore is the per-account key-value persistence layer. Every
// operation goes through a simulated network delay so callers treat storage
// as a blocking, cancellable call, and history payloads are migrated to the
// current result schema on read.
package recordstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-pathology/internal/metrics"
)

// Kind identifies the record family stored under an account.
type Kind string

const (
	KindAccount Kind = "account"
	KindHistory Kind = "history"
	// KindSession holds the process-wide session marker; its key has no account.
	KindSession Kind = "session"
)

// DefaultLatency is the simulated round trip of every store call.
const DefaultLatency = 500 * time.Millisecond

// Key addresses one stored value.
type Key struct {
	Account string
	Kind    Kind
}

func (k Key) String() string { return string(k.Kind) + ":" + k.Account }

func AccountKey(email string) Key { return Key{Account: email, Kind: KindAccount} }
func HistoryKey(email string) Key { return Key{Account: email, Kind: KindHistory} }

// SessionKey is the single session marker slot.
var SessionKey = Key{Kind: KindSession}

var (
	// ErrStorageUnavailable wraps any backend failure.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrCorrupt is returned when a stored history payload cannot be decoded.
	ErrCorrupt = errors.New("stored record corrupt")
)

// Backend is the raw storage engine behind a Store.
type Backend interface {
	Get(ctx context.Context, key Key) ([]byte, bool, error)
	Put(ctx context.Context, key Key, raw []byte) error
	Delete(ctx context.Context, key Key) error
	Ping(ctx context.Context) error
}

// Store wraps a Backend with latency simulation and history migration.
// Writes are last-writer-wins: there is no locking or revision check.
type Store struct {
	backend Backend
	latency time.Duration
	logger  *zap.SugaredLogger
}

type Option func(*Store)

// WithLatency overrides DefaultLatency; zero disables the delay.
func WithLatency(d time.Duration) Option { return func(s *Store) { s.latency = d } }

func WithLogger(l *zap.SugaredLogger) Option { return func(s *Store) { s.logger = l } }

func New(b Backend, opts ...Option) *Store {
	s := &Store{backend: b, latency: DefaultLatency, logger: zap.NewNop().Sugar()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Read returns the raw value for key. An absent key yields the kind's
// default ("[]" for history, nil otherwise) and no error. History payloads
// are migrated before returning and persisted back if anything changed.
func (s *Store) Read(ctx context.Context, key Key) ([]byte, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	raw, ok, err := s.backend.Get(ctx, key)
	metrics.StoreOperations.WithLabelValues(string(key.Kind), "read", metrics.Outcome(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrStorageUnavailable, key, err)
	}
	if !ok {
		return defaultValue(key.Kind), nil
	}
	if key.Kind != KindHistory {
		return raw, nil
	}

	migrated, n, err := MigrateHistory(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, key, err)
	}
	if n > 0 {
		if err := s.backend.Put(ctx, key, migrated); err != nil {
			metrics.StoreOperations.WithLabelValues(string(key.Kind), "migrate", "error").Inc()
			return nil, fmt.Errorf("%w: persist migrated %s: %w", ErrStorageUnavailable, key, err)
		}
		metrics.StoreOperations.WithLabelValues(string(key.Kind), "migrate", "ok").Inc()
		metrics.HistoryMigrations.Add(float64(n))
		s.logger.Infow("history migrated", "account", key.Account, "records", n)
	}
	return migrated, nil
}

// Write stores raw under key, replacing whatever was there.
func (s *Store) Write(ctx context.Context, key Key, raw []byte) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	err := s.backend.Put(ctx, key, raw)
	metrics.StoreOperations.WithLabelValues(string(key.Kind), "write", metrics.Outcome(err)).Inc()
	if err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrStorageUnavailable, key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key succeeds.
func (s *Store) Delete(ctx context.Context, key Key) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	err := s.backend.Delete(ctx, key)
	metrics.StoreOperations.WithLabelValues(string(key.Kind), "delete", metrics.Outcome(err)).Inc()
	if err != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrStorageUnavailable, key, err)
	}
	return nil
}

// Ping checks the backend without the simulated delay.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.backend.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return nil
}

// wait blocks for the configured latency. A cancelled context aborts the
// operation before it reaches the backend.
func (s *Store) wait(ctx context.Context) error {
	if s.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func defaultValue(k Kind) []byte {
	if k == KindHistory {
		return []byte("[]")
	}
	return nil
}
