package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/ragstore/internal/db"
	"github.com/kailas-cloud/ragstore/internal/domain"
)

// store is the consumer interface for budget counters (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrByWithTTL(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
}

// retention keeps a counter around past its window so late readers still see it.
const retention = 24 * time.Hour

// Store persists per-window token counters shared by every process using the same
// key prefix.
type Store struct {
	store    store
	prefix   string
	provider string
}

// New creates a budget store. Keys look like <prefix>budget:<provider>:daily:2025-06-01.
func New(s store, keyPrefix, provider string) *Store {
	return &Store{store: s, prefix: keyPrefix, provider: provider}
}

// Add increments the counter of the window containing at and returns its new value.
// The key expires one retention period after the window ends.
func (s *Store) Add(ctx context.Context, w domain.BudgetWindow, at time.Time, tokens int64) (int64, error) {
	key := s.key(w, at)
	ttl := w.End(at).Sub(at) + retention
	val, err := s.store.IncrByWithTTL(ctx, key, tokens, ttl)
	if err != nil {
		return 0, fmt.Errorf("budget add %s: %w", key, err)
	}
	return val, nil
}

// Used returns the counter of the window containing at. A missing key is zero.
func (s *Store) Used(ctx context.Context, w domain.BudgetWindow, at time.Time) (int64, error) {
	key := s.key(w, at)
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("budget get %s: %w", key, err)
	}

	val, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("budget get %s parse: %w", key, err)
	}
	return val, nil
}

func (s *Store) key(w domain.BudgetWindow, at time.Time) string {
	return s.prefix + "budget:" + s.provider + ":" + string(w) + ":" + w.Label(at)
}
