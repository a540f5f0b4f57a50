package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstore/internal/domain"
)

// BudgetAction defines behavior when the token budget is spent.
type BudgetAction string

const (
	// BudgetActionWarn logs a warning but allows the request.
	BudgetActionWarn BudgetAction = "warn"
	// BudgetActionReject blocks the request with domain.ErrEmbeddingQuotaExceeded.
	BudgetActionReject BudgetAction = "reject"
)

// persistTimeout bounds the write-behind of a Record call.
const persistTimeout = 2 * time.Second

// BudgetStore persists per-window counters shared across processes.
type BudgetStore interface {
	Add(ctx context.Context, w domain.BudgetWindow, at time.Time, tokens int64) (int64, error)
	Used(ctx context.Context, w domain.BudgetWindow, at time.Time) (int64, error)
}

// BudgetConfig holds token limits. A zero limit is unlimited.
type BudgetConfig struct {
	Provider     string
	DailyLimit   int64
	MonthlyLimit int64
	Action       BudgetAction
}

// BudgetStatus is a snapshot of one window.
type BudgetStatus struct {
	Window    domain.BudgetWindow `json:"window"`
	Limit     int64               `json:"limit"`
	Used      int64               `json:"used"`
	Remaining int64               `json:"remaining"`
	ResetsAt  time.Time           `json:"resets_at"`
}

type windowState struct {
	limit int64
	used  int64
	start time.Time
}

// BudgetTracker enforces daily and monthly token limits. Check reads memory only;
// Record updates memory first and then writes behind to the store, adopting the
// store's total when another process has spent more.
type BudgetTracker struct {
	mu       sync.Mutex
	provider string
	action   BudgetAction
	windows  map[domain.BudgetWindow]*windowState
	store    BudgetStore
	logger   *zap.Logger
	now      func() time.Time
}

// NewBudgetTracker creates a tracker without persistence.
func NewBudgetTracker(cfg BudgetConfig, logger *zap.Logger) *BudgetTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Action == "" {
		cfg.Action = BudgetActionReject
	}
	b := &BudgetTracker{
		provider: cfg.Provider,
		action:   cfg.Action,
		logger:   logger,
		now:      time.Now,
		windows: map[domain.BudgetWindow]*windowState{
			domain.BudgetDaily:   {limit: cfg.DailyLimit},
			domain.BudgetMonthly: {limit: cfg.MonthlyLimit},
		},
	}
	now := b.now()
	for w, st := range b.windows {
		st.start = w.Start(now)
	}
	return b
}

// WithStore attaches a persistence store and loads the current counters.
// Load failures are logged and the tracker starts from zero.
func (b *BudgetTracker) WithStore(ctx context.Context, store BudgetStore) *BudgetTracker {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.store = store
	now := b.now()
	b.rollover(now)
	for w, st := range b.windows {
		used, err := store.Used(ctx, w, now)
		if err != nil {
			b.logger.Warn("Failed to load token budget", zap.String("window", string(w)), zap.Error(err))
			continue
		}
		st.used = used
	}
	b.logger.Info("Token budget loaded",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.windows[domain.BudgetDaily].used),
		zap.Int64("monthly_used", b.windows[domain.BudgetMonthly].used))
	return b
}

// Check reports whether a new provider call is allowed.
func (b *BudgetTracker) Check(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover(b.now())

	var spent []domain.BudgetWindow
	for _, w := range []domain.BudgetWindow{domain.BudgetDaily, domain.BudgetMonthly} {
		if st := b.windows[w]; st.limit > 0 && st.used >= st.limit {
			spent = append(spent, w)
		}
	}
	if len(spent) == 0 {
		return nil
	}
	if b.action == BudgetActionReject {
		return fmt.Errorf("%s %s budget spent: %w", b.provider, spent[0], domain.ErrEmbeddingQuotaExceeded)
	}

	b.logger.Warn("Token budget exceeded",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.windows[domain.BudgetDaily].used),
		zap.Int64("daily_limit", b.windows[domain.BudgetDaily].limit),
		zap.Int64("monthly_used", b.windows[domain.BudgetMonthly].used),
		zap.Int64("monthly_limit", b.windows[domain.BudgetMonthly].limit))
	return nil
}

// Record adds consumed tokens. The store write survives cancellation of ctx.
func (b *BudgetTracker) Record(ctx context.Context, tokens int64) {
	if tokens <= 0 {
		return
	}
	b.mu.Lock()
	now := b.now()
	b.rollover(now)
	for _, st := range b.windows {
		st.used += tokens
	}
	store := b.store
	b.mu.Unlock()

	if store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	for _, w := range []domain.BudgetWindow{domain.BudgetDaily, domain.BudgetMonthly} {
		total, err := store.Add(ctx, w, now, tokens)
		if err != nil {
			b.logger.Warn("Failed to persist token budget", zap.String("window", string(w)), zap.Error(err))
			continue
		}
		b.mu.Lock()
		if st := b.windows[w]; st.start.Equal(w.Start(now)) && total > st.used {
			st.used = total
		}
		b.mu.Unlock()
	}
}

// Remaining returns tokens left in the window, -1 if unlimited.
func (b *BudgetTracker) Remaining(w domain.BudgetWindow) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover(b.now())
	return remaining(b.windows[w])
}

// Status snapshots both windows.
func (b *BudgetTracker) Status() []BudgetStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	b.rollover(now)

	out := make([]BudgetStatus, 0, len(b.windows))
	for _, w := range []domain.BudgetWindow{domain.BudgetDaily, domain.BudgetMonthly} {
		st := b.windows[w]
		out = append(out, BudgetStatus{
			Window:    w,
			Limit:     st.limit,
			Used:      st.used,
			Remaining: remaining(st),
			ResetsAt:  w.End(now),
		})
	}
	return out
}

func remaining(st *windowState) int64 {
	if st.limit == 0 {
		return -1
	}
	return max(st.limit-st.used, 0)
}

// rollover zeroes a window's counter once its period has passed. Caller holds mu.
func (b *BudgetTracker) rollover(now time.Time) {
	for w, st := range b.windows {
		if start := w.Start(now); start.After(st.start) {
			st.used = 0
			st.start = start
		}
	}
}
