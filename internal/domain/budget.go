package domain

import (
	"errors"
	"time"
)

// ErrEmbeddingQuotaExceeded signals that the embedding token budget is spent.
var ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")

// BudgetWindow is a token budget accounting period. Windows are aligned to UTC.
type BudgetWindow string

// Budget windows.
const (
	BudgetDaily   BudgetWindow = "daily"
	BudgetMonthly BudgetWindow = "monthly"
)

// Start returns the beginning of the window containing t.
func (w BudgetWindow) Start(t time.Time) time.Time {
	t = t.UTC()
	if w == BudgetMonthly {
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// End returns the first instant after the window containing t.
func (w BudgetWindow) End(t time.Time) time.Time {
	if w == BudgetMonthly {
		return w.Start(t).AddDate(0, 1, 0)
	}
	return w.Start(t).AddDate(0, 0, 1)
}

// Label names the window containing t, e.g. "2025-06-01" or "2025-06".
func (w BudgetWindow) Label(t time.Time) string {
	if w == BudgetMonthly {
		return t.UTC().Format("2006-01")
	}
	return t.UTC().Format("2006-01-02")
}
