// Package risk implements the per-user trading discipline engine: daily,
// monthly and yearly activity limits, realized-loss tracking, and the
// terminal lock imposed when a limit is breached.
package risk

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultLockCooldown is how long a terminal lock lasts absent a calendar
// rollover.
const DefaultLockCooldown = 12 * time.Hour

var (
	// ErrLocked rejects limit edits while the terminal is locked.
	ErrLocked = errors.New("risk limits cannot be changed while the terminal is locked")
	// ErrConflict signals optimistic-version exhaustion on concurrent mutation.
	ErrConflict = errors.New("concurrent profile mutation conflict")
	// ErrProfileNotFound is returned by stores for missing rows; the engine
	// absorbs it via auto-provisioning.
	ErrProfileNotFound = errors.New("risk profile not found")
	// ErrUserIDRequired guards every engine operation.
	ErrUserIDRequired = errors.New("user id is required")
	// ErrInvalidLimits rejects non-positive limit values.
	ErrInvalidLimits = errors.New("risk limits must be positive")
)

// BreachKind tags the cause of a denial so precedence is machine-checkable.
type BreachKind string

const (
	BreachNone          BreachKind = "NONE"
	BreachDailyLoss     BreachKind = "DAILY_LOSS"
	BreachDailyTrades   BreachKind = "DAILY_TRADES"
	BreachMonthlyTrades BreachKind = "MONTHLY_TRADES"
	BreachYearlyTrades  BreachKind = "YEARLY_TRADES"
	BreachManualLock    BreachKind = "MANUAL_LOCK"
)

// Decision is the outcome of a discipline evaluation. A deny is a value,
// never an error.
type Decision struct {
	Allowed bool       `json:"allowed"`
	Kind    BreachKind `json:"kind"`
	Reason  string     `json:"reason"`
}

// Limits are the user-editable thresholds of a risk profile.
type Limits struct {
	MaxDailyLoss     decimal.Decimal `json:"max_daily_loss"`
	MaxTradesPerDay  int             `json:"max_trades_per_day"`
	MaxTradesMonthly int             `json:"max_trades_monthly"`
	MaxTradesYearly  int             `json:"max_trades_yearly"`
}

// Validate rejects non-positive limit values.
func (l Limits) Validate() error {
	if l.MaxDailyLoss.Sign() <= 0 {
		return fmt.Errorf("%w: max_daily_loss", ErrInvalidLimits)
	}
	if l.MaxTradesPerDay <= 0 {
		return fmt.Errorf("%w: max_trades_per_day", ErrInvalidLimits)
	}
	if l.MaxTradesMonthly <= 0 {
		return fmt.Errorf("%w: max_trades_monthly", ErrInvalidLimits)
	}
	if l.MaxTradesYearly <= 0 {
		return fmt.Errorf("%w: max_trades_yearly", ErrInvalidLimits)
	}
	return nil
}

// Profile is the per-user risk state: configured limits, live counters and
// the terminal-lock state machine. All timestamps are UTC; the rollover
// markers are calendar dates (midnight UTC).
type Profile struct {
	UserID string `json:"user_id"`

	Limits

	// Live counters, system-owned. Never user-editable.
	CurrentDailyLoss decimal.Decimal `json:"current_daily_loss"`
	TradesToday      int             `json:"trades_today"`
	TradesThisMonth  int             `json:"trades_this_month"`
	TradesThisYear   int             `json:"trades_this_year"`

	// Lock state. LockKind/LockReason/LockedAt are set iff IsLocked.
	IsLocked   bool       `json:"is_locked"`
	LockKind   BreachKind `json:"lock_kind,omitempty"`
	LockReason string     `json:"lock_reason,omitempty"`
	LockedAt   *time.Time `json:"locked_at,omitempty"`

	// Rollover markers.
	LastDailyReset   time.Time `json:"last_daily_reset"`
	LastMonthlyReset time.Time `json:"last_monthly_reset"`
	LastYearlyReset  time.Time `json:"last_yearly_reset"`
}

// NewProfile builds an unlocked profile with the given limits, markers set
// to the current day.
func NewProfile(userID string, limits Limits, now time.Time) *Profile {
	today := dateOnly(now)
	return &Profile{
		UserID:           userID,
		Limits:           limits,
		CurrentDailyLoss: decimal.Zero,
		LastDailyReset:   today,
		LastMonthlyReset: today,
		LastYearlyReset:  today,
	}
}

// Clone returns a deep copy so callers never mutate shared state.
func (p *Profile) Clone() *Profile {
	cp := *p
	if p.LockedAt != nil {
		t := *p.LockedAt
		cp.LockedAt = &t
	}
	return &cp
}

// dateOnly truncates a timestamp to its calendar date at midnight UTC.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
