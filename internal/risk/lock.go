package risk

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// lock disables trading for the profile and records the breach that caused
// it. Transition: UNLOCKED -> LOCKED.
func (p *Profile) lock(kind BreachKind, reason string, now time.Time) {
	p.IsLocked = true
	p.LockKind = kind
	p.LockReason = reason
	at := now.UTC()
	p.LockedAt = &at
}

// clearLock drops the lock state. Callers must go through resetDaily; a lock
// is never released without a full daily reset.
func (p *Profile) clearLock() {
	p.IsLocked = false
	p.LockKind = ""
	p.LockReason = ""
	p.LockedAt = nil
}

// cooldownExpired reports whether the lock's cooling-off period has elapsed.
func (p *Profile) cooldownExpired(now time.Time, cooldown time.Duration) bool {
	return p.LockedAt != nil && now.After(p.LockedAt.Add(cooldown))
}

// Lock reason texts. These are stable API payloads surfaced to the UI.
func dailyLossReason(limit decimal.Decimal) string {
	return fmt.Sprintf("Daily Loss Limit ($%s) hit.", limit)
}

func dailyTradesReason(limit int) string {
	return fmt.Sprintf("Max Daily Trades (%d) hit.", limit)
}

func monthlyTradesReason(limit int) string {
	return fmt.Sprintf("Max Monthly Trades (%d) hit.", limit)
}

func yearlyTradesReason(limit int) string {
	return fmt.Sprintf("Max Yearly Trades (%d) hit.", limit)
}
