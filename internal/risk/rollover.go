package risk

import (
	"time"

	"github.com/shopspring/decimal"
)

// resolveRollovers zeroes stale period counters before any threshold check.
// The three checks are independent and idempotent: calling twice within the
// same day/month/year is a no-op the second time. Only the daily rollover
// clears a terminal lock; monthly and yearly rollovers touch their own
// counter and nothing else. Reports whether the profile changed.
func resolveRollovers(p *Profile, now time.Time) bool {
	today := dateOnly(now)
	changed := false

	if !p.LastDailyReset.Equal(today) {
		p.resetDaily(today)
		changed = true
	}

	if p.LastMonthlyReset.Month() != today.Month() || p.LastMonthlyReset.Year() != today.Year() {
		p.TradesThisMonth = 0
		p.LastMonthlyReset = today
		changed = true
	}

	if p.LastYearlyReset.Year() != today.Year() {
		p.TradesThisYear = 0
		p.LastYearlyReset = today
		changed = true
	}

	return changed
}

// resetDaily zeroes the daily performance counters and releases any terminal
// lock. This is the only way a lock is ever cleared short of an
// administrative reset.
func (p *Profile) resetDaily(today time.Time) {
	p.CurrentDailyLoss = decimal.Zero
	p.TradesToday = 0
	p.clearLock()
	p.LastDailyReset = today
}
