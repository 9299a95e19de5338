package risk

import "time"

// Decision reason texts returned alongside the allow/deny flag.
const (
	reasonAllowed     = "Trading Allowed"
	reasonLockExpired = "Trading Allowed (Lock Expired)"
	lockedPrefix      = "Account Locked: "
)

// checkDiscipline is the judge: it resolves period rollovers, evaluates an
// existing lock's cooldown, then scans for fresh breaches in fixed
// precedence. Loss is checked before volume (capital preservation first),
// daily volume before monthly/yearly (most proximate cause first). The first
// matching breach locks the account and is returned; thresholds use >= so a
// counter landing exactly on its limit locks before the next attempt.
func checkDiscipline(p *Profile, now time.Time, cooldown time.Duration) Decision {
	resolveRollovers(p, now)

	if p.IsLocked {
		// Cooling-off period: a lock lasts `cooldown` from LockedAt. Expiry
		// performs the same full reset as a daily rollover, so the account
		// starts fresh rather than merely unblocked with stale counters.
		if p.cooldownExpired(now, cooldown) {
			p.resetDaily(dateOnly(now))
			return Decision{Allowed: true, Kind: BreachNone, Reason: reasonLockExpired}
		}
		return Decision{Allowed: false, Kind: p.LockKind, Reason: lockedPrefix + p.LockReason}
	}

	// Drawdown breach.
	if p.CurrentDailyLoss.GreaterThanOrEqual(p.MaxDailyLoss) {
		return denyAndLock(p, BreachDailyLoss, dailyLossReason(p.MaxDailyLoss), now)
	}

	// Over-trading breaches.
	if p.TradesToday >= p.MaxTradesPerDay {
		return denyAndLock(p, BreachDailyTrades, dailyTradesReason(p.MaxTradesPerDay), now)
	}
	if p.TradesThisMonth >= p.MaxTradesMonthly {
		return denyAndLock(p, BreachMonthlyTrades, monthlyTradesReason(p.MaxTradesMonthly), now)
	}
	if p.TradesThisYear >= p.MaxTradesYearly {
		return denyAndLock(p, BreachYearlyTrades, yearlyTradesReason(p.MaxTradesYearly), now)
	}

	return Decision{Allowed: true, Kind: BreachNone, Reason: reasonAllowed}
}

func denyAndLock(p *Profile, kind BreachKind, reason string, now time.Time) Decision {
	p.lock(kind, reason, now)
	return Decision{Allowed: false, Kind: kind, Reason: lockedPrefix + reason}
}
