package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func testLimits() Limits {
	return Limits{
		MaxDailyLoss:     decimal.NewFromInt(200),
		MaxTradesPerDay:  5,
		MaxTradesMonthly: 100,
		MaxTradesYearly:  1000,
	}
}

func testProfile(now time.Time) *Profile {
	return NewProfile("user-1", testLimits(), now)
}

func TestCheckDisciplineFreshProfileAllowed(t *testing.T) {
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	p := testProfile(now)

	dec := checkDiscipline(p, now, DefaultLockCooldown)
	if !dec.Allowed {
		t.Fatalf("expected fresh profile to be allowed, got %+v", dec)
	}
	if dec.Kind != BreachNone || dec.Reason != "Trading Allowed" {
		t.Fatalf("unexpected decision %+v", dec)
	}
	if p.IsLocked {
		t.Fatalf("fresh profile must not be locked")
	}
}

func TestCheckDisciplineDailyLossBreachLocks(t *testing.T) {
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	p := testProfile(now)
	p.CurrentDailyLoss = decimal.NewFromInt(205)

	dec := checkDiscipline(p, now, DefaultLockCooldown)
	if dec.Allowed {
		t.Fatalf("expected deny, got %+v", dec)
	}
	if dec.Kind != BreachDailyLoss {
		t.Fatalf("expected DAILY_LOSS breach, got %s", dec.Kind)
	}
	if want := "Account Locked: Daily Loss Limit ($200) hit."; dec.Reason != want {
		t.Fatalf("reason = %q, want %q", dec.Reason, want)
	}
	if !p.IsLocked || p.LockedAt == nil || p.LockReason == "" {
		t.Fatalf("lock state not recorded: %+v", p)
	}
}

func TestCheckDisciplineExactThresholdLocks(t *testing.T) {
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	p := testProfile(now)
	p.CurrentDailyLoss = decimal.NewFromInt(200)
	if dec := checkDiscipline(p, now, DefaultLockCooldown); dec.Allowed {
		t.Fatalf("loss exactly at limit must lock, got %+v", dec)
	}

	p = testProfile(now)
	p.TradesToday = 5
	p.TradesThisMonth = 5
	p.TradesThisYear = 5
	dec := checkDiscipline(p, now, DefaultLockCooldown)
	if dec.Allowed || dec.Kind != BreachDailyTrades {
		t.Fatalf("trade count exactly at cap must lock with DAILY_TRADES, got %+v", dec)
	}
	if want := "Account Locked: Max Daily Trades (5) hit."; dec.Reason != want {
		t.Fatalf("reason = %q, want %q", dec.Reason, want)
	}
}

func TestCheckDisciplineMonthlyAndYearlyBreaches(t *testing.T) {
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	p := testProfile(now)
	p.TradesThisMonth = 100
	dec := checkDiscipline(p, now, DefaultLockCooldown)
	if dec.Kind != BreachMonthlyTrades {
		t.Fatalf("expected MONTHLY_TRADES, got %+v", dec)
	}
	if want := "Account Locked: Max Monthly Trades (100) hit."; dec.Reason != want {
		t.Fatalf("reason = %q, want %q", dec.Reason, want)
	}

	p = testProfile(now)
	p.TradesThisYear = 1000
	dec = checkDiscipline(p, now, DefaultLockCooldown)
	if dec.Kind != BreachYearlyTrades {
		t.Fatalf("expected YEARLY_TRADES, got %+v", dec)
	}
	if want := "Account Locked: Max Yearly Trades (1000) hit."; dec.Reason != want {
		t.Fatalf("reason = %q, want %q", dec.Reason, want)
	}
}

// Loss is checked before volume, daily volume before monthly/yearly.
func TestCheckDisciplinePrecedence(t *testing.T) {
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	p := testProfile(now)
	p.CurrentDailyLoss = decimal.NewFromInt(500)
	p.TradesToday = 10
	p.TradesThisMonth = 500
	p.TradesThisYear = 5000

	dec := checkDiscipline(p, now, DefaultLockCooldown)
	if dec.Kind != BreachDailyLoss {
		t.Fatalf("daily loss must win precedence, got %s", dec.Kind)
	}

	p = testProfile(now)
	p.TradesToday = 10
	p.TradesThisMonth = 500
	if dec := checkDiscipline(p, now, DefaultLockCooldown); dec.Kind != BreachDailyTrades {
		t.Fatalf("daily volume must beat monthly, got %s", dec.Kind)
	}
}

func TestCheckDisciplineLockedRepeatsReason(t *testing.T) {
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	p := testProfile(now)
	p.TradesToday = 5

	first := checkDiscipline(p, now, DefaultLockCooldown)
	second := checkDiscipline(p, now.Add(30*time.Minute), DefaultLockCooldown)
	if second.Allowed {
		t.Fatalf("expected still locked, got %+v", second)
	}
	if second.Reason != first.Reason || second.Kind != first.Kind {
		t.Fatalf("locked decision must repeat the lock cause: %+v vs %+v", first, second)
	}
}

func TestCheckDisciplineCooldownBoundary(t *testing.T) {
	lockTime := time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)
	p := testProfile(lockTime)
	p.TradesToday = 5
	checkDiscipline(p, lockTime, DefaultLockCooldown)
	if !p.IsLocked {
		t.Fatalf("setup: expected profile locked")
	}

	// 11h59m after the lock, still inside the cooling-off period.
	dec := checkDiscipline(p, lockTime.Add(11*time.Hour+59*time.Minute), DefaultLockCooldown)
	if dec.Allowed {
		t.Fatalf("lock must hold before cooldown expiry, got %+v", dec)
	}

	// 12h01m after the lock: full daily reset, lock released.
	dec = checkDiscipline(p, lockTime.Add(12*time.Hour+1*time.Minute), DefaultLockCooldown)
	if !dec.Allowed {
		t.Fatalf("expected unlock after cooldown, got %+v", dec)
	}
	if dec.Reason != "Trading Allowed (Lock Expired)" {
		t.Fatalf("reason = %q", dec.Reason)
	}
	if p.IsLocked || p.TradesToday != 0 || !p.CurrentDailyLoss.IsZero() {
		t.Fatalf("cooldown expiry must perform a full daily reset: %+v", p)
	}
}

func TestDailyRolloverClearsLockBeforeCooldown(t *testing.T) {
	lockTime := time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC)
	p := testProfile(lockTime)
	p.CurrentDailyLoss = decimal.NewFromInt(300)
	checkDiscipline(p, lockTime, DefaultLockCooldown)
	if !p.IsLocked {
		t.Fatalf("setup: expected profile locked")
	}

	// 90 minutes later but across midnight: the new day wins over the cooldown.
	dec := checkDiscipline(p, lockTime.Add(90*time.Minute), DefaultLockCooldown)
	if !dec.Allowed {
		t.Fatalf("daily rollover must clear the lock, got %+v", dec)
	}
	if dec.Reason != "Trading Allowed" {
		t.Fatalf("reason = %q", dec.Reason)
	}
	if !p.CurrentDailyLoss.IsZero() || p.TradesToday != 0 {
		t.Fatalf("daily counters must be zeroed: %+v", p)
	}
}

func TestResolveRolloversIdempotent(t *testing.T) {
	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	p := testProfile(start)
	p.TradesToday = 3
	p.TradesThisMonth = 40
	p.TradesThisYear = 300

	next := start.AddDate(0, 0, 1)
	if !resolveRollovers(p, next) {
		t.Fatalf("expected first rollover to report a change")
	}
	if p.TradesToday != 0 || p.TradesThisMonth != 40 || p.TradesThisYear != 300 {
		t.Fatalf("daily rollover must only touch daily counters: %+v", p)
	}
	if resolveRollovers(p, next) {
		t.Fatalf("second rollover within the same day must be a no-op")
	}
}

func TestMonthlyRolloverLeavesOtherCounters(t *testing.T) {
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	p := testProfile(now)
	p.LastMonthlyReset = time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	p.TradesToday = 2
	p.TradesThisMonth = 80
	p.TradesThisYear = 300

	resolveRollovers(p, now)
	if p.TradesThisMonth != 0 {
		t.Fatalf("monthly counter must reset, got %d", p.TradesThisMonth)
	}
	if p.TradesToday != 2 || p.TradesThisYear != 300 {
		t.Fatalf("monthly rollover must not touch other counters: %+v", p)
	}
}

func TestYearlyRollover(t *testing.T) {
	now := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	p := testProfile(now)
	p.LastYearlyReset = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	p.TradesThisYear = 900

	resolveRollovers(p, now)
	if p.TradesThisYear != 0 {
		t.Fatalf("yearly counter must reset, got %d", p.TradesThisYear)
	}
}

func TestLimitsValidate(t *testing.T) {
	if err := testLimits().Validate(); err != nil {
		t.Fatalf("default limits must validate: %v", err)
	}

	bad := testLimits()
	bad.MaxDailyLoss = decimal.Zero
	if err := bad.Validate(); err == nil {
		t.Fatalf("zero daily loss limit must be rejected")
	}

	bad = testLimits()
	bad.MaxTradesPerDay = -1
	if err := bad.Validate(); err == nil {
		t.Fatalf("negative trade cap must be rejected")
	}
}
