package risk

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradeguard/internal/events"
	"tradeguard/internal/monitor"
)

// casRetries bounds optimistic-version retries before surfacing ErrConflict.
const casRetries = 3

// Engine owns every externally-invoked mutation of risk profiles. Each
// operation runs as one atomic read-modify-write unit per user: a per-user
// mutex serializes in-process callers, and the store's version CAS closes
// the window against any other writer. Two concurrent trade-open events for
// the same user can therefore never under-count.
type Engine struct {
	store    Store
	bus      *events.Bus
	metrics  *monitor.SystemMetrics
	defaults Limits
	cooldown time.Duration

	now func() time.Time // injected for tests

	mu       sync.Mutex
	userMu   map[string]*sync.Mutex
	lastSeen map[string]time.Time
}

// NewEngine creates the discipline engine. bus and metrics may be nil.
func NewEngine(store Store, bus *events.Bus, metrics *monitor.SystemMetrics, defaults Limits, cooldown time.Duration) *Engine {
	if cooldown <= 0 {
		cooldown = DefaultLockCooldown
	}
	return &Engine{
		store:    store,
		bus:      bus,
		metrics:  metrics,
		defaults: defaults,
		cooldown: cooldown,
		now:      time.Now,
		userMu:   make(map[string]*sync.Mutex),
		lastSeen: make(map[string]time.Time),
	}
}

// GetProfile returns the user's profile plus the live discipline decision,
// auto-provisioning a default profile on first access. Rollovers (and a
// cooldown expiry) observed during evaluation are persisted.
func (e *Engine) GetProfile(ctx context.Context, userID string) (*Profile, Decision, error) {
	return e.mutate(ctx, userID, func(p *Profile, now time.Time) (Decision, error) {
		return checkDiscipline(p, now, e.cooldown), nil
	})
}

// TradeOpened records a newly opened trade: rollovers are resolved, the
// three trade counters increment, and discipline is re-evaluated so the lock
// can trip immediately when this trade lands on a cap. The decision informs
// whether the NEXT trade is permitted; the trade itself is already persisted
// by the caller and is never invalidated.
func (e *Engine) TradeOpened(ctx context.Context, userID string) (Decision, error) {
	_, dec, err := e.mutate(ctx, userID, func(p *Profile, now time.Time) (Decision, error) {
		// Resolve first so the first trade of a new day is counted against
		// the fresh day, not zeroed by the rollover inside the check below.
		resolveRollovers(p, now)
		p.TradesToday++
		p.TradesThisMonth++
		p.TradesThisYear++
		return checkDiscipline(p, now, e.cooldown), nil
	})
	return dec, err
}

// TradeClosed records a realized result. Losses (negative PnL) accumulate
// into the daily loss counter; wins and breakevens never offset prior
// losses. Discipline is re-evaluated afterwards.
func (e *Engine) TradeClosed(ctx context.Context, userID string, pnl decimal.Decimal) (Decision, error) {
	_, dec, err := e.mutate(ctx, userID, func(p *Profile, now time.Time) (Decision, error) {
		resolveRollovers(p, now)
		if pnl.Sign() < 0 {
			p.CurrentDailyLoss = p.CurrentDailyLoss.Add(pnl.Abs())
		}
		return checkDiscipline(p, now, e.cooldown), nil
	})
	return dec, err
}

// UpdateLimits applies new limits. The edit is refused with ErrLocked while
// the terminal is locked; the check runs inside the same atomic unit as the
// rollover resolution, so an edit racing a lock-clearing rollover observes a
// consistent answer.
func (e *Engine) UpdateLimits(ctx context.Context, userID string, limits Limits) (*Profile, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	p, _, err := e.mutate(ctx, userID, func(p *Profile, now time.Time) (Decision, error) {
		dec := checkDiscipline(p, now, e.cooldown)
		if p.IsLocked {
			return dec, ErrLocked
		}
		p.Limits = limits
		return dec, nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ResetProfile is the administrative override: zero all counters and clear
// the lock, independent of calendar rollover logic.
func (e *Engine) ResetProfile(ctx context.Context, userID string) (*Profile, error) {
	p, _, err := e.mutate(ctx, userID, func(p *Profile, now time.Time) (Decision, error) {
		today := dateOnly(now)
		p.resetDaily(today)
		p.TradesThisMonth = 0
		p.TradesThisYear = 0
		p.LastMonthlyReset = today
		p.LastYearlyReset = today
		return Decision{Allowed: true, Kind: BreachNone, Reason: reasonAllowed}, nil
	})
	if err != nil {
		return nil, err
	}
	if e.bus != nil {
		e.bus.Publish(events.EventRiskReset, events.RiskTransition{
			UserID: userID,
			Event:  events.EventRiskReset,
		})
	}
	return p, nil
}

// UserCount returns the number of users with serialized mutation state.
func (e *Engine) UserCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.userMu)
}

// CleanupIdle drops per-user mutexes unused for longer than ttl. Profile
// state itself lives in the store and is unaffected.
func (e *Engine) CleanupIdle(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	cutoff := e.now().Add(-ttl)

	e.mu.Lock()
	defer e.mu.Unlock()
	for userID, t := range e.lastSeen {
		if t.Before(cutoff) {
			delete(e.userMu, userID)
			delete(e.lastSeen, userID)
		}
	}
}

// mutate runs fn inside the atomic per-user read-modify-write unit:
// lock user -> load (or provision) -> mutate -> CAS write -> publish
// transitions. A CAS conflict retries the whole unit a bounded number of
// times before surfacing ErrConflict. When fn returns an error (e.g. a
// rejected limit edit) nothing is persisted; rollover work lost that way is
// harmless because the resolver is idempotent.
func (e *Engine) mutate(ctx context.Context, userID string, fn func(p *Profile, now time.Time) (Decision, error)) (*Profile, Decision, error) {
	if userID == "" {
		return nil, Decision{}, ErrUserIDRequired
	}

	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < casRetries; attempt++ {
		now := e.now().UTC()

		p, version, err := e.store.Get(ctx, userID)
		if errors.Is(err, ErrProfileNotFound) {
			// Auto-provisioning: first access creates a default profile.
			p = NewProfile(userID, e.defaults, now)
			if err := e.store.Create(ctx, p); err != nil {
				return nil, Decision{}, err
			}
			version = 1
			log.Printf("[RISK] provisioned default profile for user %s", userID)
		} else if err != nil {
			return nil, Decision{}, err
		}

		wasLocked := p.IsLocked

		dec, err := fn(p, now)
		if err != nil {
			return p, dec, err
		}

		if err := e.store.Update(ctx, p, version); err != nil {
			if errors.Is(err, ErrConflict) {
				lastErr = err
				continue
			}
			return nil, Decision{}, err
		}

		e.publishTransition(userID, wasLocked, p)
		return p, dec, nil
	}
	return nil, Decision{}, lastErr
}

func (e *Engine) userLock(userID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	mu, ok := e.userMu[userID]
	if !ok {
		mu = &sync.Mutex{}
		e.userMu[userID] = mu
	}
	e.lastSeen[userID] = e.now()
	return mu
}

// publishTransition emits lock/unlock events when the persisted mutation
// crossed the lock boundary.
func (e *Engine) publishTransition(userID string, wasLocked bool, p *Profile) {
	switch {
	case !wasLocked && p.IsLocked:
		log.Printf("[RISK] terminal locked for user %s: %s", userID, p.LockReason)
		if e.metrics != nil {
			e.metrics.IncrementLocksTriggered()
		}
		if e.bus != nil {
			e.bus.Publish(events.EventRiskLocked, events.RiskTransition{
				UserID: userID,
				Event:  events.EventRiskLocked,
				Reason: p.LockReason,
			})
		}
	case wasLocked && !p.IsLocked:
		log.Printf("[RISK] terminal unlocked for user %s", userID)
		if e.bus != nil {
			e.bus.Publish(events.EventRiskUnlocked, events.RiskTransition{
				UserID: userID,
				Event:  events.EventRiskUnlocked,
			})
		}
	}
}
