package risk

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Store persists risk profiles. Update is compare-and-swap on the row
// version: a mismatch returns ErrConflict so the engine can retry the whole
// read-modify-write unit.
type Store interface {
	Get(ctx context.Context, userID string) (*Profile, int64, error)
	Create(ctx context.Context, p *Profile) error
	Update(ctx context.Context, p *Profile, expectedVersion int64) error
}

// SQLStore keeps one risk_profiles row per user in SQLite.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps the shared DB handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Get loads a profile and its row version.
func (s *SQLStore) Get(ctx context.Context, userID string) (*Profile, int64, error) {
	if userID == "" {
		return nil, 0, ErrUserIDRequired
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, max_daily_loss, max_trades_per_day, max_trades_monthly, max_trades_yearly,
		       current_daily_loss, trades_today, trades_this_month, trades_this_year,
		       is_locked, COALESCE(lock_kind, ''), COALESCE(lock_reason, ''), locked_at,
		       last_daily_reset, last_monthly_reset, last_yearly_reset, version
		FROM risk_profiles
		WHERE user_id = ?
	`, userID)

	var (
		p        Profile
		maxLoss  string
		curLoss  string
		isLocked int
		lockKind string
		lockedAt sql.NullTime
		daily    string
		monthly  string
		yearly   string
		version  int64
	)
	err := row.Scan(&p.UserID, &maxLoss, &p.MaxTradesPerDay, &p.MaxTradesMonthly, &p.MaxTradesYearly,
		&curLoss, &p.TradesToday, &p.TradesThisMonth, &p.TradesThisYear,
		&isLocked, &lockKind, &p.LockReason, &lockedAt,
		&daily, &monthly, &yearly, &version)
	if err == sql.ErrNoRows {
		return nil, 0, ErrProfileNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("query risk profile: %w", err)
	}

	if p.MaxDailyLoss, err = decimal.NewFromString(maxLoss); err != nil {
		return nil, 0, fmt.Errorf("parse max_daily_loss %q: %w", maxLoss, err)
	}
	if p.CurrentDailyLoss, err = decimal.NewFromString(curLoss); err != nil {
		return nil, 0, fmt.Errorf("parse current_daily_loss %q: %w", curLoss, err)
	}
	p.IsLocked = isLocked == 1
	p.LockKind = BreachKind(lockKind)
	if lockedAt.Valid {
		at := lockedAt.Time.UTC()
		p.LockedAt = &at
	}
	if p.LastDailyReset, err = parseDate(daily); err != nil {
		return nil, 0, err
	}
	if p.LastMonthlyReset, err = parseDate(monthly); err != nil {
		return nil, 0, err
	}
	if p.LastYearlyReset, err = parseDate(yearly); err != nil {
		return nil, 0, err
	}

	return &p, version, nil
}

// Create inserts a fresh profile at version 1.
func (s *SQLStore) Create(ctx context.Context, p *Profile) error {
	if p.UserID == "" {
		return ErrUserIDRequired
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_profiles (
			user_id, max_daily_loss, max_trades_per_day, max_trades_monthly, max_trades_yearly,
			current_daily_loss, trades_today, trades_this_month, trades_this_year,
			is_locked, lock_kind, lock_reason, locked_at,
			last_daily_reset, last_monthly_reset, last_yearly_reset, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
	`,
		p.UserID, p.MaxDailyLoss.String(), p.MaxTradesPerDay, p.MaxTradesMonthly, p.MaxTradesYearly,
		p.CurrentDailyLoss.String(), p.TradesToday, p.TradesThisMonth, p.TradesThisYear,
		boolToInt(p.IsLocked), nullIfEmpty(string(p.LockKind)), nullIfEmpty(p.LockReason), p.LockedAt,
		p.LastDailyReset.Format(dateLayout), p.LastMonthlyReset.Format(dateLayout), p.LastYearlyReset.Format(dateLayout),
	)
	if err != nil {
		return fmt.Errorf("insert risk profile: %w", err)
	}
	return nil
}

// Update persists the profile iff the row version is unchanged, bumping it.
func (s *SQLStore) Update(ctx context.Context, p *Profile, expectedVersion int64) error {
	if p.UserID == "" {
		return ErrUserIDRequired
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE risk_profiles
		SET max_daily_loss = ?, max_trades_per_day = ?, max_trades_monthly = ?, max_trades_yearly = ?,
		    current_daily_loss = ?, trades_today = ?, trades_this_month = ?, trades_this_year = ?,
		    is_locked = ?, lock_kind = ?, lock_reason = ?, locked_at = ?,
		    last_daily_reset = ?, last_monthly_reset = ?, last_yearly_reset = ?,
		    version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND version = ?
	`,
		p.MaxDailyLoss.String(), p.MaxTradesPerDay, p.MaxTradesMonthly, p.MaxTradesYearly,
		p.CurrentDailyLoss.String(), p.TradesToday, p.TradesThisMonth, p.TradesThisYear,
		boolToInt(p.IsLocked), nullIfEmpty(string(p.LockKind)), nullIfEmpty(p.LockReason), p.LockedAt,
		p.LastDailyReset.Format(dateLayout), p.LastMonthlyReset.Format(dateLayout), p.LastYearlyReset.Format(dateLayout),
		p.UserID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update risk profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse reset date %q: %w", s, err)
	}
	return t, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
