package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrUserIDRequired guards every user-scoped query for data isolation.
	ErrUserIDRequired = errors.New("user_id is required for data isolation")
	// ErrNotFound is returned when a row does not exist for the user.
	ErrNotFound = errors.New("record not found")
)

// Trade lifecycle states and results.
const (
	TradeStatusOpen   = "OPEN"
	TradeStatusClosed = "CLOSED"

	TradeResultWin       = "WIN"
	TradeResultLoss      = "LOSS"
	TradeResultBreakeven = "BREAKEVEN"
)

// User represents an application user.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Trade represents a journal entry stored in the DB.
type Trade struct {
	ID           string
	UserID       string // Multi-user isolation
	Symbol       string
	Side         string
	ExternalID   string // ID from the broker, empty for manual entries
	Status       string
	Result       string
	PnL          decimal.Decimal
	Notes        string
	FollowedPlan bool
	OpenedAt     time.Time
	ClosedAt     *time.Time
}

// CreateUser inserts a new user row.
func (d *Database) CreateUser(ctx context.Context, u User) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP), COALESCE(?, CURRENT_TIMESTAMP))
	`, u.ID, strings.ToLower(u.Email), u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	return err
}

// GetUserByEmail returns a user by email or nil if not found.
func (d *Database) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE email = ?
	`, strings.ToLower(email))
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// CreateTrade inserts a new trade row.
func (d *Database) CreateTrade(ctx context.Context, t Trade) error {
	if t.UserID == "" {
		return ErrUserIDRequired
	}

	var externalID any
	if t.ExternalID != "" {
		externalID = t.ExternalID
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO trades (
			id, user_id, symbol, side, external_id, status, result, pnl,
			notes, followed_plan, opened_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`, t.ID, t.UserID, t.Symbol, t.Side, externalID, t.Status, nullIfEmpty(t.Result),
		t.PnL.String(), t.Notes, boolToInt(t.FollowedPlan), t.OpenedAt)
	return err
}

// GetTradeByID returns a trade by ID, verifying user ownership.
func (d *Database) GetTradeByID(ctx context.Context, userID, tradeID string) (*Trade, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	row := d.DB.QueryRowContext(ctx, `
		SELECT id, user_id, symbol, side, COALESCE(external_id, ''), status,
		       COALESCE(result, ''), pnl, notes, followed_plan, opened_at, closed_at
		FROM trades
		WHERE id = ? AND user_id = ?
	`, tradeID, userID)

	t, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query trade: %w", err)
	}
	return t, nil
}

// CloseTrade transitions an open trade to CLOSED with its result and PnL.
// Returns ErrNotFound when the trade is missing or already closed, which
// keeps the close operation idempotence-safe for racing callers.
func (d *Database) CloseTrade(ctx context.Context, userID, tradeID, result string, pnl decimal.Decimal, notes string, closedAt time.Time) error {
	if userID == "" {
		return ErrUserIDRequired
	}

	res, err := d.DB.ExecContext(ctx, `
		UPDATE trades
		SET status = ?, result = ?, pnl = ?, notes = ?, closed_at = ?
		WHERE id = ? AND user_id = ? AND status = ?
	`, TradeStatusClosed, result, pnl.String(), notes, closedAt, tradeID, userID, TradeStatusOpen)
	if err != nil {
		return fmt.Errorf("close trade: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTradesByUser returns trades for a specific user, newest first.
func (d *Database) ListTradesByUser(ctx context.Context, userID string, limit int) ([]Trade, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, user_id, symbol, side, COALESCE(external_id, ''), status,
		       COALESCE(result, ''), pnl, notes, followed_plan, opened_at, closed_at
		FROM trades
		WHERE user_id = ?
		ORDER BY opened_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (*Trade, error) {
	var (
		t            Trade
		pnlRaw       string
		followedPlan int
		closedAt     sql.NullTime
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Symbol, &t.Side, &t.ExternalID, &t.Status,
		&t.Result, &pnlRaw, &t.Notes, &followedPlan, &t.OpenedAt, &closedAt)
	if err != nil {
		return nil, err
	}

	pnl, err := decimal.NewFromString(pnlRaw)
	if err != nil {
		return nil, fmt.Errorf("parse pnl %q: %w", pnlRaw, err)
	}
	t.PnL = pnl
	t.FollowedPlan = followedPlan == 1
	if closedAt.Valid {
		closed := closedAt.Time
		t.ClosedAt = &closed
	}
	return &t, nil
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
