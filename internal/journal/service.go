// Package journal manages the trade lifecycle and feeds the risk engine
// with open/close activity.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradeguard/internal/events"
	"tradeguard/internal/monitor"
	"tradeguard/internal/risk"
	"tradeguard/pkg/db"
)

var (
	// ErrTradeNotFound covers missing trades and double-close attempts.
	ErrTradeNotFound = errors.New("trade not found or already closed")
	// ErrInvalidResult rejects unknown close results.
	ErrInvalidResult = errors.New("result must be WIN, LOSS or BREAKEVEN")
)

// Service persists trades and keeps the risk engine's activity counters in
// sync with the trade lifecycle.
type Service struct {
	db      *db.Database
	engine  *risk.Engine
	bus     *events.Bus
	metrics *monitor.SystemMetrics
}

// NewService wires the journal against the shared DB and risk engine.
func NewService(database *db.Database, engine *risk.Engine, bus *events.Bus, metrics *monitor.SystemMetrics) *Service {
	return &Service{
		db:      database,
		engine:  engine,
		bus:     bus,
		metrics: metrics,
	}
}

// OpenInput describes a new journal entry.
type OpenInput struct {
	Symbol       string
	Side         string
	ExternalID   string
	Notes        string
	FollowedPlan bool
}

// CloseInput describes a trade closure.
type CloseInput struct {
	Result string
	PnL    decimal.Decimal
	Notes  string
}

// Stats aggregates closed-trade performance for the dashboard.
type Stats struct {
	TotalTrades    int             `json:"total_trades"`
	Wins           int             `json:"wins"`
	Losses         int             `json:"losses"`
	Breakevens     int             `json:"breakevens"`
	WinRate        float64         `json:"win_rate"`
	TotalPnL       decimal.Decimal `json:"total_pnl"`
	AvgWin         decimal.Decimal `json:"avg_win"`
	AvgLoss        decimal.Decimal `json:"avg_loss"`
	DisciplineRate float64         `json:"discipline_rate"`
}

// Open persists the trade first, then records the activity with the risk
// engine. The engine never blocks trade persistence: even a decision that
// locks the terminal leaves this trade recorded, and only the next open is
// denied.
func (s *Service) Open(ctx context.Context, userID string, in OpenInput) (*db.Trade, risk.Decision, error) {
	trade := db.Trade{
		ID:           uuid.NewString(),
		UserID:       userID,
		Symbol:       strings.ToUpper(strings.TrimSpace(in.Symbol)),
		Side:         strings.ToUpper(strings.TrimSpace(in.Side)),
		ExternalID:   strings.TrimSpace(in.ExternalID),
		Status:       db.TradeStatusOpen,
		PnL:          decimal.Zero,
		Notes:        in.Notes,
		FollowedPlan: in.FollowedPlan,
		OpenedAt:     time.Now().UTC(),
	}
	if err := s.db.CreateTrade(ctx, trade); err != nil {
		return nil, risk.Decision{}, fmt.Errorf("create trade: %w", err)
	}

	dec, err := s.engine.TradeOpened(ctx, userID)
	if err != nil {
		return nil, risk.Decision{}, fmt.Errorf("record trade open: %w", err)
	}

	if s.metrics != nil {
		s.metrics.IncrementTradesOpened()
	}
	if s.bus != nil {
		s.bus.Publish(events.EventTradeOpened, events.TradeActivity{
			UserID:  userID,
			TradeID: trade.ID,
			Event:   events.EventTradeOpened,
			Allowed: dec.Allowed,
			Reason:  dec.Reason,
		})
	}
	log.Printf("[JOURNAL] trade %s opened for user %s (%s %s)", trade.ID, userID, trade.Side, trade.Symbol)

	return &trade, dec, nil
}

// Close transitions an open trade to CLOSED exactly once and syncs the
// realized result with the risk engine. Only LOSS results with negative PnL
// feed the daily loss counter; wins are a bonus.
func (s *Service) Close(ctx context.Context, userID, tradeID string, in CloseInput) (*db.Trade, risk.Decision, error) {
	result := strings.ToUpper(strings.TrimSpace(in.Result))
	switch result {
	case db.TradeResultWin, db.TradeResultLoss, db.TradeResultBreakeven:
	default:
		return nil, risk.Decision{}, ErrInvalidResult
	}

	err := s.db.CloseTrade(ctx, userID, tradeID, result, in.PnL, in.Notes, time.Now().UTC())
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, risk.Decision{}, ErrTradeNotFound
		}
		return nil, risk.Decision{}, err
	}

	lossPnL := decimal.Zero
	if result == db.TradeResultLoss {
		lossPnL = in.PnL
	}
	dec, err := s.engine.TradeClosed(ctx, userID, lossPnL)
	if err != nil {
		return nil, risk.Decision{}, fmt.Errorf("record trade close: %w", err)
	}

	if s.metrics != nil {
		s.metrics.IncrementTradesClosed()
	}
	if s.bus != nil {
		s.bus.Publish(events.EventTradeClosed, events.TradeActivity{
			UserID:  userID,
			TradeID: tradeID,
			Event:   events.EventTradeClosed,
			Allowed: dec.Allowed,
			Reason:  dec.Reason,
		})
	}

	trade, err := s.db.GetTradeByID(ctx, userID, tradeID)
	if err != nil {
		return nil, dec, err
	}
	return trade, dec, nil
}

// List returns the user's trades, newest first.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]db.Trade, error) {
	return s.db.ListTradesByUser(ctx, userID, limit)
}

// Stats computes win rate, P&L aggregates and the discipline rate (share of
// trades where the user followed their plan).
func (s *Service) Stats(ctx context.Context, userID string) (Stats, error) {
	trades, err := s.db.ListTradesByUser(ctx, userID, 10000)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		TotalPnL: decimal.Zero,
		AvgWin:   decimal.Zero,
		AvgLoss:  decimal.Zero,
	}

	winSum := decimal.Zero
	lossSum := decimal.Zero
	disciplined := 0
	for _, t := range trades {
		stats.TotalTrades++
		if t.FollowedPlan {
			disciplined++
		}
		if t.Status != db.TradeStatusClosed {
			continue
		}
		stats.TotalPnL = stats.TotalPnL.Add(t.PnL)
		switch t.Result {
		case db.TradeResultWin:
			stats.Wins++
			winSum = winSum.Add(t.PnL)
		case db.TradeResultLoss:
			stats.Losses++
			lossSum = lossSum.Add(t.PnL)
		case db.TradeResultBreakeven:
			stats.Breakevens++
		}
	}

	if stats.TotalTrades > 0 {
		stats.WinRate = round1(float64(stats.Wins) / float64(stats.TotalTrades) * 100)
		stats.DisciplineRate = round1(float64(disciplined) / float64(stats.TotalTrades) * 100)
	}
	if stats.Wins > 0 {
		stats.AvgWin = winSum.Div(decimal.NewFromInt(int64(stats.Wins)))
	}
	if stats.Losses > 0 {
		stats.AvgLoss = lossSum.Div(decimal.NewFromInt(int64(stats.Losses)))
	}

	return stats, nil
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
