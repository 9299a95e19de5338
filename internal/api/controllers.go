package api

import (
	"errors"
	"net/http"

	"tradeguard/internal/journal"
	"tradeguard/internal/risk"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type updateLimitsRequest struct {
	MaxDailyLoss     *decimal.Decimal `json:"max_daily_loss"`
	MaxTradesPerDay  *int             `json:"max_trades_per_day"`
	MaxTradesMonthly *int             `json:"max_trades_monthly"`
	MaxTradesYearly  *int             `json:"max_trades_yearly"`
}

type openTradeRequest struct {
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	ExternalID   string `json:"external_id"`
	Notes        string `json:"notes"`
	FollowedPlan *bool  `json:"followed_plan"`
}

type closeTradeRequest struct {
	Result string          `json:"result" binding:"required,min=1"`
	PnL    decimal.Decimal `json:"pnl"`
	Notes  string          `json:"notes"`
}

type listTradesQuery struct {
	Limit int `form:"limit"`
}

func (q *listTradesQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// getRiskProfile returns the current user's risk profile plus the live
// discipline decision, auto-provisioning a default profile for new users.
func (s *Server) getRiskProfile(c *gin.Context) {
	userID := CurrentUserID(c)
	if userID == "" {
		respondError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "user not authenticated")
		return
	}

	profile, decision, err := s.Risk.GetProfile(c.Request.Context(), userID)
	if err != nil {
		s.respondRiskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"profile": profile,
		"status":  decision,
	})
}

// updateRiskLimits applies a partial limits update. Edits are refused while
// the terminal is locked.
func (s *Server) updateRiskLimits(c *gin.Context) {
	userID := CurrentUserID(c)
	if userID == "" {
		respondError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "user not authenticated")
		return
	}

	var req updateLimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}

	ctx := c.Request.Context()
	profile, _, err := s.Risk.GetProfile(ctx, userID)
	if err != nil {
		s.respondRiskError(c, err)
		return
	}

	limits := profile.Limits
	if req.MaxDailyLoss != nil {
		limits.MaxDailyLoss = *req.MaxDailyLoss
	}
	if req.MaxTradesPerDay != nil {
		limits.MaxTradesPerDay = *req.MaxTradesPerDay
	}
	if req.MaxTradesMonthly != nil {
		limits.MaxTradesMonthly = *req.MaxTradesMonthly
	}
	if req.MaxTradesYearly != nil {
		limits.MaxTradesYearly = *req.MaxTradesYearly
	}

	updated, err := s.Risk.UpdateLimits(ctx, userID, limits)
	if err != nil {
		s.respondRiskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"profile": updated})
}

// resetRiskProfile is the administrative/demo override: zero counters,
// clear the lock.
func (s *Server) resetRiskProfile(c *gin.Context) {
	userID := CurrentUserID(c)
	if userID == "" {
		respondError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "user not authenticated")
		return
	}

	profile, err := s.Risk.ResetProfile(c.Request.Context(), userID)
	if err != nil {
		s.respondRiskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "Risk stats reset",
		"profile": profile,
	})
}

// openTrade records a new journal entry and reports the post-open
// discipline decision. The trade is persisted regardless of the decision;
// a deny applies to the next attempt.
func (s *Server) openTrade(c *gin.Context) {
	userID := CurrentUserID(c)
	if userID == "" {
		respondError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "user not authenticated")
		return
	}

	var req openTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}

	followedPlan := true
	if req.FollowedPlan != nil {
		followedPlan = *req.FollowedPlan
	}

	trade, decision, err := s.Journal.Open(c.Request.Context(), userID, journal.OpenInput{
		Symbol:       req.Symbol,
		Side:         req.Side,
		ExternalID:   req.ExternalID,
		Notes:        req.Notes,
		FollowedPlan: followedPlan,
	})
	if err != nil {
		s.respondRiskError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"trade":  tradeView(trade),
		"status": decision,
	})
}

// closeTrade transitions an open trade to CLOSED and reports the post-close
// discipline decision.
func (s *Server) closeTrade(c *gin.Context) {
	userID := CurrentUserID(c)
	if userID == "" {
		respondError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "user not authenticated")
		return
	}

	var req closeTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}

	trade, decision, err := s.Journal.Close(c.Request.Context(), userID, c.Param("id"), journal.CloseInput{
		Result: req.Result,
		PnL:    req.PnL,
		Notes:  req.Notes,
	})
	if err != nil {
		switch {
		case errors.Is(err, journal.ErrTradeNotFound):
			respondError(c, http.StatusNotFound, "TRADE_NOT_FOUND", err.Error())
		case errors.Is(err, journal.ErrInvalidResult):
			respondError(c, http.StatusBadRequest, "INVALID_RESULT", err.Error())
		default:
			s.respondRiskError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trade":  tradeView(trade),
		"status": decision,
	})
}

// listTrades returns the user's journal, newest first.
func (s *Server) listTrades(c *gin.Context) {
	userID := CurrentUserID(c)
	if userID == "" {
		respondError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "user not authenticated")
		return
	}

	var q listTradesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return
	}
	q.normalize()

	trades, err := s.Journal.List(c.Request.Context(), userID, q.Limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}

	views := make([]gin.H, 0, len(trades))
	for i := range trades {
		views = append(views, tradeView(&trades[i]))
	}
	c.JSON(http.StatusOK, views)
}

// getTradeStats returns dashboard aggregates (win rate, P&L, discipline).
func (s *Server) getTradeStats(c *gin.Context) {
	userID := CurrentUserID(c)
	if userID == "" {
		respondError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "user not authenticated")
		return
	}

	stats, err := s.Journal.Stats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, stats)
}

// getMetrics exposes the system metrics snapshot.
func (s *Server) getMetrics(c *gin.Context) {
	if s.Metrics == nil {
		respondError(c, http.StatusServiceUnavailable, "METRICS_UNAVAILABLE", "metrics not initialized")
		return
	}
	c.JSON(http.StatusOK, s.Metrics.GetSnapshot())
}

// respondRiskError maps engine errors onto HTTP statuses.
func (s *Server) respondRiskError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, risk.ErrLocked):
		respondError(c, http.StatusConflict, "PROFILE_LOCKED",
			"Changes to Risk limits are prohibited while the terminal is locked. Integrity is key.")
	case errors.Is(err, risk.ErrInvalidLimits):
		respondError(c, http.StatusBadRequest, "INVALID_LIMITS", err.Error())
	case errors.Is(err, risk.ErrConflict):
		respondError(c, http.StatusServiceUnavailable, "CONFLICT", "concurrent update conflict, retry shortly")
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}
