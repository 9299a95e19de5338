package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"tradeguard/pkg/db"
)

// tradeView shapes a trade row for JSON responses. PnL is rendered as a
// string so clients never round it through float64.
func tradeView(t *db.Trade) gin.H {
	var closedAt any
	if t.ClosedAt != nil {
		closedAt = t.ClosedAt.UTC().Format(time.RFC3339)
	}
	return gin.H{
		"id":            t.ID,
		"symbol":        t.Symbol,
		"side":          t.Side,
		"external_id":   t.ExternalID,
		"status":        t.Status,
		"result":        t.Result,
		"pnl":           t.PnL.String(),
		"notes":         t.Notes,
		"followed_plan": t.FollowedPlan,
		"opened_at":     t.OpenedAt.UTC().Format(time.RFC3339),
		"closed_at":     closedAt,
	}
}
