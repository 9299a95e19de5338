package events

// Event enumerates high-level topics inside the TradeGuard core.
type Event string

const (
	EventTradeOpened  Event = "trade.opened"
	EventTradeClosed  Event = "trade.closed"
	EventRiskLocked   Event = "risk.locked"
	EventRiskUnlocked Event = "risk.unlocked"
	EventRiskReset    Event = "risk.reset"
)

// RiskTransition is the payload for lock/unlock/reset topics.
type RiskTransition struct {
	UserID string `json:"user_id"`
	Event  Event  `json:"event"`
	Reason string `json:"reason,omitempty"`
}

// TradeActivity is the payload for trade lifecycle topics.
type TradeActivity struct {
	UserID  string `json:"user_id"`
	TradeID string `json:"trade_id"`
	Event   Event  `json:"event"`
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}
