package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event kinds broadcast over the websocket hub.
const (
	EventTradeOpened   = "trade_opened"
	EventTradeClosed   = "trade_closed"
	EventPriceUpdated  = "price_updated"
	EventYieldUpdated  = "yield_updated"
	EventStatusChanged = "status_changed"
)

// Event is the envelope every broadcast payload rides in.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// NewEvent wraps a payload in a stamped envelope.
func NewEvent(kind string, payload any) Event {
	return Event{
		ID:        uuid.New(),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// TradeOpenedEvent announces a newly opened trade.
type TradeOpenedEvent struct {
	TradeID     string          `json:"trade_id"`
	MasterAgent PublicKey       `json:"master_agent"`
	Pair        string          `json:"pair"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	TakeProfit  decimal.Decimal `json:"take_profit"`
	StopLoss    decimal.Decimal `json:"stop_loss"`
	Size        decimal.Decimal `json:"size"`
	TradeType   string          `json:"trade_type"`
}

// TradeClosedEvent announces a completed or cancelled trade with its PnL.
type TradeClosedEvent struct {
	TradeID     string          `json:"trade_id"`
	MasterAgent PublicKey       `json:"master_agent"`
	Pair        string          `json:"pair"`
	ClosePrice  decimal.Decimal `json:"close_price"`
	PnL         decimal.Decimal `json:"pnl"`
	Result      string          `json:"result"`
}

// PriceUpdatedEvent announces a master agent price change.
type PriceUpdatedEvent struct {
	MasterAgent      PublicKey       `json:"master_agent"`
	OldPrice         decimal.Decimal `json:"old_price"`
	NewPrice         decimal.Decimal `json:"new_price"`
	ChangeBps        int64           `json:"change_bps"`
	TotalValueLocked decimal.Decimal `json:"total_value_locked"`
}

// YieldUpdatedEvent announces a master agent yield-rate change.
type YieldUpdatedEvent struct {
	MasterAgent PublicKey `json:"master_agent"`
	OldYieldBps uint64    `json:"old_yield_bps"`
	NewYieldBps uint64    `json:"new_yield_bps"`
}

// StatusChangedEvent announces a user status transition.
type StatusChangedEvent struct {
	User      PublicKey  `json:"user"`
	OldStatus UserStatus `json:"old_status"`
	NewStatus UserStatus `json:"new_status"`
}

// QuoteDecimal renders a QUOTE_PRECISION integer amount as a decimal
// value with six fractional digits.
func QuoteDecimal(amount uint64) decimal.Decimal {
	return decimal.New(int64(amount), -6)
}
