// Package trade implements the trade entity and the risk engine that gates
// opening, updating, and closing positions.
//
// A trade is a fixed-size position against a master agent with an entry
// price, a take-profit, and a stop-loss, all in integer quote units. The
// risk engine layers validation on top: structural checks, slippage and
// distance bounds, risk-reward floors, oracle deviation, circuit breakers,
// and flash-move consensus escalation.
package trade

import (
	"encoding/hex"
	"errors"
	"math"
	"strings"

	"github.com/tyield/engine/internal/safemath"
)

// Status is a trade lifecycle state.
type Status uint8

// Type is the trade direction.
type Type uint8

// Result is the realized outcome of a closed trade.
type Result uint8

const (
	StatusActive    Status = 1
	StatusCompleted Status = 2
	StatusCancelled Status = 4

	TypeBuy  Type = 1
	TypeSell Type = 2

	ResultSuccess Result = 1
	ResultFailed  Result = 2
	ResultPending Result = 4
)

var (
	ErrInvalidSize             = errors.New("trade: invalid trade size")
	ErrInvalidEntryPrice       = errors.New("trade: invalid entry price")
	ErrInvalidTakeProfitBuy    = errors.New("trade: take profit must exceed entry for buys")
	ErrInvalidStopLossBuy      = errors.New("trade: stop loss must be below entry for buys")
	ErrInvalidTakeProfitSell   = errors.New("trade: take profit must be below entry for sells")
	ErrInvalidStopLossSell     = errors.New("trade: stop loss must exceed entry for sells")
	ErrInvalidAuthority        = errors.New("trade: invalid authority")
	ErrCannotPerformAction     = errors.New("trade: action not allowed in current state")
	ErrPriceValidationFailed   = errors.New("trade: price validation failed")
	ErrMaxPriceSlippage        = errors.New("trade: price slippage exceeds maximum")
	ErrTakeProfitTooClose      = errors.New("trade: take profit too close to entry")
	ErrStopLossTooClose        = errors.New("trade: stop loss too close to entry")
	ErrInsufficientRiskReward  = errors.New("trade: risk-reward ratio below minimum")
	ErrPriceDeviationTooHigh   = errors.New("trade: oracle price deviation too high")
	ErrPriceOutOfRange         = errors.New("trade: price outside acceptable range")
	ErrConsensusNotMet         = errors.New("trade: oracle consensus threshold not met")
	ErrOracleDeviationTooHigh  = errors.New("trade: oracle deviation from consensus too high")
	ErrCircuitBreakerTriggered = errors.New("trade: circuit breaker triggered")
	ErrEmergencyPauseActive    = errors.New("trade: emergency pause active")
)

// Trade is one position opened by a master agent.
type Trade struct {
	ID          string   `json:"id"`
	MasterAgent [32]byte `json:"master_agent"`
	Authority   [32]byte `json:"authority"`
	FeedID      [32]byte `json:"feed_id"`
	Pair        [8]byte  `json:"pair"`

	Size       uint64 `json:"size"`
	EntryPrice uint64 `json:"entry_price"`
	TakeProfit uint64 `json:"take_profit"`
	StopLoss   uint64 `json:"stop_loss"`

	Status Status `json:"status"`
	Type   Type   `json:"trade_type"`
	Result Result `json:"result"`

	CreatedAt             int64 `json:"created_at"`
	UpdatedAt             int64 `json:"updated_at"`
	LastPriceUpdate       int64 `json:"last_price_update"`
	OracleConsensusCount  uint8 `json:"oracle_consensus_count"`
	CircuitBreakerTripped bool  `json:"circuit_breaker_tripped"`
}

// InitParams carries the fields needed to open a trade.
type InitParams struct {
	ID          string
	MasterAgent [32]byte
	Authority   [32]byte
	FeedID      [32]byte
	Pair        [8]byte
	Size        uint64
	EntryPrice  uint64
	TakeProfit  uint64
	StopLoss    uint64
	Type        Type
	CreatedAt   int64
}

// New opens an active trade from params and validates it structurally.
func New(params InitParams) (*Trade, error) {
	t := &Trade{
		ID:              params.ID,
		MasterAgent:     params.MasterAgent,
		Authority:       params.Authority,
		FeedID:          params.FeedID,
		Pair:            params.Pair,
		Size:            params.Size,
		EntryPrice:      params.EntryPrice,
		TakeProfit:      params.TakeProfit,
		StopLoss:        params.StopLoss,
		Status:          StatusActive,
		Type:            params.Type,
		Result:          ResultPending,
		CreatedAt:       params.CreatedAt,
		UpdatedAt:       params.CreatedAt,
		LastPriceUpdate: params.CreatedAt,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Trade) IsActive() bool    { return t.Status == StatusActive }
func (t *Trade) IsCompleted() bool { return t.Status == StatusCompleted }
func (t *Trade) IsCancelled() bool { return t.Status == StatusCancelled }
func (t *Trade) IsBuy() bool       { return t.Type == TypeBuy }
func (t *Trade) IsSell() bool      { return t.Type == TypeSell }

// SetStatus transitions the lifecycle state. Only Active→Completed,
// Active→Cancelled, and Completed→Cancelled are legal; terminal states are
// otherwise immutable.
func (t *Trade) SetStatus(status Status, authority [32]byte, now int64) error {
	if authority != t.Authority {
		return ErrInvalidAuthority
	}
	allowed := (t.Status == StatusActive && status == StatusCompleted) ||
		(t.Status == StatusActive && status == StatusCancelled) ||
		(t.Status == StatusCompleted && status == StatusCancelled)
	if !allowed {
		return ErrCannotPerformAction
	}
	t.Status = status
	t.UpdatedAt = now
	return nil
}

// SetResult records the realized outcome.
func (t *Trade) SetResult(result Result, authority [32]byte, now int64) error {
	if authority != t.Authority {
		return ErrInvalidAuthority
	}
	t.Result = result
	t.UpdatedAt = now
	return nil
}

// Validate performs the structural checks every trade must satisfy: nonzero
// size and entry, and TP/SL on the correct side of entry for the direction.
func (t *Trade) Validate() error {
	if t.Size == 0 {
		return ErrInvalidSize
	}
	if t.EntryPrice == 0 {
		return ErrInvalidEntryPrice
	}
	if t.IsBuy() && t.TakeProfit <= t.EntryPrice {
		return ErrInvalidTakeProfitBuy
	}
	if t.IsSell() && t.TakeProfit >= t.EntryPrice {
		return ErrInvalidTakeProfitSell
	}
	if t.IsBuy() && t.StopLoss >= t.EntryPrice {
		return ErrInvalidStopLossBuy
	}
	if t.IsSell() && t.StopLoss <= t.EntryPrice {
		return ErrInvalidStopLossSell
	}
	return nil
}

// PnL returns the signed profit or loss at currentPrice:
// (|current-entry| * size) / entry, positive when the move favors the
// direction of the trade.
func (t *Trade) PnL(currentPrice uint64) (int64, error) {
	if currentPrice == 0 {
		return 0, ErrInvalidEntryPrice
	}

	var diff uint64
	var sign int64
	var err error
	if t.IsBuy() {
		if currentPrice >= t.EntryPrice {
			diff, err = safemath.Sub(currentPrice, t.EntryPrice)
			sign = 1
		} else {
			diff, err = safemath.Sub(t.EntryPrice, currentPrice)
			sign = -1
		}
	} else if t.EntryPrice >= currentPrice {
		diff, err = safemath.Sub(t.EntryPrice, currentPrice)
		sign = 1
	} else {
		diff, err = safemath.Sub(currentPrice, t.EntryPrice)
		sign = -1
	}
	if err != nil {
		return 0, err
	}

	pnl, err := safemath.MulDiv(diff, t.Size, t.EntryPrice)
	if err != nil {
		return 0, err
	}
	if pnl > uint64(math.MaxInt64) {
		return 0, safemath.ErrConversion
	}
	return int64(pnl) * sign, nil
}

// PnLPercentage returns the move from entry in basis points, positive when
// it favors the trade direction.
func (t *Trade) PnLPercentage(currentPrice uint64) (int64, error) {
	if currentPrice == 0 {
		return 0, ErrInvalidEntryPrice
	}
	var diff uint64
	var err error
	if t.IsBuy() {
		diff, err = safemath.Sub(currentPrice, t.EntryPrice)
	} else {
		diff, err = safemath.Sub(t.EntryPrice, currentPrice)
	}
	if err != nil {
		return 0, err
	}
	bps, err := safemath.MulDiv(diff, safemath.PercentagePrecision, t.EntryPrice)
	if err != nil {
		return 0, err
	}
	return int64(bps), nil
}

// UnrealizedPnL is the PnL if closed now; terminal trades carry none.
func (t *Trade) UnrealizedPnL(currentPrice uint64) (int64, error) {
	if !t.IsActive() {
		return 0, nil
	}
	return t.PnL(currentPrice)
}

// MaxProfit is the PnL at the take-profit level.
func (t *Trade) MaxProfit() (int64, error) { return t.PnL(t.TakeProfit) }

// MaxLoss is the PnL at the stop-loss level.
func (t *Trade) MaxLoss() (int64, error) { return t.PnL(t.StopLoss) }

// RiskRewardRatio returns |max profit| / |max loss| in basis points
// (200 bps = 2:1). A zero-loss configuration has no defined ratio.
func (t *Trade) RiskRewardRatio() (uint64, error) {
	profit, err := t.MaxProfit()
	if err != nil {
		return 0, err
	}
	loss, err := t.MaxLoss()
	if err != nil {
		return 0, err
	}
	if loss == 0 {
		return 0, safemath.ErrDivideByZero
	}
	return safemath.MulDiv(abs64(profit), safemath.PercentagePrecision, abs64(loss))
}

// HasHitTakeProfit reports whether currentPrice triggers the take-profit.
// Terminal trades never trigger.
func (t *Trade) HasHitTakeProfit(currentPrice uint64) bool {
	if !t.IsActive() {
		return false
	}
	if t.IsBuy() {
		return currentPrice >= t.TakeProfit
	}
	return currentPrice <= t.TakeProfit
}

// HasHitStopLoss reports whether currentPrice triggers the stop-loss.
// Terminal trades never trigger.
func (t *Trade) HasHitStopLoss(currentPrice uint64) bool {
	if !t.IsActive() {
		return false
	}
	if t.IsBuy() {
		return currentPrice <= t.StopLoss
	}
	return currentPrice >= t.StopLoss
}

// Update rewrites the mutable risk levels of an active trade.
func (t *Trade) Update(size, takeProfit, stopLoss uint64, authority [32]byte, now int64) error {
	if authority != t.Authority {
		return ErrInvalidAuthority
	}
	if !t.IsActive() {
		return ErrCannotPerformAction
	}
	prev := *t
	t.Size = size
	t.TakeProfit = takeProfit
	t.StopLoss = stopLoss
	if err := t.Validate(); err != nil {
		*t = prev
		return err
	}
	t.UpdatedAt = now
	return nil
}

// PairString renders the encoded pair symbol.
func (t *Trade) PairString() string {
	return strings.TrimRight(string(t.Pair[:]), "\x00")
}

// FeedIDString renders the oracle feed identifier as hex.
func (t *Trade) FeedIDString() string {
	return hex.EncodeToString(t.FeedID[:])
}

// Duration is the age of the trade in seconds.
func (t *Trade) Duration(now int64) int64 { return now - t.CreatedAt }

func abs64(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}
