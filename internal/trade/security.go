package trade

import (
	"sort"

	"github.com/tyield/engine/internal/oracle"
	"github.com/tyield/engine/internal/safemath"
)

// SecurityConfig bounds trade execution beyond per-trade validation:
// absolute position and price limits, circuit-breaker thresholds, and the
// oracle consensus required before a price is trusted.
type SecurityConfig struct {
	MaxPositionSize            uint64 `json:"max_position_size"`
	MaxPrice                   uint64 `json:"max_price"`
	MinPrice                   uint64 `json:"min_price"`
	CircuitBreakerThresholdBps uint64 `json:"circuit_breaker_threshold_bps"`
	MaxOracleDeviationBps      uint64 `json:"max_oracle_deviation_bps"`
	MinOracleConsensus         uint8  `json:"min_oracle_consensus"`
	MaxPriceAgeSec             uint32 `json:"max_price_age_sec"`
	EmergencyPauseThresholdBps uint64 `json:"emergency_pause_threshold_bps"`
}

// DefaultSecurityConfig mirrors the production limits: 1B position cap,
// prices in [1, 1T], 50% circuit breaker, 100% emergency pause, 10% oracle
// deviation, 2-oracle consensus, 5-minute price age.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxPositionSize:            1_000_000_000,
		MaxPrice:                   1_000_000_000_000,
		MinPrice:                   1,
		CircuitBreakerThresholdBps: 5000,
		MaxOracleDeviationBps:      1000,
		MinOracleConsensus:         2,
		MaxPriceAgeSec:             300,
		EmergencyPauseThresholdBps: 10000,
	}
}

// Consensus is the median aggregation of redundant oracle reads used by the
// flash-move protection path.
type Consensus struct {
	Price           uint64 `json:"price"`
	Count           uint8  `json:"count"`
	MaxDeviationBps uint64 `json:"max_deviation_bps"`
}

// CalculateConsensus takes the median of the non-zero prices and verifies
// that every contributor sits within maxDeviationBps of it. Fewer than
// minConsensus usable prices is a hard failure.
func CalculateConsensus(prices []oracle.Price, maxDeviationBps uint64, minConsensus uint8) (Consensus, error) {
	if len(prices) < int(minConsensus) {
		return Consensus{}, ErrConsensusNotMet
	}

	valid := make([]uint64, 0, len(prices))
	for _, p := range prices {
		if p.Mantissa > 0 {
			valid = append(valid, p.Mantissa)
		}
	}
	if len(valid) < int(minConsensus) {
		return Consensus{}, ErrConsensusNotMet
	}

	sort.Slice(valid, func(i, j int) bool { return valid[i] < valid[j] })
	var median uint64
	if len(valid)%2 == 0 {
		mid := len(valid) / 2
		median = (valid[mid-1] + valid[mid]) / 2
	} else {
		median = valid[len(valid)/2]
	}

	var maxDeviation uint64
	for _, price := range valid {
		deviation, err := deviationFrom(price, median)
		if err != nil {
			return Consensus{}, err
		}
		if deviation > maxDeviation {
			maxDeviation = deviation
		}
	}
	if maxDeviation > maxDeviationBps {
		return Consensus{}, ErrOracleDeviationTooHigh
	}

	return Consensus{
		Price:           median,
		Count:           uint8(len(valid)),
		MaxDeviationBps: maxDeviation,
	}, nil
}

// ValidateTradeLimits enforces the absolute size and price bounds.
func (t *Trade) ValidateTradeLimits(limits SecurityConfig) error {
	if t.Size == 0 || t.Size > limits.MaxPositionSize {
		return ErrInvalidSize
	}
	if t.EntryPrice == 0 || t.EntryPrice < limits.MinPrice || t.EntryPrice > limits.MaxPrice {
		return ErrInvalidEntryPrice
	}
	if t.TakeProfit == 0 || t.TakeProfit > limits.MaxPrice {
		return ErrInvalidEntryPrice
	}
	if t.StopLoss == 0 || t.StopLoss < limits.MinPrice {
		return ErrInvalidEntryPrice
	}
	return nil
}

// CheckCircuitBreaker rejects execution when the breaker has tripped or the
// move from entry breaches the configured thresholds.
func (t *Trade) CheckCircuitBreaker(currentPrice uint64, cfg SecurityConfig) error {
	if t.CircuitBreakerTripped {
		return ErrCircuitBreakerTriggered
	}
	change, err := deviationFrom(currentPrice, t.EntryPrice)
	if err != nil {
		return err
	}
	if change > cfg.CircuitBreakerThresholdBps {
		return ErrCircuitBreakerTriggered
	}
	if change > cfg.EmergencyPauseThresholdBps {
		return ErrEmergencyPauseActive
	}
	return nil
}

// ValidatePriceWithFlashProtection checks currentPrice against the oracle
// consensus, and escalates the consensus requirement to three sources when
// the price has moved more than 20% from entry.
func (t *Trade) ValidatePriceWithFlashProtection(currentPrice uint64, consensus Consensus, cfg SecurityConfig) error {
	if currentPrice == 0 {
		return ErrPriceValidationFailed
	}
	deviation, err := deviationFrom(currentPrice, consensus.Price)
	if err != nil {
		return err
	}
	if deviation > cfg.MaxOracleDeviationBps {
		return ErrPriceDeviationTooHigh
	}

	tradeMove, err := deviationFrom(currentPrice, t.EntryPrice)
	if err != nil {
		return err
	}
	if tradeMove > 2000 && consensus.Count < 3 {
		return ErrConsensusNotMet
	}
	return nil
}

// ValidateSecureExecution is the full pre-execution audit, ordered:
// structure, limits, circuit breaker, consensus, flash protection, then the
// standard slippage, distance, and risk-reward checks.
func (t *Trade) ValidateSecureExecution(currentPrice uint64, prices []oracle.Price, sec SecurityConfig, val ValidationConfig) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if err := t.ValidateTradeLimits(sec); err != nil {
		return err
	}
	if err := t.CheckCircuitBreaker(currentPrice, sec); err != nil {
		return err
	}
	consensus, err := CalculateConsensus(prices, sec.MaxOracleDeviationBps, sec.MinOracleConsensus)
	if err != nil {
		return err
	}
	if err := t.ValidatePriceWithFlashProtection(currentPrice, consensus, sec); err != nil {
		return err
	}
	if err := t.ValidatePriceWithSlippage(currentPrice, val.MaxSlippageBps); err != nil {
		return err
	}
	if err := t.ValidateRiskManagementLevels(val.MinDistanceBps); err != nil {
		return err
	}
	return t.ValidateRiskRewardRatio(val.MinRiskRewardBps)
}

// CompleteSecure closes an active trade with a result, rejecting PnL claims
// beyond 1000x the position size.
func (t *Trade) CompleteSecure(result Result, authority [32]byte, pnl int64, now int64) error {
	if authority != t.Authority {
		return ErrInvalidAuthority
	}
	if !t.IsActive() {
		return ErrCannotPerformAction
	}
	maxExpected, err := safemath.Mul(t.Size, 1000)
	if err != nil {
		return err
	}
	if abs64(pnl) > maxExpected {
		return ErrPriceValidationFailed
	}
	if err := t.SetStatus(StatusCompleted, authority, now); err != nil {
		return err
	}
	return t.SetResult(result, authority, now)
}

// CancelSecure cancels an active trade and records a failed result.
func (t *Trade) CancelSecure(authority [32]byte, now int64) error {
	if authority != t.Authority {
		return ErrInvalidAuthority
	}
	if !t.IsActive() {
		return ErrCannotPerformAction
	}
	if err := t.SetStatus(StatusCancelled, authority, now); err != nil {
		return err
	}
	return t.SetResult(ResultFailed, authority, now)
}

// TriggerCircuitBreaker trips the per-trade breaker.
func (t *Trade) TriggerCircuitBreaker(authority [32]byte, now int64) error {
	if authority != t.Authority {
		return ErrInvalidAuthority
	}
	t.CircuitBreakerTripped = true
	t.UpdatedAt = now
	return nil
}

// ResetCircuitBreaker clears a tripped breaker.
func (t *Trade) ResetCircuitBreaker(now int64) {
	t.CircuitBreakerTripped = false
	t.UpdatedAt = now
}
