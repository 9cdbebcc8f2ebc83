package trade

import (
	"github.com/tyield/engine/internal/oracle"
	"github.com/tyield/engine/internal/safemath"
)

// ValidationConfig bundles the price-protection parameters applied when a
// trade is opened or updated. All fields are basis points.
type ValidationConfig struct {
	MaxSlippageBps    uint64 `json:"max_slippage_bps"`
	MinDistanceBps    uint64 `json:"min_distance_bps"`
	MinRiskRewardBps  uint64 `json:"min_risk_reward_bps"`
	MaxDeviationBps   uint64 `json:"max_deviation_bps"`
	RangeBufferBps    uint64 `json:"range_buffer_bps"`
	SpreadBps         uint64 `json:"spread_bps"`
	SlippageBufferBps uint64 `json:"slippage_buffer_bps"`
}

// DefaultValidationConfig is the balanced preset: 5% slippage, 1% distance,
// 1.5:1 risk-reward, 2% oracle deviation.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxSlippageBps:    500,
		MinDistanceBps:    100,
		MinRiskRewardBps:  150,
		MaxDeviationBps:   200,
		RangeBufferBps:    50,
		SpreadBps:         50,
		SlippageBufferBps: 25,
	}
}

// ConservativeValidationConfig tightens every bound for volatile markets.
func ConservativeValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxSlippageBps:    200,
		MinDistanceBps:    200,
		MinRiskRewardBps:  200,
		MaxDeviationBps:   100,
		RangeBufferBps:    25,
		SpreadBps:         25,
		SlippageBufferBps: 10,
	}
}

// AggressiveValidationConfig loosens the bounds for calm markets.
func AggressiveValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxSlippageBps:    1000,
		MinDistanceBps:    50,
		MinRiskRewardBps:  100,
		MaxDeviationBps:   500,
		RangeBufferBps:    100,
		SpreadBps:         100,
		SlippageBufferBps: 50,
	}
}

// Validate rejects configurations that cannot gate anything coherently.
func (c ValidationConfig) Validate() error {
	if c.MaxSlippageBps == 0 || c.MinDistanceBps == 0 {
		return ErrPriceValidationFailed
	}
	if c.MaxSlippageBps < c.MinDistanceBps {
		return ErrPriceValidationFailed
	}
	return nil
}

// ValidatePriceWithSlippage bounds how far currentPrice may sit from entry.
func (t *Trade) ValidatePriceWithSlippage(currentPrice, maxSlippageBps uint64) error {
	if currentPrice == 0 {
		return ErrPriceValidationFailed
	}
	slippage, err := deviationFrom(currentPrice, t.EntryPrice)
	if err != nil {
		return err
	}
	if slippage > maxSlippageBps {
		return ErrMaxPriceSlippage
	}
	return nil
}

// ValidateRiskManagementLevels requires TP and SL to sit at least
// minDistanceBps away from entry.
func (t *Trade) ValidateRiskManagementLevels(minDistanceBps uint64) error {
	tpDistance, err := deviationFrom(t.TakeProfit, t.EntryPrice)
	if err != nil {
		return err
	}
	if tpDistance < minDistanceBps {
		return ErrTakeProfitTooClose
	}
	slDistance, err := deviationFrom(t.StopLoss, t.EntryPrice)
	if err != nil {
		return err
	}
	if slDistance < minDistanceBps {
		return ErrStopLossTooClose
	}
	return nil
}

// ValidateRiskRewardRatio enforces the minimum profit-to-loss ratio.
func (t *Trade) ValidateRiskRewardRatio(minRatioBps uint64) error {
	ratio, err := t.RiskRewardRatio()
	if err != nil {
		return err
	}
	if ratio < minRatioBps {
		return ErrInsufficientRiskReward
	}
	return nil
}

// ValidateOraclePrice bounds the deviation between entry and the oracle
// price rescaled to whole quote units.
func (t *Trade) ValidateOraclePrice(price oracle.Price, maxDeviationBps uint64) error {
	scaled, err := price.ScaleToExponent(0)
	if err != nil {
		return err
	}
	if scaled.Mantissa == 0 {
		return ErrPriceValidationFailed
	}
	deviation, err := deviationFrom(scaled.Mantissa, t.EntryPrice)
	if err != nil {
		return err
	}
	if deviation > maxDeviationBps {
		return ErrPriceDeviationTooHigh
	}
	return nil
}

// IsPriceInRange reports whether currentPrice lies inside
// [SL - buffer, TP + buffer].
func (t *Trade) IsPriceInRange(currentPrice, rangeBufferBps uint64) (bool, error) {
	if currentPrice == 0 {
		return false, ErrPriceValidationFailed
	}
	slBuffer, err := safemath.MulDiv(t.StopLoss, rangeBufferBps, safemath.PercentagePrecision)
	if err != nil {
		return false, err
	}
	minPrice, err := safemath.Sub(t.StopLoss, slBuffer)
	if err != nil {
		return false, err
	}
	tpBuffer, err := safemath.MulDiv(t.TakeProfit, rangeBufferBps, safemath.PercentagePrecision)
	if err != nil {
		return false, err
	}
	maxPrice, err := safemath.Add(t.TakeProfit, tpBuffer)
	if err != nil {
		return false, err
	}
	return currentPrice >= minPrice && currentPrice <= maxPrice, nil
}

// OptimalEntryPrice adjusts the oracle price by the spread and then a
// slippage buffer, both pushing against the trade direction.
func (t *Trade) OptimalEntryPrice(price oracle.Price, spreadBps, slippageBufferBps uint64) (uint64, error) {
	scaled, err := price.ScaleToExponent(0)
	if err != nil {
		return 0, err
	}
	base := scaled.Mantissa
	if base == 0 {
		return 0, ErrPriceValidationFailed
	}

	spread, err := safemath.MulDiv(base, spreadBps, safemath.PercentagePrecision)
	if err != nil {
		return 0, err
	}
	adjusted := base
	if t.IsBuy() {
		adjusted, err = safemath.Add(base, spread)
	} else {
		adjusted, err = safemath.Sub(base, spread)
	}
	if err != nil {
		return 0, err
	}

	buffer, err := safemath.MulDiv(adjusted, slippageBufferBps, safemath.PercentagePrecision)
	if err != nil {
		return 0, err
	}
	optimal := adjusted
	if t.IsBuy() {
		optimal, err = safemath.Add(adjusted, buffer)
	} else {
		optimal, err = safemath.Sub(adjusted, buffer)
	}
	if err != nil {
		return 0, err
	}
	if optimal == 0 {
		return 0, ErrPriceValidationFailed
	}
	return optimal, nil
}

// ComprehensiveValidation runs the full ordered pipeline: structure,
// slippage, distances, risk-reward, oracle deviation, then range.
func (t *Trade) ComprehensiveValidation(currentPrice uint64, price oracle.Price, cfg ValidationConfig) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if err := t.ValidatePriceWithSlippage(currentPrice, cfg.MaxSlippageBps); err != nil {
		return err
	}
	if err := t.ValidateRiskManagementLevels(cfg.MinDistanceBps); err != nil {
		return err
	}
	if err := t.ValidateRiskRewardRatio(cfg.MinRiskRewardBps); err != nil {
		return err
	}
	if err := t.ValidateOraclePrice(price, cfg.MaxDeviationBps); err != nil {
		return err
	}
	ok, err := t.IsPriceInRange(currentPrice, cfg.RangeBufferBps)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPriceOutOfRange
	}
	return nil
}

// ValidateWithConfig checks the configuration itself before running the
// comprehensive pipeline.
func (t *Trade) ValidateWithConfig(currentPrice uint64, price oracle.Price, cfg ValidationConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return t.ComprehensiveValidation(currentPrice, price, cfg)
}

// deviationFrom returns |a-base| in basis points of base.
func deviationFrom(a, base uint64) (uint64, error) {
	if base == 0 {
		return 0, ErrInvalidEntryPrice
	}
	diff := a - base
	if base > a {
		diff = base - a
	}
	return safemath.MulDiv(diff, safemath.PercentagePrecision, base)
}
