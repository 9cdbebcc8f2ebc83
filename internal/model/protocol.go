package model

import (
	"github.com/tyield/engine/internal/safemath"
)

// EmergencyPauseReason is the breaker reason code set by an emergency pause.
const EmergencyPauseReason uint8 = 255

// CircuitBreaker suspends protocol operations after an anomaly until the
// cooldown elapses or an operator resets it.
type CircuitBreaker struct {
	Triggered         bool   `json:"triggered"`
	TriggerTime       int64  `json:"trigger_time"`
	TriggerReason     uint8  `json:"trigger_reason"`
	PriceThreshold    uint64 `json:"price_threshold"`
	VolumeThreshold   uint64 `json:"volume_threshold"`
	CooldownPeriodSec int64  `json:"cooldown_period_sec"`
}

// RateLimiter throttles critical parameter updates: a minimum interval
// between updates plus a daily count.
type RateLimiter struct {
	LastUpdateTime   int64  `json:"last_update_time"`
	MinIntervalSec   int64  `json:"min_interval_sec"`
	MaxUpdatesPerDay uint32 `json:"max_updates_per_day"`
	DailyUpdateCount uint32 `json:"daily_update_count"`
	LastResetDay     int64  `json:"last_reset_day"`
}

// ParameterBounds caps the critical protocol parameters.
type ParameterBounds struct {
	MaxTaxBps          uint64 `json:"max_tax_bps"`
	MaxPriceDeviation  uint64 `json:"max_price_deviation"`
	MaxProtocolBalance uint64 `json:"max_protocol_balance"`
	MinUpdateInterval  int64  `json:"min_update_interval"`
}

// ProtocolConfig is the global protocol record: taxes, balances, the
// paused flag, and the security controls every operation consults.
type ProtocolConfig struct {
	Authority PublicKey `json:"authority"`
	YieldMint PublicKey `json:"yield_mint"`

	BuyTaxBps        uint64 `json:"buy_tax_bps"`
	SellTaxBps       uint64 `json:"sell_tax_bps"`
	MaxTaxBps        uint64 `json:"max_tax_bps"`
	RefEarnBps       uint64 `json:"ref_earn_bps"`
	MaxAgentPriceNew uint64 `json:"max_agent_price_new"`

	CurrentHolding  uint64 `json:"current_holding"`
	TotalFees       uint64 `json:"total_fees"`
	TotalEarnings   uint64 `json:"total_earnings"`
	TotalBalanceUSD uint64 `json:"total_balance_usd"`

	InceptionTime int64 `json:"inception_time"`
	Paused        bool  `json:"paused"`

	Breaker CircuitBreaker  `json:"circuit_breaker"`
	Limiter RateLimiter     `json:"rate_limiter"`
	Bounds  ParameterBounds `json:"parameter_bounds"`
}

// DefaultProtocolConfig returns a config with the standard taxes and
// security control settings.
func DefaultProtocolConfig(authority, yieldMint PublicKey, now int64) *ProtocolConfig {
	return &ProtocolConfig{
		Authority:        authority,
		YieldMint:        yieldMint,
		BuyTaxBps:        250,
		SellTaxBps:       250,
		MaxTaxBps:        1000,
		RefEarnBps:       1000,
		MaxAgentPriceNew: 1_000_000_000_000,
		InceptionTime:    now,
		Breaker: CircuitBreaker{
			PriceThreshold:    5000,
			VolumeThreshold:   1_000_000_000_000,
			CooldownPeriodSec: 3600,
		},
		Limiter: RateLimiter{
			MinIntervalSec:   300,
			MaxUpdatesPerDay: 24,
		},
		Bounds: ParameterBounds{
			MaxTaxBps:          1000,
			MaxPriceDeviation:  2000,
			MaxProtocolBalance: 1_000_000_000_000_000,
			MinUpdateInterval:  300,
		},
	}
}

// ValidateTaxParameters checks proposed taxes against the configured
// bound and the absolute 100% ceiling.
func (p *ProtocolConfig) ValidateTaxParameters(buyTax, sellTax uint64) error {
	if buyTax > p.Bounds.MaxTaxBps || sellTax > p.Bounds.MaxTaxBps {
		return ErrInvalidParameter
	}
	if buyTax > safemath.PercentagePrecision || sellTax > safemath.PercentagePrecision {
		return ErrInvalidParameter
	}
	return nil
}

// SetTaxes replaces both tax rates after validation.
func (p *ProtocolConfig) SetTaxes(buyTax, sellTax uint64, now int64) error {
	if err := p.ValidateTaxParameters(buyTax, sellTax); err != nil {
		return err
	}
	p.BuyTaxBps = buyTax
	p.SellTaxBps = sellTax
	p.Limiter.LastUpdateTime = now
	return nil
}

// ValidateBalance rejects balances above the configured maximum.
func (p *ProtocolConfig) ValidateBalance(balance uint64) error {
	if balance > p.Bounds.MaxProtocolBalance {
		return ErrInvalidParameter
	}
	return nil
}

// UpdateBalance replaces the USD balance after validation.
func (p *ProtocolConfig) UpdateBalance(balance uint64, now int64) error {
	if err := p.ValidateBalance(balance); err != nil {
		return err
	}
	p.TotalBalanceUSD = balance
	p.Limiter.LastUpdateTime = now
	return nil
}

// UpdateFees replaces accrued fees; fees can never exceed the balance.
func (p *ProtocolConfig) UpdateFees(fees uint64, now int64) error {
	if fees > p.TotalBalanceUSD {
		return ErrInvalidParameter
	}
	p.TotalFees = fees
	p.Limiter.LastUpdateTime = now
	return nil
}

// AccrueFees adds amount to fees and earnings.
func (p *ProtocolConfig) AccrueFees(amount uint64, now int64) error {
	fees, err := safemath.Add(p.TotalFees, amount)
	if err != nil {
		return err
	}
	earnings, err := safemath.Add(p.TotalEarnings, amount)
	if err != nil {
		return err
	}
	p.TotalFees = fees
	p.TotalEarnings = earnings
	p.Limiter.LastUpdateTime = now
	return nil
}

// ReferralCut is the referrer's share of a tax amount.
func (p *ProtocolConfig) ReferralCut(tax uint64) (uint64, error) {
	return safemath.MulDiv(tax, p.RefEarnBps, safemath.PercentagePrecision)
}

// ValidateAgentPrice caps newly set master agent prices.
func (p *ProtocolConfig) ValidateAgentPrice(price uint64) error {
	if price == 0 || price > p.MaxAgentPriceNew {
		return ErrInvalidPrice
	}
	return nil
}

// CheckRateLimit enforces the minimum interval and the daily cap. A new
// day clears the daily count without mutating state.
func (p *ProtocolConfig) CheckRateLimit(now int64) error {
	sinceLast, err := safemath.Sub(now, p.Limiter.LastUpdateTime)
	if err != nil {
		return err
	}
	if sinceLast < p.Limiter.MinIntervalSec {
		return ErrRateLimitExceeded
	}

	currentDay := now - (now % secondsPerDay)
	if currentDay > p.Limiter.LastResetDay {
		return nil
	}
	if p.Limiter.DailyUpdateCount >= p.Limiter.MaxUpdatesPerDay {
		return ErrRateLimitExceeded
	}
	return nil
}

// RecordUpdate counts one critical update, resetting the daily counter
// when the day has rolled over.
func (p *ProtocolConfig) RecordUpdate(now int64) {
	currentDay := now - (now % secondsPerDay)
	if currentDay > p.Limiter.LastResetDay {
		p.Limiter.LastResetDay = currentDay
		p.Limiter.DailyUpdateCount = 0
	}
	p.Limiter.DailyUpdateCount++
	p.Limiter.LastUpdateTime = now
}

// CheckCircuitBreaker rejects operations while the breaker is inside its
// cooldown window.
func (p *ProtocolConfig) CheckCircuitBreaker(now int64) error {
	if !p.Breaker.Triggered {
		return nil
	}
	sinceTrigger, err := safemath.Sub(now, p.Breaker.TriggerTime)
	if err != nil {
		return err
	}
	if sinceTrigger < p.Breaker.CooldownPeriodSec {
		return ErrCircuitBreakerActive
	}
	return nil
}

// TriggerCircuitBreaker trips the breaker with a reason code.
func (p *ProtocolConfig) TriggerCircuitBreaker(reason uint8, now int64) {
	p.Breaker.Triggered = true
	p.Breaker.TriggerTime = now
	p.Breaker.TriggerReason = reason
}

// ResetCircuitBreaker clears the breaker.
func (p *ProtocolConfig) ResetCircuitBreaker() {
	p.Breaker.Triggered = false
	p.Breaker.TriggerTime = 0
	p.Breaker.TriggerReason = 0
}

// ValidateSecurityState runs every protocol-level gate in order: pause,
// circuit breaker, taxes, balance, rate limit.
func (p *ProtocolConfig) ValidateSecurityState(now int64) error {
	if p.Paused {
		return ErrCannotPerformAction
	}
	if err := p.CheckCircuitBreaker(now); err != nil {
		return err
	}
	if err := p.ValidateTaxParameters(p.BuyTaxBps, p.SellTaxBps); err != nil {
		return err
	}
	if err := p.ValidateBalance(p.TotalBalanceUSD); err != nil {
		return err
	}
	return p.CheckRateLimit(now)
}

// EmergencyPause halts all operations and trips the breaker.
func (p *ProtocolConfig) EmergencyPause(now int64) {
	p.Paused = true
	p.Breaker.Triggered = true
	p.Breaker.TriggerTime = now
	p.Breaker.TriggerReason = EmergencyPauseReason
}

// Pause sets the paused flag.
func (p *ProtocolConfig) Pause() { p.Paused = true }

// Unpause clears the paused flag. The circuit breaker, if tripped, keeps
// its own state and must be reset separately.
func (p *ProtocolConfig) Unpause() { p.Paused = false }

// ValidateTime rejects non-positive clock readings.
func ValidateTime(now int64) error {
	if now <= 0 {
		return ErrInvalidParameter
	}
	return nil
}
