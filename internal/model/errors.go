package model

import "errors"

var (
	// ErrInvalidAuthority is returned when the caller does not hold the
	// entity's authority.
	ErrInvalidAuthority = errors.New("model: invalid authority")

	// ErrInvalidAccount is returned for structurally invalid entities:
	// default keys, bad timestamps, empty names.
	ErrInvalidAccount = errors.New("model: invalid account")

	// ErrInvalidPrice is returned for zero or out-of-policy prices.
	ErrInvalidPrice = errors.New("model: invalid price")

	// ErrInvalidParameter is returned for amounts or rates outside their
	// allowed bounds.
	ErrInvalidParameter = errors.New("model: parameter out of bounds")

	// ErrInsufficientFunds is returned when supply, balance, or accrued
	// yield cannot cover the requested amount.
	ErrInsufficientFunds = errors.New("model: insufficient funds")

	// ErrPriceUpdateTooSoon is returned when a rate-limited update comes
	// before the minimum interval has elapsed.
	ErrPriceUpdateTooSoon = errors.New("model: price update too soon")

	// ErrPriceUpdateTooHigh is returned when a rate-limited update exceeds
	// the per-update increase cap.
	ErrPriceUpdateTooHigh = errors.New("model: price update too high")

	// ErrCannotPerformAction is returned when the entity's state forbids
	// the requested transition.
	ErrCannotPerformAction = errors.New("model: action not allowed in current state")

	// ErrInvalidReferrer rejects self-referrals, empty referrers, and
	// attempts to overwrite an existing referrer.
	ErrInvalidReferrer = errors.New("model: invalid referrer")

	// ErrInvalidDelegate rejects self-delegation.
	ErrInvalidDelegate = errors.New("model: invalid delegate")

	// ErrRateLimitExceeded is returned when protocol updates exceed the
	// configured frequency.
	ErrRateLimitExceeded = errors.New("model: rate limit exceeded")

	// ErrCircuitBreakerActive is returned while the protocol breaker is
	// inside its cooldown window.
	ErrCircuitBreakerActive = errors.New("model: circuit breaker active")

	// ErrReferralLimitReached is returned when a registry already tracks
	// its maximum number of referred users.
	ErrReferralLimitReached = errors.New("model: referral limit reached")
)
