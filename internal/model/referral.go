package model

import (
	"github.com/tyield/engine/internal/safemath"
)

// MaxReferredUsers caps how many users one referrer can be credited for.
const MaxReferredUsers = 100

// ReferralRegistry accumulates a referrer's earnings and referred users.
// Registries are created lazily on the first referral.
type ReferralRegistry struct {
	Referrer PublicKey `json:"referrer"`

	ClaimedEarnings   uint64 `json:"claimed_earnings"`
	UnclaimedEarnings uint64 `json:"unclaimed_earnings"`

	Referred []PublicKey `json:"referred"`

	CreatedAt        int64 `json:"created_at"`
	UpdatedAt        int64 `json:"updated_at"`
	LastEarningClaim int64 `json:"last_earning_claim"`
}

// NewReferralRegistry creates an empty registry for referrer.
func NewReferralRegistry(referrer PublicKey, now int64) (*ReferralRegistry, error) {
	if referrer.IsZero() {
		return nil, ErrInvalidReferrer
	}
	return &ReferralRegistry{
		Referrer:  referrer,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// AddReferredUser registers one referred user, rejecting duplicates,
// self-referral, and registrations past the cap.
func (r *ReferralRegistry) AddReferredUser(user PublicKey, now int64) error {
	if user.IsZero() || user == r.Referrer {
		return ErrInvalidReferrer
	}
	if len(r.Referred) >= MaxReferredUsers {
		return ErrReferralLimitReached
	}
	for _, u := range r.Referred {
		if u == user {
			return ErrInvalidReferrer
		}
	}
	r.Referred = append(r.Referred, user)
	r.UpdatedAt = now
	return nil
}

// HasReferred reports whether user is already registered.
func (r *ReferralRegistry) HasReferred(user PublicKey) bool {
	for _, u := range r.Referred {
		if u == user {
			return true
		}
	}
	return false
}

// ReferredCount is the number of registered referred users.
func (r *ReferralRegistry) ReferredCount() int { return len(r.Referred) }

// AddUnclaimedEarnings accrues commission pending a claim.
func (r *ReferralRegistry) AddUnclaimedEarnings(amount uint64, now int64) error {
	if amount == 0 {
		return ErrInvalidParameter
	}
	total, err := safemath.Add(r.UnclaimedEarnings, amount)
	if err != nil {
		return err
	}
	r.UnclaimedEarnings = total
	r.UpdatedAt = now
	return nil
}

// ClaimEarnings moves amount from unclaimed to claimed.
func (r *ReferralRegistry) ClaimEarnings(amount uint64, now int64) error {
	if amount == 0 {
		return ErrInvalidParameter
	}
	if amount > r.UnclaimedEarnings {
		return ErrInsufficientFunds
	}
	unclaimed, err := safemath.Sub(r.UnclaimedEarnings, amount)
	if err != nil {
		return err
	}
	claimed, err := safemath.Add(r.ClaimedEarnings, amount)
	if err != nil {
		return err
	}
	r.UnclaimedEarnings = unclaimed
	r.ClaimedEarnings = claimed
	r.UpdatedAt = now
	r.LastEarningClaim = now
	return nil
}

// TotalEarnings is claimed plus unclaimed commission.
func (r *ReferralRegistry) TotalEarnings() (uint64, error) {
	return safemath.Add(r.ClaimedEarnings, r.UnclaimedEarnings)
}

// AverageEarningsPerUser is claimed earnings over referred count.
func (r *ReferralRegistry) AverageEarningsPerUser() (uint64, error) {
	if len(r.Referred) == 0 {
		return 0, nil
	}
	return safemath.Div(r.ClaimedEarnings, uint64(len(r.Referred)))
}

// Validate checks the structural invariants of the record.
func (r *ReferralRegistry) Validate() error {
	if r.Referrer.IsZero() {
		return ErrInvalidReferrer
	}
	if r.CreatedAt <= 0 {
		return ErrInvalidAccount
	}
	if r.UpdatedAt < r.CreatedAt {
		return ErrInvalidAccount
	}
	if len(r.Referred) > MaxReferredUsers {
		return ErrReferralLimitReached
	}
	return nil
}
