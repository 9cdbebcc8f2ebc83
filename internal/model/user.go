package model

import (
	"github.com/tyield/engine/internal/safemath"
)

// UserStatus is a bit set: a user can carry several flags at once.
type UserStatus uint8

const (
	StatusActive      UserStatus = 1
	StatusBanned      UserStatus = 2
	StatusWhitelisted UserStatus = 4
)

// IdleThresholdSec marks a user idle after 30 days without activity.
const IdleThresholdSec int64 = 30 * 24 * 60 * 60

// MaxNameLen bounds the display name.
const MaxNameLen = 15

// UserHistory accumulates lifetime totals that survive claims and sales.
type UserHistory struct {
	TotalYieldClaimed uint64 `json:"total_yield_claimed"`
	TotalAgentsBought uint64 `json:"total_agents_bought"`
	TotalAgentsSold   uint64 `json:"total_agents_sold"`
	TotalFeesSpent    uint64 `json:"total_fees_spent"`
}

// User is a protocol participant: it tracks held agents, accrued yield,
// referral links, and the status flags gating every action.
type User struct {
	Authority PublicKey `json:"authority"`
	Name      string    `json:"name"`

	Status UserStatus `json:"status"`

	AgentCount     uint64 `json:"agent_count"`
	UnclaimedYield uint64 `json:"unclaimed_yield"`

	Referrer         PublicKey `json:"referrer"`
	ReferralEarnings uint64    `json:"referral_earnings"`

	Delegate PublicKey `json:"delegate"`

	History UserHistory `json:"history"`

	CreatedAt    int64 `json:"created_at"`
	LastActivity int64 `json:"last_activity"`
}

// NewUser registers a user. New accounts start banned pending review but
// keep the active bit so that unbanning alone restores them.
func NewUser(authority PublicKey, name string, now int64) (*User, error) {
	u := &User{
		Authority:    authority,
		Status:       StatusBanned | StatusActive,
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := u.SetName(name, now); err != nil {
		return nil, err
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

// HasStatus reports whether every flag in s is set.
func (u *User) HasStatus(s UserStatus) bool { return u.Status&s == s }

// AddStatus sets flags. A banned user cannot gain flags until unbanned,
// and banning strips the active bit.
func (u *User) AddStatus(s UserStatus) error {
	if u.HasStatus(StatusBanned) && s != StatusBanned {
		return ErrCannotPerformAction
	}
	if s&StatusBanned != 0 {
		u.Status &^= StatusActive
	}
	u.Status |= s
	return nil
}

// RemoveStatus clears flags. Clearing the banned bit restores active.
func (u *User) RemoveStatus(s UserStatus) {
	u.Status &^= s
	if s&StatusBanned != 0 {
		u.Status |= StatusActive
	}
}

// Ban strips active and whitelist access and sets the banned bit.
func (u *User) Ban() {
	u.Status &^= StatusActive | StatusWhitelisted
	u.Status |= StatusBanned
}

// Unban clears the banned bit and restores the active bit.
func (u *User) Unban() {
	u.RemoveStatus(StatusBanned)
}

// Whitelist grants whitelist access; banned users must be unbanned first.
func (u *User) Whitelist() error {
	return u.AddStatus(StatusWhitelisted)
}

// IsWhitelisted reports whitelist access.
func (u *User) IsWhitelisted() bool { return u.HasStatus(StatusWhitelisted) }

// CanPerformActions reports whether the user may transact at all.
func (u *User) CanPerformActions() bool {
	return u.HasStatus(StatusActive) && !u.HasStatus(StatusBanned)
}

// AddUnclaimedYield accrues yield toward the user's balance.
func (u *User) AddUnclaimedYield(amount uint64, now int64) error {
	if amount == 0 {
		return ErrInvalidParameter
	}
	total, err := safemath.Add(u.UnclaimedYield, amount)
	if err != nil {
		return err
	}
	u.UnclaimedYield = total
	u.LastActivity = now
	return nil
}

// ClaimYield moves amount from the unclaimed balance into lifetime totals.
func (u *User) ClaimYield(amount uint64, now int64) error {
	if !u.CanPerformActions() {
		return ErrCannotPerformAction
	}
	if amount == 0 {
		return ErrInvalidParameter
	}
	if amount > u.UnclaimedYield {
		return ErrInsufficientFunds
	}
	remaining, err := safemath.Sub(u.UnclaimedYield, amount)
	if err != nil {
		return err
	}
	claimed, err := safemath.Add(u.History.TotalYieldClaimed, amount)
	if err != nil {
		return err
	}
	u.UnclaimedYield = remaining
	u.History.TotalYieldClaimed = claimed
	u.LastActivity = now
	return nil
}

// AddAgent records a purchased agent.
func (u *User) AddAgent(now int64) error {
	if !u.CanPerformActions() {
		return ErrCannotPerformAction
	}
	count, err := safemath.Add(u.AgentCount, 1)
	if err != nil {
		return err
	}
	bought, err := safemath.Add(u.History.TotalAgentsBought, 1)
	if err != nil {
		return err
	}
	u.AgentCount = count
	u.History.TotalAgentsBought = bought
	u.LastActivity = now
	return nil
}

// RemoveAgent records a sold agent.
func (u *User) RemoveAgent(now int64) error {
	if !u.CanPerformActions() {
		return ErrCannotPerformAction
	}
	if u.AgentCount == 0 {
		return ErrInsufficientFunds
	}
	count, err := safemath.Sub(u.AgentCount, 1)
	if err != nil {
		return err
	}
	sold, err := safemath.Add(u.History.TotalAgentsSold, 1)
	if err != nil {
		return err
	}
	u.AgentCount = count
	u.History.TotalAgentsSold = sold
	u.LastActivity = now
	return nil
}

// AddFeesSpent accumulates taxes and fees the user has paid.
func (u *User) AddFeesSpent(amount uint64, now int64) error {
	total, err := safemath.Add(u.History.TotalFeesSpent, amount)
	if err != nil {
		return err
	}
	u.History.TotalFeesSpent = total
	u.LastActivity = now
	return nil
}

// AddReferralEarnings accrues commission earned from referred users.
func (u *User) AddReferralEarnings(amount uint64, now int64) error {
	if amount == 0 {
		return ErrInvalidParameter
	}
	total, err := safemath.Add(u.ReferralEarnings, amount)
	if err != nil {
		return err
	}
	u.ReferralEarnings = total
	u.LastActivity = now
	return nil
}

// SetReferrer links the user to a referrer. The link is write-once and
// self-referral is rejected.
func (u *User) SetReferrer(referrer PublicKey, now int64) error {
	if referrer.IsZero() || referrer == u.Authority {
		return ErrInvalidReferrer
	}
	if !u.Referrer.IsZero() {
		return ErrInvalidReferrer
	}
	u.Referrer = referrer
	u.LastActivity = now
	return nil
}

// SetDelegate authorizes another key to act for this user.
func (u *User) SetDelegate(delegate PublicKey, now int64) error {
	if delegate == u.Authority {
		return ErrInvalidDelegate
	}
	u.Delegate = delegate
	u.LastActivity = now
	return nil
}

// ClearDelegate revokes any delegation.
func (u *User) ClearDelegate(now int64) {
	u.Delegate = PublicKey{}
	u.LastActivity = now
}

// SetName replaces the display name; it must be 1..15 bytes.
func (u *User) SetName(name string, now int64) error {
	if name == "" || len(name) > MaxNameLen {
		return ErrInvalidAccount
	}
	u.Name = name
	u.LastActivity = now
	return nil
}

// UpdateLastActivity bumps the activity clock.
func (u *User) UpdateLastActivity(now int64) { u.LastActivity = now }

// IsIdle reports whether the user has been inactive past the threshold.
func (u *User) IsIdle(now int64) bool {
	return now-u.LastActivity >= IdleThresholdSec
}

// LifetimeYieldEarned is claimed plus still-unclaimed yield.
func (u *User) LifetimeYieldEarned() (uint64, error) {
	return safemath.Add(u.History.TotalYieldClaimed, u.UnclaimedYield)
}

// YieldClaimRate is the claimed share of lifetime yield, scaled by
// QuotePrecision. A user with no yield has a zero rate.
func (u *User) YieldClaimRate() (uint64, error) {
	lifetime, err := u.LifetimeYieldEarned()
	if err != nil {
		return 0, err
	}
	if lifetime == 0 {
		return 0, nil
	}
	return safemath.MulDiv(u.History.TotalYieldClaimed, safemath.QuotePrecision, lifetime)
}

// Validate checks the structural invariants of the record.
func (u *User) Validate() error {
	if u.Authority.IsZero() {
		return ErrInvalidAuthority
	}
	if u.Name == "" || len(u.Name) > MaxNameLen {
		return ErrInvalidAccount
	}
	if u.CreatedAt <= 0 {
		return ErrInvalidAccount
	}
	if u.LastActivity < u.CreatedAt {
		return ErrInvalidAccount
	}
	if u.Referrer == u.Authority && !u.Referrer.IsZero() {
		return ErrInvalidReferrer
	}
	return nil
}
