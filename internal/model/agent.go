package model

import (
	"github.com/tyield/engine/internal/safemath"
)

const secondsPerDay int64 = 86_400

// Agent is one minted, tradeable unit under a master agent. The booster
// scales the yield the owner earns, in bps of the base rate.
type Agent struct {
	ID          string    `json:"id"`
	MasterAgent PublicKey `json:"master_agent"`
	Mint        PublicKey `json:"mint"`
	Owner       PublicKey `json:"owner"`

	Booster uint64 `json:"booster"`
	Listed  bool   `json:"listed"`

	CreatedAt   int64 `json:"created_at"`
	LastUpdated int64 `json:"last_updated"`
}

// NewAgent mints an agent; it starts listed.
func NewAgent(id string, masterAgent, mint, owner PublicKey, booster uint64, now int64) (*Agent, error) {
	a := &Agent{
		ID:          id,
		MasterAgent: masterAgent,
		Mint:        mint,
		Owner:       owner,
		Booster:     booster,
		Listed:      true,
		CreatedAt:   now,
		LastUpdated: now,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// UpdateBooster replaces the boost rate; zero is invalid.
func (a *Agent) UpdateBooster(booster uint64, now int64) error {
	if booster == 0 {
		return ErrInvalidParameter
	}
	a.Booster = booster
	a.LastUpdated = now
	return nil
}

// List marks the agent tradeable; listing twice is an error.
func (a *Agent) List(now int64) error {
	if a.Listed {
		return ErrCannotPerformAction
	}
	a.Listed = true
	a.LastUpdated = now
	return nil
}

// Unlist removes the agent from trading; unlisting twice is an error.
func (a *Agent) Unlist(now int64) error {
	if !a.Listed {
		return ErrCannotPerformAction
	}
	a.Listed = false
	a.LastUpdated = now
	return nil
}

// ToggleListing flips the listing state.
func (a *Agent) ToggleListing(now int64) error {
	if a.Listed {
		return a.Unlist(now)
	}
	return a.List(now)
}

// Transfer moves ownership to a new key.
func (a *Agent) Transfer(newOwner PublicKey, now int64) error {
	if newOwner.IsZero() {
		return ErrInvalidAccount
	}
	a.Owner = newOwner
	a.LastUpdated = now
	return nil
}

// IsOwnedBy reports whether owner holds the agent.
func (a *Agent) IsOwnedBy(owner PublicKey) bool { return a.Owner == owner }

// BelongsTo reports whether the agent was minted under masterAgent.
func (a *Agent) BelongsTo(masterAgent PublicKey) bool { return a.MasterAgent == masterAgent }

// BoostedYield scales a base yield amount by the booster bps.
func (a *Agent) BoostedYield(baseYield uint64) (uint64, error) {
	return safemath.MulDiv(baseYield, a.Booster, safemath.PercentagePrecision)
}

// AgeDays is the whole days since minting.
func (a *Agent) AgeDays(now int64) int64 { return (now - a.CreatedAt) / secondsPerDay }

// IsIdle reports no updates for more than thresholdDays.
func (a *Agent) IsIdle(now int64, thresholdDays int64) bool {
	return (now-a.LastUpdated)/secondsPerDay > thresholdDays
}

// Validate checks the structural invariants of the record.
func (a *Agent) Validate() error {
	if a.MasterAgent.IsZero() {
		return ErrInvalidAccount
	}
	if a.Mint.IsZero() {
		return ErrInvalidAccount
	}
	if a.Owner.IsZero() {
		return ErrInvalidAccount
	}
	if a.Booster == 0 {
		return ErrInvalidParameter
	}
	if a.CreatedAt <= 0 {
		return ErrInvalidAccount
	}
	if a.LastUpdated < a.CreatedAt {
		return ErrInvalidAccount
	}
	return nil
}
