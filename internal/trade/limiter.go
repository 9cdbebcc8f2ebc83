package trade

import (
	"errors"

	"github.com/tyield/engine/internal/safemath"
)

var (
	// ErrPerPairLimitExceeded is returned when a trade would push the
	// aggregate open size on a single pair beyond the per-pair maximum.
	ErrPerPairLimitExceeded = errors.New("trade: per-pair exposure limit exceeded")

	// ErrAgentLimitExceeded is returned when a trade would push a master
	// agent's aggregate open size beyond its maximum.
	ErrAgentLimitExceeded = errors.New("trade: master agent exposure limit exceeded")
)

// Exposure is the open size a set of active trades contributes to one
// pair under one master agent.
type Exposure struct {
	Pair        string
	MasterAgent [32]byte
	Size        uint64
}

// ExposureLimiter enforces aggregate position limits at open-trade time.
//
// Correlated risk here is concentration: many trades on the same pair move
// together, and a master agent funding many positions concentrates its
// holders' capital. Both aggregates are capped.
type ExposureLimiter struct {
	// MaxPerPair is the maximum aggregate open size on any single pair.
	MaxPerPair uint64

	// MaxPerAgent is the maximum aggregate open size under one master
	// agent across all pairs.
	MaxPerAgent uint64
}

// NewExposureLimiter creates a limiter with the given per-pair and
// per-agent caps.
func NewExposureLimiter(maxPerPair, maxPerAgent uint64) *ExposureLimiter {
	return &ExposureLimiter{MaxPerPair: maxPerPair, MaxPerAgent: maxPerAgent}
}

// CheckLimit validates whether opening a trade of size on pair under
// masterAgent respects both aggregates, given the existing open exposures.
func (l *ExposureLimiter) CheckLimit(pairTicker string, masterAgent [32]byte, size uint64, existing []Exposure) error {
	pairTotal := size
	agentTotal := size
	var err error

	for _, e := range existing {
		if e.Pair == pairTicker {
			pairTotal, err = safemath.Add(pairTotal, e.Size)
			if err != nil {
				return err
			}
		}
		if e.MasterAgent == masterAgent {
			agentTotal, err = safemath.Add(agentTotal, e.Size)
			if err != nil {
				return err
			}
		}
	}

	if pairTotal > l.MaxPerPair {
		return ErrPerPairLimitExceeded
	}
	if agentTotal > l.MaxPerAgent {
		return ErrAgentLimitExceeded
	}
	return nil
}
