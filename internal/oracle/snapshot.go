package oracle

import (
	"github.com/tyield/engine/internal/safemath"
)

// Snapshot is a protocol-operated oracle account: a price the engine itself
// publishes for pairs no external network covers. Updates are authenticated,
// strictly ordered, and bounded in how far each one may move the price.
type Snapshot struct {
	FeedID          [32]byte `json:"feed_id"`
	Authority       [32]byte `json:"authority"`
	Price           uint64   `json:"price"`
	Conf            uint64   `json:"conf"`
	EMA             uint64   `json:"ema"`
	Exponent        int32    `json:"exponent"`
	PublishTime     int64    `json:"publish_time"`
	UpdateCount     uint64   `json:"update_count"`
	MaxDeviationBps uint64   `json:"max_deviation_bps"`
}

// SecureUpdate applies a new observation to the snapshot.
//
// The caller must hold the snapshot authority, the publish time must move
// strictly forward, and the new price may not deviate from the previous one
// by more than MaxDeviationBps. A first update (previous price zero) skips
// the deviation bound.
func (s *Snapshot) SecureUpdate(authority [32]byte, price, conf, ema uint64, publishTime int64) error {
	if authority != s.Authority {
		return ErrInvalidAccount
	}
	if price == 0 {
		return ErrInvalidPrice
	}
	if publishTime <= s.PublishTime {
		return ErrStalePrice
	}
	if s.Price != 0 && s.MaxDeviationBps != 0 {
		deviation, err := deviationBps(price, s.Price)
		if err != nil {
			return err
		}
		if deviation > s.MaxDeviationBps {
			return ErrDeviationTooHigh
		}
	}

	count, err := safemath.Add(s.UpdateCount, 1)
	if err != nil {
		return err
	}
	s.Price = price
	s.Conf = conf
	s.EMA = ema
	s.PublishTime = publishTime
	s.UpdateCount = count
	return nil
}

// deviationBps returns |a-b| expressed in basis points of b.
func deviationBps(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, safemath.ErrDivideByZero
	}
	diff := a - b
	if b > a {
		diff = b - a
	}
	return safemath.MulDiv(diff, safemath.PercentagePrecision, b)
}
