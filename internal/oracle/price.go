// Package oracle implements exponent-scaled price handling and multi-source
// price aggregation for the yield engine.
//
// A price is an unsigned mantissa paired with a decimal exponent, the way
// oracle networks publish them. All arithmetic stays in integers: scaling
// toward a coarser exponent truncates, and cross-exponent comparison rescales
// the coarser operand so no precision is invented.
package oracle

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/tyield/engine/internal/safemath"
)

const (
	// ExponentScale is the implied exponent of division results.
	ExponentScale int32 = -9

	// PriceScale is the fixed-point multiplier matching ExponentScale.
	PriceScale uint64 = 1_000_000_000

	// MaxMantissa bounds a normalized mantissa to 28 bits.
	MaxMantissa uint64 = 1<<28 - 1

	// MaxFeedAgeSec is the hard staleness ceiling for external feed
	// records, applied regardless of per-source configuration.
	MaxFeedAgeSec int64 = 600
)

var (
	// ErrInvalidAccount is returned when a record does not belong to the
	// configured feed or fails authority checks.
	ErrInvalidAccount = errors.New("oracle: invalid account")

	// ErrStalePrice is returned when a record is older than allowed.
	ErrStalePrice = errors.New("oracle: stale price")

	// ErrInvalidPrice is returned for zero prices or confidence intervals
	// wider than the configured bound.
	ErrInvalidPrice = errors.New("oracle: invalid price")

	// ErrMissingTwap is returned when an EMA price is requested from a
	// source that carries no TWAP record.
	ErrMissingTwap = errors.New("oracle: missing twap record")

	// ErrDeviationTooHigh is returned when redundant sources disagree
	// beyond the configured deviation bound.
	ErrDeviationTooHigh = errors.New("oracle: source deviation too high")

	// ErrUnsupportedSource is returned for an unknown source kind.
	ErrUnsupportedSource = errors.New("oracle: unsupported source kind")

	// ErrIncomparable is returned when two prices cannot be brought to a
	// common exponent without overflow.
	ErrIncomparable = errors.New("oracle: prices not comparable")
)

// Price is a fixed-point price: Mantissa * 10^Exponent.
type Price struct {
	Mantissa uint64 `json:"mantissa"`
	Exponent int32  `json:"exponent"`
}

// IsZero reports whether the price has a zero mantissa.
func (p Price) IsZero() bool { return p.Mantissa == 0 }

// Normalize truncates the mantissa into the 28-bit range, coarsening the
// exponent one decimal digit at a time.
func (p Price) Normalize() (Price, error) {
	mantissa := p.Mantissa
	exponent := p.Exponent
	for mantissa > MaxMantissa {
		var err error
		mantissa, err = safemath.Div(mantissa, 10)
		if err != nil {
			return Price{}, err
		}
		exponent, err = safemath.Add(exponent, 1)
		if err != nil {
			return Price{}, err
		}
	}
	return Price{Mantissa: mantissa, Exponent: exponent}, nil
}

// Mul multiplies two prices; mantissas multiply and exponents add.
func (p Price) Mul(o Price) (Price, error) {
	mantissa, err := safemath.Mul(p.Mantissa, o.Mantissa)
	if err != nil {
		return Price{}, err
	}
	exponent, err := safemath.Add(p.Exponent, o.Exponent)
	if err != nil {
		return Price{}, err
	}
	return Price{Mantissa: mantissa, Exponent: exponent}, nil
}

// Div divides p by o at the fixed -9 result scale. Both operands are
// normalized first so the scaled numerator cannot overflow.
func (p Price) Div(o Price) (Price, error) {
	base, err := p.Normalize()
	if err != nil {
		return Price{}, err
	}
	other, err := o.Normalize()
	if err != nil {
		return Price{}, err
	}
	if other.Mantissa == 0 {
		return Price{}, safemath.ErrDivideByZero
	}
	scaled, err := safemath.Mul(base.Mantissa, PriceScale)
	if err != nil {
		return Price{}, err
	}
	mantissa, err := safemath.Div(scaled, other.Mantissa)
	if err != nil {
		return Price{}, err
	}
	exponent, err := safemath.Add(base.Exponent, ExponentScale)
	if err != nil {
		return Price{}, err
	}
	exponent, err = safemath.Sub(exponent, other.Exponent)
	if err != nil {
		return Price{}, err
	}
	return Price{Mantissa: mantissa, Exponent: exponent}, nil
}

// ScaleToExponent re-expresses the price at the target exponent. Scaling
// toward a coarser exponent truncates low digits; scaling finer multiplies
// and can overflow.
func (p Price) ScaleToExponent(target int32) (Price, error) {
	delta, err := safemath.Sub(target, p.Exponent)
	if err != nil {
		return Price{}, err
	}
	if delta == 0 {
		return Price{Mantissa: p.Mantissa, Exponent: target}, nil
	}
	mantissa := p.Mantissa
	if delta > 0 {
		for i := int32(0); i < delta; i++ {
			mantissa, err = safemath.Div(mantissa, 10)
			if err != nil {
				return Price{}, err
			}
		}
	} else {
		for i := delta; i < 0; i++ {
			mantissa, err = safemath.Mul(mantissa, 10)
			if err != nil {
				return Price{}, err
			}
		}
	}
	return Price{Mantissa: mantissa, Exponent: target}, nil
}

// Cmp compares two prices by rescaling the coarser operand to the finer
// exponent. It returns ErrIncomparable when the rescale overflows.
func (p Price) Cmp(o Price) (int, error) {
	a, b := p, o
	var err error
	if a.Exponent > b.Exponent {
		a, err = a.ScaleToExponent(b.Exponent)
	} else if b.Exponent > a.Exponent {
		b, err = b.ScaleToExponent(a.Exponent)
	}
	if err != nil {
		return 0, ErrIncomparable
	}
	switch {
	case a.Mantissa < b.Mantissa:
		return -1, nil
	case a.Mantissa > b.Mantissa:
		return 1, nil
	default:
		return 0, nil
	}
}

// ToDecimal converts the price to a decimal for display and persistence.
func (p Price) ToDecimal() decimal.Decimal {
	return decimal.New(int64(p.Mantissa), p.Exponent)
}
