package safemath

import "math"

// Protocol-wide fixed-point scales. Monetary amounts carry six implied
// decimals; ratios are expressed in basis points of PercentagePrecision.
const (
	QuotePrecision      uint64 = 1_000_000
	PercentagePrecision uint64 = 10_000
)

// MulDiv returns value*numerator/denominator with a 128-bit intermediate,
// so bps math on 64-bit amounts never overflows mid-expression.
func MulDiv(value, numerator, denominator uint64) (uint64, error) {
	p, err := Proportion(NewU128(value), NewU128(numerator), NewU128(denominator))
	if err != nil {
		return 0, err
	}
	return p.Uint64()
}

// Proportion computes value*numerator/denominator over U128 operands.
//
// Three regimes keep the result exact without ever widening past what the
// inputs require:
//   - operands at or above 64 bits compute through a 192-bit intermediate;
//   - a numerator in (denominator/2, denominator) is restructured as
//     value - ceil(value*(denominator-numerator)/denominator), which keeps
//     the intermediate product small and rounds the complement up so the
//     result never exceeds the straight truncated quotient;
//   - everything else multiplies then divides directly in 128 bits.
func Proportion(value, numerator, denominator U128) (U128, error) {
	if denominator.IsZero() {
		return U128{}, ErrDivideByZero
	}
	if numerator.Cmp(denominator) == 0 {
		return value, nil
	}

	large := NewU128(math.MaxUint64)
	if value.Cmp(large) >= 0 || numerator.Cmp(large) >= 0 {
		prod, err := value.To192().Mul(numerator.To192())
		if err != nil {
			return U128{}, err
		}
		q, err := prod.Div(denominator.To192())
		if err != nil {
			return U128{}, err
		}
		return q.ToU128()
	}

	half, err := denominator.Div(NewU128(2))
	if err != nil {
		return U128{}, err
	}
	if numerator.Cmp(half) > 0 && denominator.Cmp(numerator) > 0 {
		diff, err := denominator.Sub(numerator)
		if err != nil {
			return U128{}, err
		}
		prod, err := value.Mul(diff)
		if err != nil {
			return U128{}, err
		}
		rem, err := prod.Mod(denominator)
		if err != nil {
			return U128{}, err
		}
		standardized, err := prod.Sub(rem)
		if err != nil {
			return U128{}, err
		}
		q, err := standardized.Div(denominator)
		if err != nil {
			return U128{}, err
		}
		out, err := value.Sub(q)
		if err != nil {
			return U128{}, err
		}
		if !rem.IsZero() {
			out, err = out.Sub(NewU128(1))
			if err != nil {
				return U128{}, err
			}
		}
		return out, nil
	}

	prod, err := value.Mul(numerator)
	if err != nil {
		return U128{}, err
	}
	return prod.Div(denominator)
}
