package safemath

import "github.com/holiman/uint256"

// The wide unsigned types below back the proportion math and any ledger
// computation whose intermediate products exceed 64 bits. All three are
// thin caps over a 256-bit limb array: an operation fails with ErrOverflow
// as soon as its result no longer fits the declared width, so a U128 behaves
// exactly like a dedicated 128-bit integer would.

// U128 is a 128-bit unsigned integer with checked arithmetic.
type U128 struct{ n uint256.Int }

// U192 is a 192-bit unsigned integer with checked arithmetic.
type U192 struct{ n uint256.Int }

// U256 is a 256-bit unsigned integer with checked arithmetic.
type U256 struct{ n uint256.Int }

// NewU128 returns a U128 holding v.
func NewU128(v uint64) U128 {
	var x U128
	x.n.SetUint64(v)
	return x
}

// NewU192 returns a U192 holding v.
func NewU192(v uint64) U192 {
	var x U192
	x.n.SetUint64(v)
	return x
}

// NewU256 returns a U256 holding v.
func NewU256(v uint64) U256 {
	var x U256
	x.n.SetUint64(v)
	return x
}

func addWide(x, y *uint256.Int, bits int) (uint256.Int, error) {
	var z uint256.Int
	if _, carry := z.AddOverflow(x, y); carry || z.BitLen() > bits {
		return uint256.Int{}, ErrOverflow
	}
	return z, nil
}

func subWide(x, y *uint256.Int) (uint256.Int, error) {
	var z uint256.Int
	if _, borrow := z.SubOverflow(x, y); borrow {
		return uint256.Int{}, ErrUnderflow
	}
	return z, nil
}

func mulWide(x, y *uint256.Int, bits int) (uint256.Int, error) {
	var z uint256.Int
	if _, overflow := z.MulOverflow(x, y); overflow || z.BitLen() > bits {
		return uint256.Int{}, ErrOverflow
	}
	return z, nil
}

func divWide(x, y *uint256.Int) (uint256.Int, error) {
	if y.IsZero() {
		return uint256.Int{}, ErrDivideByZero
	}
	var z uint256.Int
	z.Div(x, y)
	return z, nil
}

// Add returns x+y or ErrOverflow.
func (x U128) Add(y U128) (U128, error) {
	z, err := addWide(&x.n, &y.n, 128)
	return U128{n: z}, err
}

// Sub returns x-y or ErrUnderflow.
func (x U128) Sub(y U128) (U128, error) {
	z, err := subWide(&x.n, &y.n)
	return U128{n: z}, err
}

// Mul returns x*y or ErrOverflow.
func (x U128) Mul(y U128) (U128, error) {
	z, err := mulWide(&x.n, &y.n, 128)
	return U128{n: z}, err
}

// Div returns x/y truncated, or ErrDivideByZero.
func (x U128) Div(y U128) (U128, error) {
	z, err := divWide(&x.n, &y.n)
	return U128{n: z}, err
}

// Mod returns x mod y, or ErrDivideByZero.
func (x U128) Mod(y U128) (U128, error) {
	if y.n.IsZero() {
		return U128{}, ErrDivideByZero
	}
	var z uint256.Int
	z.Mod(&x.n, &y.n)
	return U128{n: z}, nil
}

// Cmp returns -1, 0, or 1.
func (x U128) Cmp(y U128) int { return x.n.Cmp(&y.n) }

// IsZero reports whether x is zero.
func (x U128) IsZero() bool { return x.n.IsZero() }

// Uint64 narrows to uint64, or returns ErrConversion.
func (x U128) Uint64() (uint64, error) {
	v, overflow := x.n.Uint64WithOverflow()
	if overflow {
		return 0, ErrConversion
	}
	return v, nil
}

// To192 widens x to a U192.
func (x U128) To192() U192 { return U192{n: x.n} }

// To256 widens x to a U256.
func (x U128) To256() U256 { return U256{n: x.n} }

func (x U128) String() string { return x.n.Dec() }

// Add returns x+y or ErrOverflow.
func (x U192) Add(y U192) (U192, error) {
	z, err := addWide(&x.n, &y.n, 192)
	return U192{n: z}, err
}

// Sub returns x-y or ErrUnderflow.
func (x U192) Sub(y U192) (U192, error) {
	z, err := subWide(&x.n, &y.n)
	return U192{n: z}, err
}

// Mul returns x*y or ErrOverflow.
func (x U192) Mul(y U192) (U192, error) {
	z, err := mulWide(&x.n, &y.n, 192)
	return U192{n: z}, err
}

// Div returns x/y truncated, or ErrDivideByZero.
func (x U192) Div(y U192) (U192, error) {
	z, err := divWide(&x.n, &y.n)
	return U192{n: z}, err
}

// Cmp returns -1, 0, or 1.
func (x U192) Cmp(y U192) int { return x.n.Cmp(&y.n) }

// IsZero reports whether x is zero.
func (x U192) IsZero() bool { return x.n.IsZero() }

// ToU128 narrows to a U128, or returns ErrConversion.
func (x U192) ToU128() (U128, error) {
	if x.n.BitLen() > 128 {
		return U128{}, ErrConversion
	}
	return U128{n: x.n}, nil
}

// Uint64 narrows to uint64, or returns ErrConversion.
func (x U192) Uint64() (uint64, error) {
	v, overflow := x.n.Uint64WithOverflow()
	if overflow {
		return 0, ErrConversion
	}
	return v, nil
}

func (x U192) String() string { return x.n.Dec() }

// Add returns x+y or ErrOverflow.
func (x U256) Add(y U256) (U256, error) {
	z, err := addWide(&x.n, &y.n, 256)
	return U256{n: z}, err
}

// Sub returns x-y or ErrUnderflow.
func (x U256) Sub(y U256) (U256, error) {
	z, err := subWide(&x.n, &y.n)
	return U256{n: z}, err
}

// Mul returns x*y or ErrOverflow.
func (x U256) Mul(y U256) (U256, error) {
	z, err := mulWide(&x.n, &y.n, 256)
	return U256{n: z}, err
}

// Div returns x/y truncated, or ErrDivideByZero.
func (x U256) Div(y U256) (U256, error) {
	z, err := divWide(&x.n, &y.n)
	return U256{n: z}, err
}

// Cmp returns -1, 0, or 1.
func (x U256) Cmp(y U256) int { return x.n.Cmp(&y.n) }

// IsZero reports whether x is zero.
func (x U256) IsZero() bool { return x.n.IsZero() }

// ToU128 narrows to a U128, or returns ErrConversion.
func (x U256) ToU128() (U128, error) {
	if x.n.BitLen() > 128 {
		return U128{}, ErrConversion
	}
	return U128{n: x.n}, nil
}

// Uint64 narrows to uint64, or returns ErrConversion.
func (x U256) Uint64() (uint64, error) {
	v, overflow := x.n.Uint64WithOverflow()
	if overflow {
		return 0, ErrConversion
	}
	return v, nil
}

func (x U256) String() string { return x.n.Dec() }
