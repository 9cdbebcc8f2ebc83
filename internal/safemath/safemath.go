// Package safemath implements overflow-checked integer arithmetic for the
// yield engine.
//
// Every balance, price, and fee in the protocol ledger is an integer with a
// fixed implied scale, and every operation on one must fail loudly instead of
// wrapping. The functions here return (result, error) pairs and never panic;
// callers propagate the error up to the instruction handler that rejects the
// request.
package safemath

import "errors"

var (
	// ErrOverflow is returned when a result exceeds the maximum value of
	// the operand type.
	ErrOverflow = errors.New("safemath: overflow")

	// ErrUnderflow is returned when a result falls below the minimum value
	// of the operand type.
	ErrUnderflow = errors.New("safemath: underflow")

	// ErrDivideByZero is returned on division by zero.
	ErrDivideByZero = errors.New("safemath: divide by zero")

	// ErrConversion is returned when a wide value does not fit the
	// requested narrower type.
	ErrConversion = errors.New("safemath: conversion failure")

	// ErrNilValue is returned by Unwrap when an expected value is absent.
	ErrNilValue = errors.New("safemath: nil value")
)

// Signed is the constraint for the native signed integer widths.
type Signed interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64
}

// Unsigned is the constraint for the native unsigned integer widths.
type Unsigned interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Integer is the constraint for all native integer widths.
type Integer interface {
	Signed | Unsigned
}

// Add returns a+b, or an error if the sum wraps.
func Add[T Integer](a, b T) (T, error) {
	c := a + b
	if b > 0 && c < a {
		return 0, ErrOverflow
	}
	if b < 0 && c > a {
		return 0, ErrUnderflow
	}
	return c, nil
}

// Sub returns a-b, or an error if the difference wraps.
func Sub[T Integer](a, b T) (T, error) {
	c := a - b
	if b > 0 && c > a {
		return 0, ErrUnderflow
	}
	if b < 0 && c < a {
		return 0, ErrOverflow
	}
	return c, nil
}

// Mul returns a*b, or an error if the product wraps.
func Mul[T Integer](a, b T) (T, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	c := a * b
	// b == -1 would make the verification division itself trap on the
	// minimum signed value, so handle negation separately. x*-1 == x only
	// for zero and the minimum value, and zero is handled above.
	if b+1 == 0 && b < 0 {
		if c == a {
			return 0, ErrOverflow
		}
		return c, nil
	}
	if c/b != a {
		return 0, ErrOverflow
	}
	return c, nil
}

// Div returns a/b truncated toward zero, or an error on division by zero or
// on the single overflowing signed case (minimum value divided by -1).
func Div[T Integer](a, b T) (T, error) {
	if b == 0 {
		return 0, ErrDivideByZero
	}
	if b+1 == 0 && b < 0 && a < 0 && -a == a {
		return 0, ErrOverflow
	}
	return a / b, nil
}

// DivCeil returns a/b rounded away from zero when the division is inexact
// and both operands share a sign.
func DivCeil[T Integer](a, b T) (T, error) {
	q, err := Div(a, b)
	if err != nil {
		return 0, err
	}
	if a%b != 0 && (a < 0) == (b < 0) {
		q++
	}
	return q, nil
}

// DivFloor returns a/b rounded toward negative infinity. It differs from Div
// only for inexact divisions with mixed signs: (-155)/8 is -20, not -19.
func DivFloor[T Signed](a, b T) (T, error) {
	q, err := Div(a, b)
	if err != nil {
		return 0, err
	}
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q, nil
}

// Unwrap converts an optional value into a concrete one, turning absence
// into ErrNilValue instead of a nil dereference.
func Unwrap[T any](v *T) (T, error) {
	if v == nil {
		var zero T
		return zero, ErrNilValue
	}
	return *v, nil
}
