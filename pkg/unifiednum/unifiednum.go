// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package unifiednum implements UnifiedNum, a fixed-point unsigned integer
// with 8 decimals of precision, independent of any on-chain token's native
// precision. All in-memory accounting math is done in UnifiedNum; only
// Merkle encoding and deposit comparisons convert to a token's native
// precision.
package unifiednum

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strconv"
)

// Precision is the fixed number of decimals UnifiedNum always carries.
const Precision = 8

// ErrOverflow is returned when an arithmetic operation would overflow uint64.
var ErrOverflow = errors.New("unifiednum: overflow")

// ErrNegative is returned when a conversion would require a negative amount.
var ErrNegative = errors.New("unifiednum: negative amount not representable")

// ErrNonWhole is returned when a float conversion has a fractional part finer
// than 8 decimals.
var ErrNonWhole = errors.New("unifiednum: value has sub-unit fractional precision")

// UnifiedNum is a u64-backed fixed-point amount, always expressed in units of
// 10^-8. It is the sole currency type used by Balances, the pricing DSL and
// validator messages.
type UnifiedNum uint64

// Zero is the additive identity.
const Zero UnifiedNum = 0

// FromUint64 wraps a raw base-unit amount (already scaled by 10^8).
func FromUint64(v uint64) UnifiedNum {
	return UnifiedNum(v)
}

// FromWhole builds a UnifiedNum from a whole-number count of the underlying
// asset, e.g. FromWhole(5) is 5 * 10^8 base units.
func FromWhole(whole uint64) (UnifiedNum, error) {
	multiplier := uint64(1)
	for i := 0; i < Precision; i++ {
		next := multiplier * 10
		if next/10 != multiplier {
			return 0, ErrOverflow
		}
		multiplier = next
	}
	v, ok := mulCheck(whole, multiplier)
	if !ok {
		return 0, ErrOverflow
	}
	return UnifiedNum(v), nil
}

// FromFloat64 converts a float into UnifiedNum base units, rejecting
// negative values and values with more than 8 decimals of precision.
func FromFloat64(f float64) (UnifiedNum, error) {
	if f < 0 {
		return 0, ErrNegative
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrNonWhole
	}
	scaled := f * math.Pow10(Precision)
	rounded := math.Round(scaled)
	if math.Abs(scaled-rounded) > 1e-6 {
		return 0, ErrNonWhole
	}
	if rounded > math.MaxUint64 {
		return 0, ErrOverflow
	}
	return UnifiedNum(uint64(rounded)), nil
}

// Uint64 returns the raw base-unit value.
func (u UnifiedNum) Uint64() uint64 {
	return uint64(u)
}

// Float64 returns a floating point approximation of the whole-unit value.
// Not used for any accounting-critical comparison, only for display.
func (u UnifiedNum) Float64() float64 {
	return float64(u) / math.Pow10(Precision)
}

// IsZero reports whether u is the zero amount.
func (u UnifiedNum) IsZero() bool {
	return u == 0
}

// Add returns u+v, and false if the addition overflows uint64. This is the
// primitive Balances.spend builds on: the entire spend must fail atomically
// on overflow.
func (u UnifiedNum) Add(v UnifiedNum) (UnifiedNum, bool) {
	sum := uint64(u) + uint64(v)
	if sum < uint64(u) {
		return 0, false
	}
	return UnifiedNum(sum), true
}

// Sub returns u-v, and false if v > u (UnifiedNum is unsigned, I3).
func (u UnifiedNum) Sub(v UnifiedNum) (UnifiedNum, bool) {
	if v > u {
		return 0, false
	}
	return u - v, true
}

// Cmp compares u and v: -1, 0 or 1.
func (u UnifiedNum) Cmp(v UnifiedNum) int {
	switch {
	case u < v:
		return -1
	case u > v:
		return 1
	default:
		return 0
	}
}

// Min returns the smaller of u and v.
func Min(u, v UnifiedNum) UnifiedNum {
	if u < v {
		return u
	}
	return v
}

// Max returns the larger of u and v.
func Max(u, v UnifiedNum) UnifiedNum {
	if u > v {
		return u
	}
	return v
}

// Mul returns u*v and false if the multiplication overflows uint64. Used by
// the pricing DSL's arithmetic operators, which operate directly on the
// base-unit representation rather than rescaling.
func (u UnifiedNum) Mul(v UnifiedNum) (UnifiedNum, bool) {
	p, ok := mulCheck(uint64(u), uint64(v))
	if !ok {
		return 0, false
	}
	return UnifiedNum(p), true
}

// Div returns u/v (integer division) and false if v is zero.
func (u UnifiedNum) Div(v UnifiedNum) (UnifiedNum, bool) {
	if v == 0 {
		return 0, false
	}
	return u / v, true
}

// Rem returns u%v and false if v is zero.
func (u UnifiedNum) Rem(v UnifiedNum) (UnifiedNum, bool) {
	if v == 0 {
		return 0, false
	}
	return u % v, true
}

// MulDiv computes (u * mul) / div without intermediate uint64 overflow by
// widening the product to 128 bits (math/bits), returning ErrOverflow only
// when the quotient itself does not fit in uint64, mirroring the
// pricing DSL's muldiv operator used to avoid truncation when applying
// pro-mille fee ratios.
func (u UnifiedNum) MulDiv(mul, div uint64) (UnifiedNum, error) {
	if div == 0 {
		return 0, fmt.Errorf("unifiednum: muldiv by zero divisor")
	}
	hi, lo := bits.Mul64(uint64(u), mul)
	if hi >= div {
		return 0, ErrOverflow
	}
	q, _ := bits.Div64(hi, lo, div)
	return UnifiedNum(q), nil
}

// ToNative converts a UnifiedNum (8 decimals) to a token's native precision,
// scaling by 10^(tokenPrecision-8). tokenPrecision must be >= 0; precisions
// below 8 truncate (floor division), matching the Merkle-encoding step.
func ToNative(u UnifiedNum, tokenPrecision uint8) (uint64, error) {
	if tokenPrecision >= Precision {
		scale, ok := pow10(uint64(tokenPrecision) - Precision)
		if !ok {
			return 0, ErrOverflow
		}
		v, ok := mulCheck(uint64(u), scale)
		if !ok {
			return 0, ErrOverflow
		}
		return v, nil
	}
	scale, ok := pow10(Precision - uint64(tokenPrecision))
	if !ok {
		return 0, ErrOverflow
	}
	return uint64(u) / scale, nil
}

// FromNative converts a raw token-precision amount back into UnifiedNum.
func FromNative(amount uint64, tokenPrecision uint8) (UnifiedNum, error) {
	if tokenPrecision >= Precision {
		scale, ok := pow10(uint64(tokenPrecision) - Precision)
		if !ok {
			return 0, ErrOverflow
		}
		return UnifiedNum(amount / scale), nil
	}
	scale, ok := pow10(Precision - uint64(tokenPrecision))
	if !ok {
		return 0, ErrOverflow
	}
	v, ok := mulCheck(amount, scale)
	if !ok {
		return 0, ErrOverflow
	}
	return UnifiedNum(v), nil
}

// String renders the amount as a decimal string in base units, matching
// the over-the-wire representation ("UnifiedNum amounts serialize as
// decimal strings in base units").
func (u UnifiedNum) String() string {
	return strconv.FormatUint(uint64(u), 10)
}

// MarshalJSON serializes UnifiedNum as a base-unit decimal string, never a
// JSON number, so that clients in languages without 64-bit integers do not
// lose precision.
func (u UnifiedNum) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON accepts both a decimal string and a JSON number for
// leniency when consuming externally authored payloads.
func (u *UnifiedNum) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return fmt.Errorf("unifiednum: parse %q: %w", s, err)
		}
		*u = UnifiedNum(v)
		return nil
	}
	var n uint64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("unifiednum: unmarshal: %w", err)
	}
	*u = UnifiedNum(n)
	return nil
}

func mulCheck(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	v := a * b
	if v/b != a {
		return 0, false
	}
	return v, true
}

func pow10(n uint64) (uint64, bool) {
	v := uint64(1)
	for i := uint64(0); i < n; i++ {
		next := v * 10
		if next/10 != v {
			return 0, false
		}
		v = next
	}
	return v, true
}

