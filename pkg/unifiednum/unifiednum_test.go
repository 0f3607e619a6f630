// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package unifiednum

import (
	"math"
	"testing"
)

func TestFromWhole(t *testing.T) {
	v, err := FromWhole(5)
	if err != nil {
		t.Fatalf("FromWhole: %v", err)
	}
	if v.Uint64() != 500000000 {
		t.Fatalf("expected 500000000, got %d", v.Uint64())
	}
}

func TestAddOverflow(t *testing.T) {
	max := FromUint64(math.MaxUint64)
	if _, ok := max.Add(FromUint64(1)); ok {
		t.Fatal("expected overflow on Add at MaxUint64")
	}
}

func TestSubUnderflow(t *testing.T) {
	a := FromUint64(5)
	b := FromUint64(10)
	if _, ok := a.Sub(b); ok {
		t.Fatal("expected underflow rejected (I3: no negative balances)")
	}
}

func TestToFromNativeRoundTrip(t *testing.T) {
	u, err := FromWhole(3)
	if err != nil {
		t.Fatalf("FromWhole: %v", err)
	}

	for _, precision := range []uint8{0, 6, 8, 18} {
		native, err := ToNative(u, precision)
		if err != nil {
			t.Fatalf("ToNative(%d): %v", precision, err)
		}
		back, err := FromNative(native, precision)
		if err != nil {
			t.Fatalf("FromNative(%d): %v", precision, err)
		}
		if precision < Precision {
			// truncating precisions lose sub-unit fractions; 3 whole units
			// has none, so round trip must be exact.
		}
		if back != u {
			t.Fatalf("precision %d: round trip %d != original %d", precision, back.Uint64(), u.Uint64())
		}
	}
}

func TestMulDiv(t *testing.T) {
	u := FromUint64(1000)
	// fee/1000 style pro-mille scaling
	out, err := u.MulDiv(37, 1000)
	if err != nil {
		t.Fatalf("MulDiv: %v", err)
	}
	if out.Uint64() != 37 {
		t.Fatalf("expected 37, got %d", out.Uint64())
	}
}

func TestMulDivDivByZero(t *testing.T) {
	u := FromUint64(100)
	if _, err := u.MulDiv(1, 0); err == nil {
		t.Fatal("expected error dividing by zero")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	u := FromUint64(123456789)
	data, err := u.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if string(data) != `"123456789"` {
		t.Fatalf("expected quoted decimal string, got %s", data)
	}

	var back UnifiedNum
	if err := back.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if back != u {
		t.Fatalf("expected %d, got %d", u, back)
	}
}

func TestMinMax(t *testing.T) {
	a := FromUint64(5)
	b := FromUint64(9)
	if Min(a, b) != a {
		t.Fatal("Min mismatch")
	}
	if Max(a, b) != b {
		t.Fatal("Max mismatch")
	}
}
