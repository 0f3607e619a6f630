// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pricing

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Number is a JSON number that preserves its original textual form, so that
// Eq/Lt/Gt comparisons can fall back u64 -> i64 -> f64 exactly the way the
// DSL's math operators do, instead of forcing every number through float64
// and losing precision on large whole counts (e.g. secondsSinceEpoch).
type Number struct {
	raw string
}

// NewNumberFromUint64 builds a Number from a non-negative whole count.
func NewNumberFromUint64(v uint64) Number {
	return Number{raw: strconv.FormatUint(v, 10)}
}

// NewNumberFromInt64 builds a Number from a signed whole count.
func NewNumberFromInt64(v int64) Number {
	return Number{raw: strconv.FormatInt(v, 10)}
}

// NewNumberFromFloat64 builds a Number from a floating point value.
func NewNumberFromFloat64(v float64) Number {
	return Number{raw: strconv.FormatFloat(v, 'g', -1, 64)}
}

// AsUint64 reports whether raw parses as a non-negative integer.
func (n Number) AsUint64() (uint64, bool) {
	v, err := strconv.ParseUint(n.raw, 10, 64)
	return v, err == nil
}

// AsInt64 reports whether raw parses as a signed integer.
func (n Number) AsInt64() (int64, bool) {
	v, err := strconv.ParseInt(n.raw, 10, 64)
	return v, err == nil
}

// AsFloat64 reports whether raw parses as a float.
func (n Number) AsFloat64() (float64, bool) {
	v, err := strconv.ParseFloat(n.raw, 64)
	return v, err == nil
}

func (n Number) String() string {
	return n.raw
}

func (n Number) MarshalJSON() ([]byte, error) {
	if n.raw == "" {
		return []byte("0"), nil
	}
	return []byte(n.raw), nil
}

func (n *Number) UnmarshalJSON(data []byte) error {
	var probe json.Number
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("pricing: decode number: %w", err)
	}
	n.raw = probe.String()
	return nil
}

