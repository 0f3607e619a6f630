// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package pricing implements the per-campaign pricing rules DSL: a small,
// JSON-encodable expression language evaluated against an Input (campaign,
// ad slot, session and balances context) to produce an Output (show/boost/
// per-event-type price).
package pricing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/luxfi/outpace/pkg/unifiednum"
)

// Error is the sentinel family eval returns; ErrTypeError and
// ErrUnknownVariable are the only two members, matching the two ways a rule
// evaluation can fail short of a Go-level bug.
var (
	ErrTypeError       = errors.New("pricing: type error")
	ErrUnknownVariable = errors.New("pricing: unknown variable")
)

// ValueKind discriminates Value's payload.
type ValueKind uint8

const (
	KindBool ValueKind = iota
	KindNumber
	KindString
	KindArray
	KindUnifiedNum
)

// Value is the DSL's tagged union: a bool, a number, a string, an array of
// values, or a UnifiedNum amount. UnifiedNum never appears as a JSON literal
// (JSON has no such type) — it can only be produced by evaluating bn(...).
type Value struct {
	kind    ValueKind
	boolean bool
	number  Number
	str     string
	array   []Value
	unified unifiednum.UnifiedNum
}

func BoolValue(b bool) Value             { return Value{kind: KindBool, boolean: b} }
func NumberValue(n Number) Value         { return Value{kind: KindNumber, number: n} }
func Uint64Value(v uint64) Value         { return Value{kind: KindNumber, number: NewNumberFromUint64(v)} }
func StringValue(s string) Value         { return Value{kind: KindString, str: s} }
func ArrayValue(vs []Value) Value        { return Value{kind: KindArray, array: vs} }
func UnifiedNumValue(u unifiednum.UnifiedNum) Value {
	return Value{kind: KindUnifiedNum, unified: u}
}

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) TryBool() (bool, error) {
	if v.kind != KindBool {
		return false, ErrTypeError
	}
	return v.boolean, nil
}

func (v Value) TryString() (string, error) {
	if v.kind != KindString {
		return "", ErrTypeError
	}
	return v.str, nil
}

func (v Value) TryArray() ([]Value, error) {
	if v.kind != KindArray {
		return nil, ErrTypeError
	}
	return v.array, nil
}

func (v Value) TryNumber() (Number, error) {
	if v.kind != KindNumber {
		return Number{}, ErrTypeError
	}
	return v.number, nil
}

// TryUnified coerces v into a UnifiedNum: a String is parsed as a decimal
// base-unit amount, a UnifiedNum passes through, and a Number is treated as
// a count of whole units: an unsigned integer via FromWhole, any other
// number via FromFloat64 (fractions down to 8 decimals are kept). Anything
// else, a negative number, or a number finer than 8 decimals is a type
// error.
func (v Value) TryUnified() (unifiednum.UnifiedNum, error) {
	switch v.kind {
	case KindUnifiedNum:
		return v.unified, nil
	case KindString:
		var u unifiednum.UnifiedNum
		if err := json.Unmarshal([]byte(`"`+v.str+`"`), &u); err != nil {
			return 0, ErrTypeError
		}
		return u, nil
	case KindNumber:
		if whole, ok := v.number.AsUint64(); ok {
			u, err := unifiednum.FromWhole(whole)
			if err != nil {
				return 0, ErrTypeError
			}
			return u, nil
		}
		if f, ok := v.number.AsFloat64(); ok {
			u, err := unifiednum.FromFloat64(f)
			if err != nil {
				return 0, ErrTypeError
			}
			return u, nil
		}
		return 0, ErrTypeError
	default:
		return 0, ErrTypeError
	}
}

// Equal reports whether v and other are equal under the DSL's eq semantics:
// cross-kind comparisons between Number and UnifiedNum coerce through
// TryUnified, everything else requires matching kinds.
func (v Value) Equal(other Value) (bool, error) {
	if v.kind == KindUnifiedNum || other.kind == KindUnifiedNum {
		lu, err := v.TryUnified()
		if err != nil {
			return false, err
		}
		ru, err := other.TryUnified()
		if err != nil {
			return false, err
		}
		return lu == ru, nil
	}
	if v.kind != other.kind {
		return false, ErrTypeError
	}
	switch v.kind {
	case KindBool:
		return v.boolean == other.boolean, nil
	case KindString:
		return v.str == other.str, nil
	case KindNumber:
		return compareNumbers(v.number, other.number, cmpEq)
	case KindArray:
		if len(v.array) != len(other.array) {
			return false, nil
		}
		for i := range v.array {
			eq, err := v.array[i].Equal(other.array[i])
			if err != nil || !eq {
				return eq, err
			}
		}
		return true, nil
	default:
		return false, ErrTypeError
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindBool:
		return json.Marshal(v.boolean)
	case KindNumber:
		return v.number.MarshalJSON()
	case KindString:
		return json.Marshal(v.str)
	case KindArray:
		return json.Marshal(v.array)
	case KindUnifiedNum:
		// UnifiedNum is never a DSL literal; it serializes as its decimal
		// base-unit string, same as everywhere else UnifiedNum crosses JSON.
		return json.Marshal(v.unified.String())
	default:
		return nil, fmt.Errorf("pricing: marshal value: unknown kind %d", v.kind)
	}
}

// UnmarshalJSON decodes a DSL literal: bool, number, string or array. Objects
// and null are rejected — a JSON object in rule position must instead decode
// as a Function (see Rule.UnmarshalJSON), never as a bare Value.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var probe interface{}
	if err := dec.Decode(&probe); err != nil {
		return fmt.Errorf("pricing: decode value: %w", err)
	}
	switch t := probe.(type) {
	case bool:
		*v = BoolValue(t)
	case string:
		*v = StringValue(t)
	case json.Number:
		*v = NumberValue(Number{raw: t.String()})
	case []interface{}:
		arr := make([]Value, 0, len(t))
		for _, raw := range t {
			encoded, err := json.Marshal(raw)
			if err != nil {
				return err
			}
			var elem Value
			if err := json.Unmarshal(encoded, &elem); err != nil {
				return err
			}
			arr = append(arr, elem)
		}
		*v = ArrayValue(arr)
	default:
		return fmt.Errorf("%w: object or null is not a valid DSL value", ErrTypeError)
	}
	return nil
}
