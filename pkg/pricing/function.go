// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pricing

import (
	"encoding/json"
	"fmt"
)

// FuncKind enumerates every DSL operator.
type FuncKind uint8

const (
	FnMulDiv FuncKind = iota
	FnDiv
	FnMul
	FnMod
	FnAdd
	FnSub
	FnMax
	FnMin
	FnIf
	FnIfNot
	FnIfElse
	FnAnd
	FnOr
	FnXor
	FnNot
	FnLt
	FnLte
	FnGt
	FnGte
	FnEq
	FnNeq
	FnIn
	FnNin
	FnAt
	FnBetween
	FnSplit
	FnStartsWith
	FnEndsWith
	FnOnlyShowIf
	FnIntersects
	FnDo
	FnGet
	FnSet
	FnBn
)

// funcName is the camelCase wire name for each FuncKind, matching the
// externally-tagged {"name": args} JSON representation.
var funcName = map[FuncKind]string{
	FnMulDiv:     "mulDiv",
	FnDiv:        "div",
	FnMul:        "mul",
	FnMod:        "mod",
	FnAdd:        "add",
	FnSub:        "sub",
	FnMax:        "max",
	FnMin:        "min",
	FnIf:         "if",
	FnIfNot:      "ifNot",
	FnIfElse:     "ifElse",
	FnAnd:        "and",
	FnOr:         "or",
	FnXor:        "xor",
	FnNot:        "not",
	FnLt:         "lt",
	FnLte:        "lte",
	FnGt:         "gt",
	FnGte:        "gte",
	FnEq:         "eq",
	FnNeq:        "neq",
	FnIn:         "in",
	FnNin:        "nin",
	FnAt:         "at",
	FnBetween:    "between",
	FnSplit:      "split",
	FnStartsWith: "startsWith",
	FnEndsWith:   "endsWith",
	FnOnlyShowIf: "onlyShowIf",
	FnIntersects: "intersects",
	FnDo:         "do",
	FnGet:        "get",
	FnSet:        "set",
	FnBn:         "bn",
}

var nameToFunc = func() map[string]FuncKind {
	m := make(map[string]FuncKind, len(funcName))
	for k, v := range funcName {
		m[v] = k
	}
	return m
}()

// arity reports how many Rule operands each FuncKind carries (Get/Set/Bn are
// handled separately, as they carry a string key and/or a Value rather than
// uniform Rule operands).
var arity = map[FuncKind]int{
	FnMulDiv: 3, FnBetween: 3,
	FnDiv: 2, FnMul: 2, FnMod: 2, FnAdd: 2, FnSub: 2, FnMax: 2, FnMin: 2,
	FnIf: 2, FnIfNot: 2, FnAnd: 2, FnOr: 2, FnXor: 2,
	FnLt: 2, FnLte: 2, FnGt: 2, FnGte: 2, FnEq: 2, FnNeq: 2,
	FnIn: 2, FnNin: 2, FnAt: 2, FnSplit: 2, FnStartsWith: 2, FnEndsWith: 2, FnIntersects: 2,
	FnIfElse: 3,
	FnNot:    1, FnOnlyShowIf: 1, FnDo: 1,
}

// Function is a single DSL operator application. Operands beyond what a
// given Kind uses are left as the zero Rule.
type Function struct {
	Kind FuncKind
	A, B, C Rule
	Key     string
	Val     Value
}

func newN(kind FuncKind, rules ...Rule) Function {
	f := Function{Kind: kind}
	if len(rules) > 0 {
		f.A = rules[0]
	}
	if len(rules) > 1 {
		f.B = rules[1]
	}
	if len(rules) > 2 {
		f.C = rules[2]
	}
	return f
}

func NewMulDiv(value, multiplier, divisor Rule) Function { return newN(FnMulDiv, value, multiplier, divisor) }
func NewDiv(lhs, rhs Rule) Function                       { return newN(FnDiv, lhs, rhs) }
func NewMul(lhs, rhs Rule) Function                       { return newN(FnMul, lhs, rhs) }
func NewMod(lhs, rhs Rule) Function                       { return newN(FnMod, lhs, rhs) }
func NewAdd(lhs, rhs Rule) Function                       { return newN(FnAdd, lhs, rhs) }
func NewSub(lhs, rhs Rule) Function                       { return newN(FnSub, lhs, rhs) }
func NewMax(lhs, rhs Rule) Function                       { return newN(FnMax, lhs, rhs) }
func NewMin(lhs, rhs Rule) Function                       { return newN(FnMin, lhs, rhs) }
func NewIf(cond, then Rule) Function                      { return newN(FnIf, cond, then) }
func NewIfNot(cond, then Rule) Function                    { return newN(FnIfNot, cond, then) }
func NewIfElse(cond, then, otherwise Rule) Function       { return newN(FnIfElse, cond, then, otherwise) }
func NewAnd(lhs, rhs Rule) Function                       { return newN(FnAnd, lhs, rhs) }
func NewOr(lhs, rhs Rule) Function                        { return newN(FnOr, lhs, rhs) }
func NewXor(lhs, rhs Rule) Function                       { return newN(FnXor, lhs, rhs) }
func NewNot(rule Rule) Function                           { return newN(FnNot, rule) }
func NewLt(lhs, rhs Rule) Function                        { return newN(FnLt, lhs, rhs) }
func NewLte(lhs, rhs Rule) Function                       { return newN(FnLte, lhs, rhs) }
func NewGt(lhs, rhs Rule) Function                        { return newN(FnGt, lhs, rhs) }
func NewGte(lhs, rhs Rule) Function                       { return newN(FnGte, lhs, rhs) }
func NewEq(lhs, rhs Rule) Function                        { return newN(FnEq, lhs, rhs) }
func NewNeq(lhs, rhs Rule) Function                       { return newN(FnNeq, lhs, rhs) }
func NewIn(array, value Rule) Function                    { return newN(FnIn, array, value) }
func NewNin(array, value Rule) Function                   { return newN(FnNin, array, value) }
func NewAt(array, index Rule) Function                    { return newN(FnAt, array, index) }
func NewBetween(start, end, value Rule) Function          { return newN(FnBetween, start, end, value) }
func NewSplit(str, sep Rule) Function                     { return newN(FnSplit, str, sep) }
func NewStartsWith(str, prefix Rule) Function              { return newN(FnStartsWith, str, prefix) }
func NewEndsWith(str, suffix Rule) Function                { return newN(FnEndsWith, str, suffix) }
func NewOnlyShowIf(cond Rule) Function                     { return newN(FnOnlyShowIf, cond) }
func NewIntersects(lhs, rhs Rule) Function                { return newN(FnIntersects, lhs, rhs) }
func NewDo(rule Rule) Function                            { return newN(FnDo, rule) }
func NewGet(key string) Function                          { return Function{Kind: FnGet, Key: key} }
func NewSet(key string, rule Rule) Function                { return Function{Kind: FnSet, Key: key, A: rule} }
func NewBn(value Value) Function                          { return Function{Kind: FnBn, Val: value} }

func (f Function) MarshalJSON() ([]byte, error) {
	name, ok := funcName[f.Kind]
	if !ok {
		return nil, fmt.Errorf("pricing: marshal function: unknown kind %d", f.Kind)
	}

	var payload interface{}
	switch f.Kind {
	case FnGet:
		payload = f.Key
	case FnSet:
		payload = []interface{}{f.Key, f.A}
	case FnBn:
		payload = f.Val
	default:
		switch arity[f.Kind] {
		case 1:
			payload = f.A
		case 2:
			payload = []Rule{f.A, f.B}
		case 3:
			payload = []Rule{f.A, f.B, f.C}
		default:
			return nil, fmt.Errorf("pricing: marshal function: unhandled kind %d", f.Kind)
		}
	}

	return json.Marshal(map[string]interface{}{name: payload})
}

func (f *Function) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("pricing: decode function: %w", err)
	}
	if len(obj) != 1 {
		return fmt.Errorf("pricing: function object must have exactly one key, got %d", len(obj))
	}
	var name string
	var raw json.RawMessage
	for k, v := range obj {
		name, raw = k, v
	}
	kind, ok := nameToFunc[name]
	if !ok {
		return fmt.Errorf("pricing: unknown function %q", name)
	}

	switch kind {
	case FnGet:
		var key string
		if err := json.Unmarshal(raw, &key); err != nil {
			return fmt.Errorf("pricing: decode get key: %w", err)
		}
		*f = Function{Kind: FnGet, Key: key}
		return nil
	case FnSet:
		var pair []json.RawMessage
		if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
			return fmt.Errorf("pricing: decode set: expected [key, rule]")
		}
		var key string
		if err := json.Unmarshal(pair[0], &key); err != nil {
			return fmt.Errorf("pricing: decode set key: %w", err)
		}
		var rule Rule
		if err := json.Unmarshal(pair[1], &rule); err != nil {
			return err
		}
		*f = Function{Kind: FnSet, Key: key, A: rule}
		return nil
	case FnBn:
		var val Value
		if err := json.Unmarshal(raw, &val); err != nil {
			return err
		}
		*f = Function{Kind: FnBn, Val: val}
		return nil
	}

	switch arity[kind] {
	case 1:
		var a Rule
		if err := json.Unmarshal(raw, &a); err != nil {
			return err
		}
		*f = Function{Kind: kind, A: a}
	case 2:
		var rules [2]Rule
		if err := json.Unmarshal(raw, &rules); err != nil {
			return fmt.Errorf("pricing: decode %s: %w", name, err)
		}
		*f = Function{Kind: kind, A: rules[0], B: rules[1]}
	case 3:
		var rules [3]Rule
		if err := json.Unmarshal(raw, &rules); err != nil {
			return fmt.Errorf("pricing: decode %s: %w", name, err)
		}
		*f = Function{Kind: kind, A: rules[0], B: rules[1], C: rules[2]}
	default:
		return fmt.Errorf("pricing: unhandled function arity for %q", name)
	}
	return nil
}
