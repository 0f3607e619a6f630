// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pricing

import (
	"strings"

	"github.com/luxfi/outpace/pkg/unifiednum"
)

// UN is a short alias for unifiednum.UnifiedNum, used throughout this file's
// arithmetic dispatch helpers.
type UN = unifiednum.UnifiedNum

// Eval evaluates a single Rule against input, mutating output in place and
// returning the rule's result value, or nil when the rule had side effects
// only (set, onlyShowIf).
func Eval(input *Input, output *Output, rule Rule) (*Value, error) {
	if !rule.isFunc {
		v := rule.val
		return &v, nil
	}
	return evalFunction(input, output, rule.fn)
}

func evalRuleValue(input *Input, output *Output, r Rule) (Value, error) {
	v, err := Eval(input, output, r)
	if err != nil {
		return Value{}, err
	}
	if v == nil {
		return Value{}, ErrTypeError
	}
	return *v, nil
}

func evalFunction(input *Input, output *Output, fn Function) (*Value, error) {
	switch fn.Kind {
	case FnMulDiv:
		return evalMulDiv(input, output, fn.A, fn.B, fn.C)

	case FnDiv:
		return evalBinaryArith(input, output, fn.A, fn.B,
			func(a, b UN) (UN, bool) { return a.Div(b) },
			func(a, b Number) (Number, error) { return arithNumber(a, b, opDiv) })
	case FnMul:
		return evalBinaryArith(input, output, fn.A, fn.B,
			func(a, b UN) (UN, bool) { return a.Mul(b) },
			func(a, b Number) (Number, error) { return arithNumber(a, b, opMul) })
	case FnMod:
		return evalBinaryArith(input, output, fn.A, fn.B,
			func(a, b UN) (UN, bool) { return a.Rem(b) },
			func(a, b Number) (Number, error) { return arithNumber(a, b, opMod) })
	case FnAdd:
		return evalBinaryArith(input, output, fn.A, fn.B,
			func(a, b UN) (UN, bool) { return a.Add(b) },
			func(a, b Number) (Number, error) { return arithNumber(a, b, opAdd) })
	case FnSub:
		return evalBinaryArith(input, output, fn.A, fn.B,
			func(a, b UN) (UN, bool) { return a.Sub(b) },
			func(a, b Number) (Number, error) { return arithNumber(a, b, opSub) })
	case FnMax:
		return evalBinaryArith(input, output, fn.A, fn.B,
			func(a, b UN) (UN, bool) { return unMax(a, b), true },
			func(a, b Number) (Number, error) { return arithNumber(a, b, opMax) })
	case FnMin:
		return evalBinaryArith(input, output, fn.A, fn.B,
			func(a, b UN) (UN, bool) { return unMin(a, b), true },
			func(a, b Number) (Number, error) { return arithNumber(a, b, opMin) })

	case FnIf:
		cond, err := evalRuleValue(input, output, fn.A)
		if err != nil {
			return nil, err
		}
		b, err := cond.TryBool()
		if err != nil {
			return nil, err
		}
		if b {
			return Eval(input, output, fn.B)
		}
		return nil, nil

	case FnIfNot:
		cond, err := evalRuleValue(input, output, fn.A)
		if err != nil {
			return nil, err
		}
		b, err := cond.TryBool()
		if err != nil {
			return nil, err
		}
		if !b {
			return Eval(input, output, fn.B)
		}
		return nil, nil

	case FnIfElse:
		cond, err := evalRuleValue(input, output, fn.A)
		if err != nil {
			return nil, err
		}
		b, err := cond.TryBool()
		if err != nil {
			return nil, err
		}
		if b {
			return Eval(input, output, fn.B)
		}
		return Eval(input, output, fn.C)

	case FnAnd:
		a, err := evalBool(input, output, fn.A)
		if err != nil {
			return nil, err
		}
		b, err := evalBool(input, output, fn.B)
		if err != nil {
			return nil, err
		}
		return boolPtr(a && b), nil

	case FnOr:
		a, err := evalBool(input, output, fn.A)
		if err != nil {
			return nil, err
		}
		b, err := evalBool(input, output, fn.B)
		if err != nil {
			return nil, err
		}
		return boolPtr(a || b), nil

	case FnXor:
		a, err := evalBool(input, output, fn.A)
		if err != nil {
			return nil, err
		}
		b, err := evalBool(input, output, fn.B)
		if err != nil {
			return nil, err
		}
		return boolPtr(a != b), nil

	case FnNot:
		a, err := evalBool(input, output, fn.A)
		if err != nil {
			return nil, err
		}
		return boolPtr(!a), nil

	case FnLt, FnLte, FnGt, FnGte:
		return evalComparison(input, output, fn)

	case FnEq:
		lhs, err := evalRuleValue(input, output, fn.A)
		if err != nil {
			return nil, err
		}
		rhs, err := evalRuleValue(input, output, fn.B)
		if err != nil {
			return nil, err
		}
		eq, err := lhs.Equal(rhs)
		if err != nil {
			return nil, err
		}
		return boolPtr(eq), nil

	case FnNeq:
		eq, err := evalFunction(input, output, NewEq(fn.A, fn.B))
		if err != nil {
			return nil, err
		}
		b, err := eq.TryBool()
		if err != nil {
			return nil, err
		}
		return boolPtr(!b), nil

	case FnIntersects:
		a, err := evalArray(input, output, fn.A)
		if err != nil {
			return nil, err
		}
		b, err := evalArray(input, output, fn.B)
		if err != nil {
			return nil, err
		}
		for _, x := range a {
			for _, y := range b {
				if eq, err := x.Equal(y); err == nil && eq {
					return boolPtr(true), nil
				}
			}
		}
		return boolPtr(false), nil

	case FnIn:
		arr, err := evalArray(input, output, fn.A)
		if err != nil {
			return nil, err
		}
		needle, err := evalRuleValue(input, output, fn.B)
		if err != nil {
			return nil, err
		}
		return boolPtr(arrayContains(arr, needle)), nil

	case FnNin:
		in, err := evalFunction(input, output, NewIn(fn.A, fn.B))
		if err != nil {
			return nil, err
		}
		b, err := in.TryBool()
		if err != nil {
			return nil, err
		}
		return boolPtr(!b), nil

	case FnBetween:
		gte, err := evalFunction(input, output, NewGte(fn.C, fn.A))
		if err != nil {
			return nil, err
		}
		gteB, err := gte.TryBool()
		if err != nil {
			return nil, err
		}
		lte, err := evalFunction(input, output, NewLte(fn.C, fn.B))
		if err != nil {
			return nil, err
		}
		lteB, err := lte.TryBool()
		if err != nil {
			return nil, err
		}
		return boolPtr(gteB && lteB), nil

	case FnAt:
		arr, err := evalArray(input, output, fn.A)
		if err != nil {
			return nil, err
		}
		idxVal, err := evalRuleValue(input, output, fn.B)
		if err != nil {
			return nil, err
		}
		idxNum, err := idxVal.TryNumber()
		if err != nil {
			return nil, err
		}
		idx64, ok := idxNum.AsUint64()
		if !ok {
			return nil, ErrTypeError
		}
		idx := int(idx64)
		if idx < 0 || idx >= len(arr) {
			return nil, ErrTypeError
		}
		v := arr[idx]
		return &v, nil

	case FnSplit:
		s, err := evalString(input, output, fn.A)
		if err != nil {
			return nil, err
		}
		sep, err := evalString(input, output, fn.B)
		if err != nil {
			return nil, err
		}
		parts := strings.Split(s, sep)
		out := make([]Value, len(parts))
		for i, p := range parts {
			out[i] = StringValue(p)
		}
		return valuePtr(ArrayValue(out)), nil

	case FnStartsWith:
		s, err := evalString(input, output, fn.A)
		if err != nil {
			return nil, err
		}
		prefix, err := evalString(input, output, fn.B)
		if err != nil {
			return nil, err
		}
		return boolPtr(strings.HasPrefix(s, prefix)), nil

	case FnEndsWith:
		s, err := evalString(input, output, fn.A)
		if err != nil {
			return nil, err
		}
		suffix, err := evalString(input, output, fn.B)
		if err != nil {
			return nil, err
		}
		return boolPtr(strings.HasSuffix(s, suffix)), nil

	case FnOnlyShowIf:
		b, err := evalBool(input, output, fn.A)
		if err != nil {
			return nil, err
		}
		return evalFunction(input, output, NewSet("show", ValueRule(BoolValue(b))))

	case FnDo:
		return Eval(input, output, fn.A)

	case FnSet:
		return evalSet(input, output, fn.Key, fn.A)

	case FnGet:
		v, err := input.TryGet(fn.Key)
		if err == nil {
			return &v, nil
		}
		if err == ErrUnknownVariable {
			v, err := output.TryGet(fn.Key)
			if err != nil {
				return nil, err
			}
			return &v, nil
		}
		return nil, err

	case FnBn:
		u, err := fn.Val.TryUnified()
		if err != nil {
			return nil, err
		}
		return valuePtr(UnifiedNumValue(u)), nil
	}

	return nil, ErrTypeError
}

// evalMulDiv computes (value*multiplier)/divisor. When value is a UnifiedNum
// it goes through unifiednum.MulDiv's widened-intermediate arithmetic rather
// than a sequential multiply-then-divide, so that an intermediate product
// exceeding uint64 but a final quotient that fits does not spuriously
// overflow — this is the whole reason muldiv exists as a distinct operator
// instead of mul followed by div.
func evalMulDiv(input *Input, output *Output, valueRule, mulRule, divRule Rule) (*Value, error) {
	value, err := evalRuleValue(input, output, valueRule)
	if err != nil {
		return nil, err
	}

	if value.Kind() == KindUnifiedNum {
		mulVal, err := evalRuleValue(input, output, mulRule)
		if err != nil {
			return nil, err
		}
		divVal, err := evalRuleValue(input, output, divRule)
		if err != nil {
			return nil, err
		}
		mul, err := mulVal.TryUnified()
		if err != nil {
			return nil, err
		}
		div, err := divVal.TryUnified()
		if err != nil {
			return nil, err
		}
		result, err := value.unified.MulDiv(uint64(mul), uint64(div))
		if err != nil {
			return nil, ErrTypeError
		}
		return valuePtr(UnifiedNumValue(result)), nil
	}

	product, err := evalBinaryArith(input, output, ValueRule(value), mulRule,
		func(a, b UN) (UN, bool) { return a.Mul(b) },
		func(a, b Number) (Number, error) { return arithNumber(a, b, opMul) })
	if err != nil {
		return nil, err
	}
	return evalBinaryArith(input, output, ValueRule(*product), divRule,
		func(a, b UN) (UN, bool) { return a.Div(b) },
		func(a, b Number) (Number, error) { return arithNumber(a, b, opDiv) })
}

func evalSet(input *Input, output *Output, key string, rule Rule) (*Value, error) {
	switch key {
	case "boost":
		v, err := evalRuleValue(input, output, rule)
		if err != nil {
			return nil, err
		}
		n, err := v.TryNumber()
		if err != nil {
			return nil, err
		}
		f, ok := n.AsFloat64()
		if !ok {
			return nil, ErrTypeError
		}
		output.Boost = f
	case "show":
		v, err := evalRuleValue(input, output, rule)
		if err != nil {
			return nil, err
		}
		b, err := v.TryBool()
		if err != nil {
			return nil, err
		}
		output.Show = b
	case "price.IMPRESSION":
		v, err := evalRuleValue(input, output, rule)
		if err != nil {
			return nil, err
		}
		u, err := v.TryUnified()
		if err != nil {
			return nil, err
		}
		output.Price["IMPRESSION"] = u
	case "price.CLICK":
		v, err := evalRuleValue(input, output, rule)
		if err != nil {
			return nil, err
		}
		u, err := v.TryUnified()
		if err != nil {
			return nil, err
		}
		output.Price["CLICK"] = u
	default:
		return nil, ErrUnknownVariable
	}
	return nil, nil
}

// EvalMultiple runs rules in order against input/output, short-circuiting
// (stopping further evaluation) the instant output.Show becomes false. It
// returns one result (or error) per rule actually evaluated.
func EvalMultiple(rules Rules, input *Input, output *Output) []RuleResult {
	results := make([]RuleResult, 0, len(rules))
	for _, rule := range rules {
		v, err := Eval(input, output, rule)
		results = append(results, RuleResult{Value: v, Err: err, Rule: rule})
		if !output.Show {
			break
		}
	}
	return results
}

// RuleResult pairs one EvalMultiple outcome with the rule that produced it,
// so a TypeError callback can report which rule misbehaved.
type RuleResult struct {
	Value *Value
	Err   error
	Rule  Rule
}

// EvalWithCallback runs EvalMultiple and invokes onTypeError for every
// ErrTypeError result; UnknownVariable results are silently ignored, mirroring
// a forward-compatible rule set referencing fields not present on an older
// campaign shape.
func EvalWithCallback(rules Rules, input *Input, output *Output, onTypeError func(Rule, error)) {
	for _, result := range EvalMultiple(rules, input, output) {
		if result.Err != nil && result.Err != ErrUnknownVariable && onTypeError != nil {
			onTypeError(result.Rule, result.Err)
		}
		if !output.Show {
			return
		}
	}
}

// --- helpers ---

func unMax(a, b UN) UN {
	if a > b {
		return a
	}
	return b
}

func unMin(a, b UN) UN {
	if a < b {
		return a
	}
	return b
}

func boolPtr(b bool) *Value {
	return valuePtr(BoolValue(b))
}

func valuePtr(v Value) *Value {
	return &v
}

func evalBool(input *Input, output *Output, r Rule) (bool, error) {
	v, err := evalRuleValue(input, output, r)
	if err != nil {
		return false, err
	}
	return v.TryBool()
}

func evalString(input *Input, output *Output, r Rule) (string, error) {
	v, err := evalRuleValue(input, output, r)
	if err != nil {
		return "", err
	}
	return v.TryString()
}

func evalArray(input *Input, output *Output, r Rule) ([]Value, error) {
	v, err := evalRuleValue(input, output, r)
	if err != nil {
		return nil, err
	}
	return v.TryArray()
}

func arrayContains(arr []Value, needle Value) bool {
	for _, v := range arr {
		if eq, err := v.Equal(needle); err == nil && eq {
			return true
		}
	}
	return false
}

// evalBinaryArith evaluates both operands and dispatches to unifiedOp when
// either side is a UnifiedNum (coercing the other side via TryUnified), or
// to numOp when both sides are plain Numbers, matching the DSL's
// UnifiedNum-has-priority coercion rule.
func evalBinaryArith(input *Input, output *Output, a, b Rule, unifiedOp func(a, b UN) (UN, bool), numOp func(a, b Number) (Number, error)) (*Value, error) {
	lhs, err := evalRuleValue(input, output, a)
	if err != nil {
		return nil, err
	}
	rhs, err := evalRuleValue(input, output, b)
	if err != nil {
		return nil, err
	}

	if lhs.Kind() == KindUnifiedNum || rhs.Kind() == KindUnifiedNum {
		lu, err := lhs.TryUnified()
		if err != nil {
			return nil, err
		}
		ru, err := rhs.TryUnified()
		if err != nil {
			return nil, err
		}
		result, ok := unifiedOp(lu, ru)
		if !ok {
			return nil, ErrTypeError
		}
		return valuePtr(UnifiedNumValue(result)), nil
	}

	ln, err := lhs.TryNumber()
	if err != nil {
		return nil, err
	}
	rn, err := rhs.TryNumber()
	if err != nil {
		return nil, err
	}
	result, err := numOp(ln, rn)
	if err != nil {
		return nil, err
	}
	return valuePtr(NumberValue(result)), nil
}

type arithOp int

const (
	opDiv arithOp = iota
	opMul
	opMod
	opAdd
	opSub
	opMax
	opMin
)

// arithNumber mirrors math_operator's u64 -> i64 -> f64 fallback.
func arithNumber(lhs, rhs Number, op arithOp) (Number, error) {
	if lu, ok1 := lhs.AsUint64(); ok1 {
		if ru, ok2 := rhs.AsUint64(); ok2 {
			v, err := applyUint64(lu, ru, op)
			if err != nil {
				return Number{}, err
			}
			return NewNumberFromUint64(v), nil
		}
	}
	if li, ok1 := lhs.AsInt64(); ok1 {
		if ri, ok2 := rhs.AsInt64(); ok2 {
			v, err := applyInt64(li, ri, op)
			if err != nil {
				return Number{}, err
			}
			return NewNumberFromInt64(v), nil
		}
	}
	lf, ok1 := lhs.AsFloat64()
	rf, ok2 := rhs.AsFloat64()
	if !ok1 || !ok2 {
		return Number{}, ErrTypeError
	}
	v, err := applyFloat64(lf, rf, op)
	if err != nil {
		return Number{}, err
	}
	return NewNumberFromFloat64(v), nil
}

func applyUint64(a, b uint64, op arithOp) (uint64, error) {
	switch op {
	case opDiv:
		if b == 0 {
			return 0, ErrTypeError
		}
		return a / b, nil
	case opMul:
		v := a * b
		if a != 0 && v/a != b {
			return 0, ErrTypeError
		}
		return v, nil
	case opMod:
		if b == 0 {
			return 0, ErrTypeError
		}
		return a % b, nil
	case opAdd:
		v := a + b
		if v < a {
			return 0, ErrTypeError
		}
		return v, nil
	case opSub:
		if b > a {
			return 0, ErrTypeError
		}
		return a - b, nil
	case opMax:
		if a > b {
			return a, nil
		}
		return b, nil
	case opMin:
		if a < b {
			return a, nil
		}
		return b, nil
	}
	return 0, ErrTypeError
}

func applyInt64(a, b int64, op arithOp) (int64, error) {
	switch op {
	case opDiv:
		if b == 0 {
			return 0, ErrTypeError
		}
		return a / b, nil
	case opMul:
		v := a * b
		if a != 0 && v/a != b {
			return 0, ErrTypeError
		}
		return v, nil
	case opMod:
		if b == 0 {
			return 0, ErrTypeError
		}
		return a % b, nil
	case opAdd:
		return a + b, nil
	case opSub:
		return a - b, nil
	case opMax:
		if a > b {
			return a, nil
		}
		return b, nil
	case opMin:
		if a < b {
			return a, nil
		}
		return b, nil
	}
	return 0, ErrTypeError
}

func applyFloat64(a, b float64, op arithOp) (float64, error) {
	switch op {
	case opDiv:
		return a / b, nil
	case opMul:
		return a * b, nil
	case opMod:
		return float64(int64(a) % int64(b)), nil
	case opAdd:
		return a + b, nil
	case opSub:
		return a - b, nil
	case opMax:
		if a > b {
			return a, nil
		}
		return b, nil
	case opMin:
		if a < b {
			return a, nil
		}
		return b, nil
	}
	return 0, ErrTypeError
}

type cmpOp int

const (
	cmpLt cmpOp = iota
	cmpLte
	cmpGt
	cmpGte
	cmpEq
)

func evalComparison(input *Input, output *Output, fn Function) (*Value, error) {
	lhs, err := evalRuleValue(input, output, fn.A)
	if err != nil {
		return nil, err
	}
	rhs, err := evalRuleValue(input, output, fn.B)
	if err != nil {
		return nil, err
	}

	var op cmpOp
	switch fn.Kind {
	case FnLt:
		op = cmpLt
	case FnLte:
		op = cmpLte
	case FnGt:
		op = cmpGt
	case FnGte:
		op = cmpGte
	}

	if lhs.Kind() == KindUnifiedNum || rhs.Kind() == KindUnifiedNum {
		lu, err := lhs.TryUnified()
		if err != nil {
			return nil, err
		}
		ru, err := rhs.TryUnified()
		if err != nil {
			return nil, err
		}
		c := lu.Cmp(ru)
		return boolPtr(cmpFromInt(c, op)), nil
	}

	ln, err := lhs.TryNumber()
	if err != nil {
		return nil, err
	}
	rn, err := rhs.TryNumber()
	if err != nil {
		return nil, err
	}
	ok, err := compareNumbers(ln, rn, op)
	if err != nil {
		return nil, err
	}
	return boolPtr(ok), nil
}

func cmpFromInt(c int, op cmpOp) bool {
	switch op {
	case cmpLt:
		return c < 0
	case cmpLte:
		return c <= 0
	case cmpGt:
		return c > 0
	case cmpGte:
		return c >= 0
	case cmpEq:
		return c == 0
	}
	return false
}

// compareNumbers mirrors compare_numbers' u64 -> i64 -> f64 fallback.
func compareNumbers(lhs, rhs Number, op cmpOp) (bool, error) {
	if lu, ok1 := lhs.AsUint64(); ok1 {
		if ru, ok2 := rhs.AsUint64(); ok2 {
			return cmpFromInt(cmpOrdered(lu, ru), op), nil
		}
	}
	if li, ok1 := lhs.AsInt64(); ok1 {
		if ri, ok2 := rhs.AsInt64(); ok2 {
			return cmpFromInt(cmpOrdered(li, ri), op), nil
		}
	}
	lf, ok1 := lhs.AsFloat64()
	rf, ok2 := rhs.AsFloat64()
	if !ok1 || !ok2 {
		return false, ErrTypeError
	}
	return cmpFromInt(cmpOrdered(lf, rf), op), nil
}

func cmpOrdered[T int64 | uint64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
