// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pricing

import (
	"encoding/json"
	"testing"

	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/unifiednum"
)

func newInput() *Input {
	return &Input{
		Global: Global{
			AdSlotID:    "slot-1",
			EventType:   "IMPRESSION",
			PublisherID: ids.Address{},
		},
	}
}

func TestEvalLiteral(t *testing.T) {
	input := newInput()
	output := NewOutput("IMPRESSION", mustWhole(t, 1))

	v, err := Eval(input, output, ValueRule(BoolValue(true)))
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if b, _ := v.TryBool(); !b {
		t.Fatal("expected true")
	}
}

func TestEvalGetFallsBackToOutput(t *testing.T) {
	input := newInput()
	output := NewOutput("IMPRESSION", mustWhole(t, 2))

	v, err := Eval(input, output, FunctionRule(NewGet("show")))
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	b, err := v.TryBool()
	if err != nil || !b {
		t.Fatalf("expected show=true, got %v (%v)", b, err)
	}
}

func TestEvalSetPriceImpression(t *testing.T) {
	input := newInput()
	output := NewOutput("IMPRESSION", mustWhole(t, 1))

	price, err := unifiednum.FromWhole(5)
	if err != nil {
		t.Fatal(err)
	}

	_, err = Eval(input, output, FunctionRule(NewSet("price.IMPRESSION", ValueRule(UnifiedNumValue(price)))))
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if output.Price["IMPRESSION"] != price {
		t.Fatalf("expected price %s, got %s", price, output.Price["IMPRESSION"])
	}
}

func TestEvalOnlyShowIfStopsMultiple(t *testing.T) {
	input := newInput()
	output := NewOutput("IMPRESSION", mustWhole(t, 1))

	rules := Rules{
		FunctionRule(NewOnlyShowIf(ValueRule(BoolValue(false)))),
		FunctionRule(NewSet("boost", ValueRule(NumberValue(NewNumberFromFloat64(5))))),
	}

	results := EvalMultiple(rules, input, output)
	if len(results) != 1 {
		t.Fatalf("expected short-circuit after first rule, got %d results", len(results))
	}
	if output.Show {
		t.Fatal("expected show=false")
	}
	if output.Boost != 1.0 {
		t.Fatal("boost rule must not have run after show=false")
	}
}

func TestEvalUnknownVariableSkippedByCallback(t *testing.T) {
	input := newInput()
	output := NewOutput("IMPRESSION", mustWhole(t, 1))

	rules := Rules{FunctionRule(NewGet("doesNotExist"))}

	var calls int
	EvalWithCallback(rules, input, output, func(Rule, error) { calls++ })
	if calls != 0 {
		t.Fatalf("expected UnknownVariable to be silently skipped, got %d callback invocations", calls)
	}
}

func TestEvalTypeErrorReportedByCallback(t *testing.T) {
	input := newInput()
	output := NewOutput("IMPRESSION", mustWhole(t, 1))

	// "show" is bool-typed; setting it to a string is a TypeError.
	rules := Rules{FunctionRule(NewSet("show", ValueRule(StringValue("nope"))))}

	var got error
	EvalWithCallback(rules, input, output, func(_ Rule, err error) { got = err })
	if got != ErrTypeError {
		t.Fatalf("expected TypeError callback, got %v", got)
	}
}

func TestEvalMulDivAvoidsOverflow(t *testing.T) {
	input := newInput()
	output := NewOutput("IMPRESSION", mustWhole(t, 1))

	big, err := unifiednum.FromWhole(1_000_000_000)
	if err != nil {
		t.Fatal(err)
	}

	rule := FunctionRule(NewMulDiv(
		ValueRule(UnifiedNumValue(big)),
		ValueRule(Uint64Value(1_000_000_000)),
		ValueRule(Uint64Value(1_000_000)),
	))

	v, err := Eval(input, output, rule)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	u, err := v.TryUnified()
	if err != nil {
		t.Fatal(err)
	}
	expected, _ := unifiednum.FromWhole(1_000_000_000_000)
	if u != expected {
		t.Fatalf("expected %s, got %s", expected, u)
	}
}

func TestEvalBetween(t *testing.T) {
	input := newInput()
	output := NewOutput("IMPRESSION", mustWhole(t, 1))

	rule := FunctionRule(NewBetween(
		ValueRule(Uint64Value(1)),
		ValueRule(Uint64Value(10)),
		ValueRule(Uint64Value(5)),
	))

	v, err := Eval(input, output, rule)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if b, _ := v.TryBool(); !b {
		t.Fatal("expected 5 to be between 1 and 10")
	}
}

func TestEvalIntersectsAndIn(t *testing.T) {
	input := newInput()
	output := NewOutput("IMPRESSION", mustWhole(t, 1))

	a := ValueRule(ArrayValue([]Value{StringValue("IAB3"), StringValue("IAB5")}))
	b := ValueRule(ArrayValue([]Value{StringValue("IAB5"), StringValue("IAB9")}))

	v, err := Eval(input, output, FunctionRule(NewIntersects(a, b)))
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if ok, _ := v.TryBool(); !ok {
		t.Fatal("expected intersection")
	}

	v, err = Eval(input, output, FunctionRule(NewIn(a, ValueRule(StringValue("IAB3")))))
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if ok, _ := v.TryBool(); !ok {
		t.Fatal("expected IAB3 to be in array a")
	}
}

func TestRuleJSONRoundTripFunction(t *testing.T) {
	rule := FunctionRule(NewIfElse(
		FunctionRule(NewGte(FunctionRule(NewGet("campaignSecondsActive")), ValueRule(Uint64Value(10)))),
		FunctionRule(NewSet("boost", ValueRule(NumberValue(NewNumberFromFloat64(1.5))))),
		FunctionRule(NewSet("boost", ValueRule(NumberValue(NewNumberFromFloat64(1.0))))),
	))

	data, err := json.Marshal(rule)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded Rule
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !decoded.IsFunction() {
		t.Fatal("expected a function rule")
	}
	if decoded.fn.Kind != FnIfElse {
		t.Fatalf("expected ifElse, got %v", decoded.fn.Kind)
	}
}

func TestRulesDropsInvalidEntries(t *testing.T) {
	raw := `[{"get":"ok"}, {"unknownFunction":[1,2]}, true]`

	var rules Rules
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 valid rules (invalid dropped), got %d", len(rules))
	}
}

func mustWhole(t *testing.T, whole uint64) unifiednum.UnifiedNum {
	t.Helper()
	u, err := unifiednum.FromWhole(whole)
	if err != nil {
		t.Fatal(err)
	}
	return u
}
