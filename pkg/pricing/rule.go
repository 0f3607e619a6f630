// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pricing

import (
	"encoding/json"
	"fmt"
)

// Rule is either a literal Value or a Function application — the DSL's
// untagged Value|Function union. The zero Rule is the literal Value false,
// which is never a meaningful rule on its own but keeps Function's A/B/C
// operand fields addressable without pointers.
type Rule struct {
	isFunc bool
	fn     Function
	val    Value
}

// FunctionRule wraps a Function as a Rule.
func FunctionRule(f Function) Rule { return Rule{isFunc: true, fn: f} }

// ValueRule wraps a literal Value as a Rule.
func ValueRule(v Value) Rule { return Rule{val: v} }

// IsFunction reports whether r is a Function application rather than a bare
// literal.
func (r Rule) IsFunction() bool { return r.isFunc }

func (r Rule) MarshalJSON() ([]byte, error) {
	if r.isFunc {
		return json.Marshal(r.fn)
	}
	return json.Marshal(r.val)
}

// UnmarshalJSON implements the DSL's untagged Rule decoding: a JSON object
// must match a known Function name; anything else (bool, number, string,
// array) decodes as a literal Value.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err == nil {
		var fn Function
		if err := json.Unmarshal(data, &fn); err != nil {
			return fmt.Errorf("pricing: decode rule as function: %w", err)
		}
		*r = FunctionRule(fn)
		return nil
	}

	var val Value
	if err := json.Unmarshal(data, &val); err != nil {
		return fmt.Errorf("pricing: decode rule: %w", err)
	}
	*r = ValueRule(val)
	return nil
}

// Rules is a slice of Rule that silently drops any element failing to
// decode, instead of failing the whole array — this keeps a campaign's
// stored rule set forward-compatible with operators added after it was
// created.
type Rules []Rule

func (rs *Rules) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("pricing: decode rules: %w", err)
	}
	out := make(Rules, 0, len(raw))
	for _, item := range raw {
		var rule Rule
		if err := json.Unmarshal(item, &rule); err != nil {
			continue
		}
		out = append(out, rule)
	}
	*rs = out
	return nil
}
