// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pricing

import (
	"strings"

	"github.com/luxfi/outpace/pkg/unifiednum"
)

// Output accumulates the side effects of evaluating a campaign's and an ad
// slot's rules against one event: whether to show the event at all, a boost
// multiplier, and a per-event-type price.
type Output struct {
	Show  bool
	Boost float64
	Price map[string]unifiednum.UnifiedNum
}

// NewOutput returns the starting Output for evaluating one event: shown by
// default, unit boost, seeded with the event type's pricing-bounds minimum.
func NewOutput(eventType string, minPrice unifiednum.UnifiedNum) *Output {
	return &Output{
		Show:  true,
		Boost: 1.0,
		Price: map[string]unifiednum.UnifiedNum{eventType: minPrice},
	}
}

// TryGet resolves a get(key) that missed Input: "show", "boost", or
// "price.<EVENT_TYPE>".
func (o *Output) TryGet(key string) (Value, error) {
	switch {
	case key == "show":
		return BoolValue(o.Show), nil
	case key == "boost":
		return NumberValue(NewNumberFromFloat64(o.Boost)), nil
	case strings.HasPrefix(key, "price."):
		eventType := strings.TrimPrefix(key, "price.")
		price, ok := o.Price[eventType]
		if !ok {
			return Value{}, ErrUnknownVariable
		}
		return UnifiedNumValue(price), nil
	default:
		return Value{}, ErrUnknownVariable
	}
}
