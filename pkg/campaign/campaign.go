// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package campaign implements the advertising order pinned to one channel:
// its pricing bounds, targeting rules, ad unit inventory and the remaining
// in-process budget counter the Event Aggregator decrements as events are
// accepted.
package campaign

import (
	"errors"
	"time"

	"github.com/luxfi/outpace/pkg/accounting"
	"github.com/luxfi/outpace/pkg/channel"
	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/pricing"
	"github.com/luxfi/outpace/pkg/unifiednum"
)

// Event type tags used both as Campaign.PricingBounds keys and as the
// pricing.Global.EventType value an aggregator builds for eval.
const (
	EventTypeImpression = "IMPRESSION"
	EventTypeClick      = "CLICK"
)

var (
	// ErrClosed is returned by Spend on a campaign that has been closed,
	// either explicitly or by budget exhaustion, or that is outside its
	// active window.
	ErrClosed = errors.New("campaign: closed")
	// ErrExhausted is returned by Spend when the remaining budget can't
	// cover the requested amount.
	ErrExhausted = errors.New("campaign: exhausted")
	// ErrUnknownEventType is returned when PriceBounds is asked for an event
	// type the campaign carries no bounds for.
	ErrUnknownEventType = errors.New("campaign: unknown event type")
)

// PriceBounds clamps a single event type's effective price.
type PriceBounds struct {
	Min unifiednum.UnifiedNum
	Max unifiednum.UnifiedNum
}

// Clamp folds v into [b.Min, b.Max].
func (b PriceBounds) Clamp(v unifiednum.UnifiedNum) unifiednum.UnifiedNum {
	if v.Cmp(b.Min) < 0 {
		return b.Min
	}
	if v.Cmp(b.Max) > 0 {
		return b.Max
	}
	return v
}

// Active is the campaign's scheduled run window; zero values mean unbounded
// on that side.
type Active struct {
	From time.Time
	To   time.Time
}

// Contains reports whether now falls within the window.
func (a Active) Contains(now time.Time) bool {
	if !a.From.IsZero() && now.Before(a.From) {
		return false
	}
	if !a.To.IsZero() && !now.Before(a.To) {
		return false
	}
	return true
}

// AdUnit is one creative the campaign may serve into a matching ad slot.
type AdUnit struct {
	ID         string
	MediaURL   string
	MediaMime  string
	TargetURL  string
	Categories []string
}

// Campaign is an advertising order pinned to one channel. It is immutable
// apart from its remaining budget counter (mutated through Spend/Close) and
// its targeting rules (mutated through UpdateTargeting); the exported
// PricingBounds and AdUnits fields are replaced directly by callers.
type Campaign struct {
	ID      string
	Channel channel.ID
	Creator ids.Address

	Budget   unifiednum.UnifiedNum
	Leader   accounting.ValidatorDesc
	Follower accounting.ValidatorDesc

	PricingBounds  map[string]PriceBounds
	TargetingRules pricing.Rules
	AdUnits        []AdUnit
	Active         Active

	remaining unifiednum.UnifiedNum
	closed    bool
}

// New creates a Campaign with its remaining budget initialized to the full
// budget amount.
func New(id string, ch channel.ID, creator ids.Address, budget unifiednum.UnifiedNum, leader, follower accounting.ValidatorDesc, bounds map[string]PriceBounds, rules pricing.Rules, adUnits []AdUnit, active Active) *Campaign {
	return &Campaign{
		ID:             id,
		Channel:        ch,
		Creator:        creator,
		Budget:         budget,
		Leader:         leader,
		Follower:       follower,
		PricingBounds:  bounds,
		TargetingRules: rules,
		AdUnits:        adUnits,
		Active:         active,
		remaining:      budget,
	}
}

// PriceBoundsFor returns the configured bounds for eventType.
func (c *Campaign) PriceBoundsFor(eventType string) (PriceBounds, error) {
	b, ok := c.PricingBounds[eventType]
	if !ok {
		return PriceBounds{}, ErrUnknownEventType
	}
	return b, nil
}

// Remaining returns the campaign's current remaining budget.
func (c *Campaign) Remaining() unifiednum.UnifiedNum {
	return c.remaining
}

// IsOpen reports whether the campaign can still accept events at now: not
// explicitly closed, remaining budget above zero, and within its active
// window.
func (c *Campaign) IsOpen(now time.Time) bool {
	return !c.closed && !c.remaining.IsZero() && c.Active.Contains(now)
}

// Close marks the campaign closed; a closed campaign never accepts further
// Spend calls regardless of remaining budget or active window.
func (c *Campaign) Close() {
	c.closed = true
}

// Spend atomically decrements the remaining budget by amount, the gross
// spend computed by the aggregator for one event (base price plus validator
// fees). It returns ErrClosed if the campaign is closed or past its active
// window, and ErrExhausted if amount exceeds what remains — in either case
// the remaining budget is left untouched.
//
// Campaign is not safe for concurrent use by multiple goroutines on its
// own; callers serialize Spend per channel (see pkg/aggregator), the same
// way the reference implementation threads a single in-process counter
// through one aggregation task per channel rather than locking per call.
func (c *Campaign) Spend(now time.Time, amount unifiednum.UnifiedNum) error {
	if !c.IsOpen(now) {
		return ErrClosed
	}
	newRemaining, ok := c.remaining.Sub(amount)
	if !ok {
		return ErrExhausted
	}
	c.remaining = newRemaining
	if c.remaining.IsZero() {
		c.closed = true
	}
	return nil
}

// UpdateTargeting replaces the campaign's targeting rules; used by the
// UpdateTargeting event, which affects campaign metadata only and carries
// no budget or Accounting side effects.
func (c *Campaign) UpdateTargeting(rules pricing.Rules) {
	c.TargetingRules = rules
}

// Spender is the per-(channel, address) deposit/spend projection: how much
// an address has deposited on-chain against a channel, and how much of it
// Accounting shows as spent so far. TotalSpent is nil until the address has
// appeared on the spenders side of Accounting at least once.
type Spender struct {
	TotalDeposited unifiednum.UnifiedNum
	TotalSpent     *unifiednum.UnifiedNum
}

// Exhausted reports whether the spender has spent at least its full
// deposit, i.e. it cannot fund any further events on this channel.
func (s Spender) Exhausted() bool {
	if s.TotalSpent == nil {
		return false
	}
	return s.TotalSpent.Cmp(s.TotalDeposited) >= 0
}
