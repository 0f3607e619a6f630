// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package aggregator implements the Event Aggregator: the campaign-facing
// ingestion path that prices Impression/Click events through the Pricing
// DSL, decrements a campaign's remaining budget, and applies the resulting
// delta to a channel's Accounting.
package aggregator

import (
	"encoding/json"
	"fmt"

	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/pricing"
	"github.com/luxfi/outpace/pkg/unifiednum"
)

// Kind tags the five event variants a campaign's events endpoint accepts.
type Kind string

const (
	KindImpression      Kind = "IMPRESSION"
	KindClick           Kind = "CLICK"
	KindClose           Kind = "CLOSE"
	KindUpdateTargeting Kind = "UPDATE_TARGETING"
	KindPay             Kind = "PAY"
)

// Event is one entry of an InsertEventsRequest. Fields unused by Kind are
// left at their zero value.
type Event struct {
	Kind Kind

	// EventID, when set, is a caller-supplied idempotency key: a second
	// event carrying an EventID already seen for this channel within the
	// replay window is dropped rather than applied twice. Left empty, the
	// event is never deduplicated.
	EventID string

	// Impression / Click
	Publisher ids.Address
	AdUnit    *string
	AdSlot    *string
	Referrer  *string

	// UpdateTargeting
	TargetingRules pricing.Rules

	// Pay: a caller-supplied earner map, address -> amount to credit.
	Payout map[ids.Address]unifiednum.UnifiedNum
}

// IsPriced reports whether the event carries a price to aggregate
// (Impression or Click), as opposed to one that only touches metadata.
func (e Event) IsPriced() bool {
	return e.Kind == KindImpression || e.Kind == KindClick
}

// InsertEventsRequest is the body of POST /campaign/{id}/events.
type InsertEventsRequest struct {
	Events  []Event
	Session Session
}

// Session is the publisher-side request context forwarded into the Pricing
// DSL's Global scope and, previously, into the price-multiplication-rule
// matcher the DSL superseded.
type Session struct {
	IP       *string
	Country  *string
	Referrer *string
	OS       *string
}

func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case KindImpression, KindClick:
		return json.Marshal(struct {
			Type      Kind    `json:"type"`
			EventID   string  `json:"eventId,omitempty"`
			Publisher string  `json:"publisher"`
			AdUnit    *string `json:"adUnit,omitempty"`
			AdSlot    *string `json:"adSlot,omitempty"`
			Referrer  *string `json:"referrer,omitempty"`
		}{e.Kind, e.EventID, e.Publisher.String(), e.AdUnit, e.AdSlot, e.Referrer})
	case KindClose:
		return json.Marshal(struct {
			Type    Kind   `json:"type"`
			EventID string `json:"eventId,omitempty"`
		}{e.Kind, e.EventID})
	case KindUpdateTargeting:
		return json.Marshal(struct {
			Type           Kind          `json:"type"`
			EventID        string        `json:"eventId,omitempty"`
			TargetingRules pricing.Rules `json:"targetingRules"`
		}{e.Kind, e.EventID, e.TargetingRules})
	case KindPay:
		payout := make(map[string]string, len(e.Payout))
		for addr, amount := range e.Payout {
			payout[addr.String()] = amount.String()
		}
		return json.Marshal(struct {
			Type    Kind              `json:"type"`
			EventID string            `json:"eventId,omitempty"`
			Payout  map[string]string `json:"payout"`
		}{e.Kind, e.EventID, payout})
	default:
		return nil, fmt.Errorf("aggregator: marshal event: unknown kind %q", e.Kind)
	}
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var head struct {
		Type    Kind   `json:"type"`
		EventID string `json:"eventId"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("aggregator: decode event type: %w", err)
	}

	switch head.Type {
	case KindImpression, KindClick:
		var body struct {
			Publisher string  `json:"publisher"`
			AdUnit    *string `json:"adUnit"`
			AdSlot    *string `json:"adSlot"`
			Referrer  *string `json:"referrer"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return fmt.Errorf("aggregator: decode %s event: %w", head.Type, err)
		}
		addr, err := ids.AddressFromHex(body.Publisher)
		if err != nil {
			return fmt.Errorf("aggregator: decode publisher address: %w", err)
		}
		*e = Event{Kind: head.Type, EventID: head.EventID, Publisher: addr, AdUnit: body.AdUnit, AdSlot: body.AdSlot, Referrer: body.Referrer}
		return nil
	case KindClose:
		*e = Event{Kind: KindClose, EventID: head.EventID}
		return nil
	case KindUpdateTargeting:
		var body struct {
			TargetingRules pricing.Rules `json:"targetingRules"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return fmt.Errorf("aggregator: decode UPDATE_TARGETING event: %w", err)
		}
		*e = Event{Kind: KindUpdateTargeting, EventID: head.EventID, TargetingRules: body.TargetingRules}
		return nil
	case KindPay:
		var body struct {
			Payout map[string]string `json:"payout"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return fmt.Errorf("aggregator: decode PAY event: %w", err)
		}
		payout := make(map[ids.Address]unifiednum.UnifiedNum, len(body.Payout))
		for addrHex, amountStr := range body.Payout {
			addr, err := ids.AddressFromHex(addrHex)
			if err != nil {
				return fmt.Errorf("aggregator: decode PAY payout address: %w", err)
			}
			var amount unifiednum.UnifiedNum
			if err := json.Unmarshal([]byte(`"`+amountStr+`"`), &amount); err != nil {
				return fmt.Errorf("aggregator: decode PAY payout amount: %w", err)
			}
			payout[addr] = amount
		}
		*e = Event{Kind: KindPay, EventID: head.EventID, Payout: payout}
		return nil
	default:
		return fmt.Errorf("aggregator: unknown event type %q", head.Type)
	}
}
