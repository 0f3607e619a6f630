// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pricing

import (
	"github.com/luxfi/outpace/pkg/channel"
	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/unifiednum"
)

// Global is the scope of fields accessible to every rule: the event and its
// ad slot/session context. This server-side evaluator runs during event
// aggregation rather than in an ad-rendering client, so it carries no
// AdView scope (that scope's fields — e.g. secondsSinceCampaignImpression,
// navigatorLanguage — describe client-side render state the validator never
// observes).
type Global struct {
	AdSlotID               string
	AdSlotType             string
	PublisherID            ids.Address
	Country                *string
	EventType              string
	SecondsSinceEpoch      int64
	UserAgentOS            *string
	UserAgentBrowserFamily *string
}

// Channel is the campaign-dependent scope: fields describing the channel the
// event is being priced against.
type Channel struct {
	AdvertiserID            ids.Address
	CampaignID              channel.ID
	CampaignSecondsActive   uint64
	CampaignSecondsDuration uint64
	CampaignBudget          unifiednum.UnifiedNum
	EventMinPrice           *unifiednum.UnifiedNum
	EventMaxPrice           *unifiednum.UnifiedNum
}

// Balances is the campaign-dependent scope exposing a live view of the
// channel's accounting.
type Balances struct {
	CampaignTotalSpent          unifiednum.UnifiedNum
	PublisherEarnedFromCampaign unifiednum.UnifiedNum
}

// AdSlot is the scope describing the publisher's ad slot being filled.
type AdSlot struct {
	Categories []string
	Hostname   string
	AlexaRank  *float64
}

// Input is the full set of scopes a rule may read from via get(key). Pointer
// fields are scopes that may be absent depending on which stage of
// aggregation is running (e.g. Balances is only populated once the
// channel's Accounting snapshot has been loaded).
type Input struct {
	Global   Global
	Channel  *Channel
	Balances *Balances
	AdUnitID *string
	AdSlot   *AdSlot
}

// TryGet resolves a get(key) field name against Input's scopes, returning
// ErrUnknownVariable if key names no known field or the scope it belongs to
// is absent on this Input.
func (in *Input) TryGet(key string) (Value, error) {
	switch key {
	case "adSlotId":
		return StringValue(in.Global.AdSlotID), nil
	case "adSlotType":
		return StringValue(in.Global.AdSlotType), nil
	case "publisherId":
		return StringValue(in.Global.PublisherID.String()), nil
	case "country":
		if in.Global.Country == nil {
			return Value{}, ErrUnknownVariable
		}
		return StringValue(*in.Global.Country), nil
	case "eventType":
		return StringValue(in.Global.EventType), nil
	case "secondsSinceEpoch":
		return NumberValue(NewNumberFromInt64(in.Global.SecondsSinceEpoch)), nil
	case "userAgentOS":
		if in.Global.UserAgentOS == nil {
			return Value{}, ErrUnknownVariable
		}
		return StringValue(*in.Global.UserAgentOS), nil
	case "userAgentBrowserFamily":
		if in.Global.UserAgentBrowserFamily == nil {
			return Value{}, ErrUnknownVariable
		}
		return StringValue(*in.Global.UserAgentBrowserFamily), nil
	case "adUnitId":
		if in.AdUnitID == nil {
			return Value{}, ErrUnknownVariable
		}
		return StringValue(*in.AdUnitID), nil
	}

	if in.Channel != nil {
		if v, ok := in.Channel.get(key); ok {
			return v, nil
		}
	}
	if in.Balances != nil {
		if v, ok := in.Balances.get(key); ok {
			return v, nil
		}
	}
	if in.AdSlot != nil {
		if v, ok := in.AdSlot.get(key); ok {
			return v, nil
		}
	}

	return Value{}, ErrUnknownVariable
}

func (c *Channel) get(key string) (Value, bool) {
	switch key {
	case "advertiserId":
		return StringValue(c.AdvertiserID.String()), true
	case "campaignId":
		return StringValue(c.CampaignID.String()), true
	case "campaignSecondsActive":
		return Uint64Value(c.CampaignSecondsActive), true
	case "campaignSecondsDuration":
		return Uint64Value(c.CampaignSecondsDuration), true
	case "campaignBudget":
		return UnifiedNumValue(c.CampaignBudget), true
	case "eventMinPrice":
		if c.EventMinPrice == nil {
			return Value{}, false
		}
		return UnifiedNumValue(*c.EventMinPrice), true
	case "eventMaxPrice":
		if c.EventMaxPrice == nil {
			return Value{}, false
		}
		return UnifiedNumValue(*c.EventMaxPrice), true
	default:
		return Value{}, false
	}
}

func (b *Balances) get(key string) (Value, bool) {
	switch key {
	case "campaignTotalSpent":
		return UnifiedNumValue(b.CampaignTotalSpent), true
	case "publisherEarnedFromCampaign":
		return UnifiedNumValue(b.PublisherEarnedFromCampaign), true
	default:
		return Value{}, false
	}
}

func (a *AdSlot) get(key string) (Value, bool) {
	switch key {
	case "adSlot.categories":
		vals := make([]Value, len(a.Categories))
		for i, c := range a.Categories {
			vals[i] = StringValue(c)
		}
		return ArrayValue(vals), true
	case "adSlot.hostname":
		return StringValue(a.Hostname), true
	case "adSlot.alexaRank":
		if a.AlexaRank == nil {
			return Value{}, false
		}
		return NumberValue(NewNumberFromFloat64(*a.AlexaRank)), true
	default:
		return Value{}, false
	}
}
