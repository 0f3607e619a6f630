// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package aggregator

import (
	"errors"
	"sync"
	"time"

	"github.com/luxfi/outpace/pkg/accounting"
	"github.com/luxfi/outpace/pkg/balances"
	"github.com/luxfi/outpace/pkg/campaign"
	"github.com/luxfi/outpace/pkg/channel"
	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/log"
	"github.com/luxfi/outpace/pkg/pricing"
	"github.com/luxfi/outpace/pkg/unifiednum"
)

var (
	// ErrCampaignExhausted is dropped-event-only: it never aborts the batch,
	// it only marks the one event that couldn't be afforded.
	ErrCampaignExhausted = errors.New("aggregator: campaign exhausted")
	// ErrNotCreator is returned for a Pay event submitted by anyone other
	// than the campaign's creator.
	ErrNotCreator = errors.New("aggregator: pay event requires campaign creator auth")
	// errDuplicateEvent is dropped-event-only, mirroring the teacher's
	// "reservation already exists" rejection for a reused idempotency key.
	errDuplicateEvent = errors.New("aggregator: duplicate event id")
)

// eventDedupTTL is the replay window a caller-supplied EventID is
// remembered for. An EventID resubmitted after it expires is treated as a
// new event; this bounds the dedup cache's memory rather than keeping
// every id forever.
const eventDedupTTL = 10 * time.Minute

// Dropped records why one event in a batch didn't reach Accounting. A
// dropped event is not an error for the request as a whole — the batch
// flow silently skips it and continues with the rest of the batch.
type Dropped struct {
	Index  int
	Reason string
}

// Report is the outcome of one InsertEvents call.
type Report struct {
	Accepted int
	Dropped  []Dropped
}

// AdSlotContext is the publisher-side targeting input for one event: the ad
// slot's own targeting rules (evaluated after the campaign's) and the
// pricing.AdSlot scope fields. Ad slot storage/lookup lives outside this
// package — there is no dedicated ad slot store component here, so callers
// resolve it (e.g. from a sentry-side slot registry) before calling
// InsertEvents.
type AdSlotContext struct {
	Rules pricing.Rules
	Slot  pricing.AdSlot
}

// Aggregator prices and applies Impression/Click/Pay events against a
// channel's Accounting, serialized per channel so that a campaign's budget
// decrement and the channel's Accounting delta stay linearizable with
// respect to concurrent requests on the same channel.
type Aggregator struct {
	store                    *accounting.Store
	log                      log.Logger
	globalMinImpressionPrice unifiednum.UnifiedNum

	locksMu sync.Mutex
	locks   map[channel.ID]*sync.Mutex

	dedupMu sync.Mutex
	dedup   map[channel.ID]map[string]time.Time
}

// New returns an Aggregator backed by store. globalMinImpressionPrice is the
// floor below which an Impression/Click is dropped even if its campaign's
// own pricing bounds would allow a lower price.
func New(store *accounting.Store, logger log.Logger, globalMinImpressionPrice unifiednum.UnifiedNum) *Aggregator {
	return &Aggregator{
		store:                    store,
		log:                      logger,
		globalMinImpressionPrice: globalMinImpressionPrice,
		locks:                    make(map[channel.ID]*sync.Mutex),
		dedup:                    make(map[channel.ID]map[string]time.Time),
	}
}

func (a *Aggregator) lockFor(ch channel.ID) *sync.Mutex {
	a.locksMu.Lock()
	defer a.locksMu.Unlock()
	l, ok := a.locks[ch]
	if !ok {
		l = &sync.Mutex{}
		a.locks[ch] = l
	}
	return l
}

// seen reports whether eventID has already been recorded for ch within
// eventDedupTTL, and records it if not. An empty eventID is never
// deduplicated. Expired entries for ch are swept on every call so the
// cache doesn't grow unbounded across a long-lived channel.
func (a *Aggregator) seen(ch channel.ID, eventID string, now time.Time) bool {
	if eventID == "" {
		return false
	}

	a.dedupMu.Lock()
	defer a.dedupMu.Unlock()

	ids, ok := a.dedup[ch]
	if !ok {
		ids = make(map[string]time.Time)
		a.dedup[ch] = ids
	}
	for id, expires := range ids {
		if now.After(expires) {
			delete(ids, id)
		}
	}

	if expires, ok := ids[eventID]; ok && now.Before(expires) {
		return true
	}
	ids[eventID] = now.Add(eventDedupTTL)
	return false
}

// InsertEvents applies one batch of events to camp/the channel's
// Accounting, one event at a time. isCreator gates Pay events; session and
// adSlot feed the Pricing DSL's Global/AdSlot scopes.
func (a *Aggregator) InsertEvents(now time.Time, camp *campaign.Campaign, req InsertEventsRequest, adSlot AdSlotContext, isCreator bool) (Report, error) {
	lock := a.lockFor(camp.Channel)
	lock.Lock()
	defer lock.Unlock()

	var report Report
	for i, ev := range req.Events {
		if a.seen(camp.Channel, ev.EventID, now) {
			report.Dropped = append(report.Dropped, Dropped{Index: i, Reason: errDuplicateEvent.Error()})
			continue
		}
		switch ev.Kind {
		case KindImpression, KindClick:
			if err := a.applyPriced(now, camp, ev, req.Session, adSlot); err != nil {
				report.Dropped = append(report.Dropped, Dropped{Index: i, Reason: err.Error()})
				continue
			}
			report.Accepted++
		case KindPay:
			if !isCreator {
				report.Dropped = append(report.Dropped, Dropped{Index: i, Reason: ErrNotCreator.Error()})
				continue
			}
			if err := a.applyPay(now, camp, ev); err != nil {
				report.Dropped = append(report.Dropped, Dropped{Index: i, Reason: err.Error()})
				continue
			}
			report.Accepted++
		case KindUpdateTargeting:
			camp.UpdateTargeting(ev.TargetingRules)
			report.Accepted++
		case KindClose:
			camp.Close()
			report.Accepted++
		}
	}
	return report, nil
}

// applyPriced prices and applies a single Impression/Click event: resolve
// bounds, evaluate the pricing DSL, clamp to bounds, charge the gross spend
// against the campaign's remaining budget (an event the budget cannot cover
// is dropped with ErrCampaignExhausted), then apply the resulting delta to
// Accounting.
func (a *Aggregator) applyPriced(now time.Time, camp *campaign.Campaign, ev Event, session Session, adSlot AdSlotContext) error {
	eventType := string(ev.Kind)
	bounds, err := camp.PriceBoundsFor(eventType)
	if err != nil {
		return err
	}

	input := a.buildInput(camp, ev, session, adSlot)
	output := pricing.NewOutput(eventType, bounds.Min)

	pricing.EvalWithCallback(camp.TargetingRules, input, output, func(_ pricing.Rule, evalErr error) {
		log.Debugf(a.log, "pricing rule error", log.String("event_type", eventType), log.Error(evalErr))
	})
	if !output.Show {
		return errDropped("targeting rules set show=false")
	}
	pricing.EvalWithCallback(adSlot.Rules, input, output, func(_ pricing.Rule, evalErr error) {
		log.Debugf(a.log, "ad slot rule error", log.String("event_type", eventType), log.Error(evalErr))
	})
	if !output.Show {
		return errDropped("ad slot rules set show=false")
	}

	price := bounds.Clamp(output.Price[eventType])
	if price.Cmp(a.globalMinImpressionPrice) < 0 {
		return errDropped("price below global minimum")
	}

	grossSpend, perValidatorFee, err := computeGrossSpend(price, camp.Leader, camp.Follower)
	if err != nil {
		return err
	}

	if err := camp.Spend(now, grossSpend); err != nil {
		if errors.Is(err, campaign.ErrExhausted) {
			return ErrCampaignExhausted
		}
		return err
	}

	delta := balances.New()
	if err := delta.Spend(camp.Creator, ev.Publisher, price); err != nil {
		return err
	}
	if !perValidatorFee[0].IsZero() {
		if err := delta.Spend(camp.Creator, camp.Leader.ID, perValidatorFee[0]); err != nil {
			return err
		}
	}
	if !perValidatorFee[1].IsZero() {
		if err := delta.Spend(camp.Creator, camp.Follower.ID, perValidatorFee[1]); err != nil {
			return err
		}
	}

	if _, _, err := a.store.UpdateDelta(camp.Channel, delta); err != nil {
		return err
	}
	return nil
}

// applyPay merges a caller-supplied earner map into Accounting, subject to
// the same remaining-budget check as a priced event.
func (a *Aggregator) applyPay(now time.Time, camp *campaign.Campaign, ev Event) error {
	var total unifiednum.UnifiedNum
	var ok bool
	for _, amount := range ev.Payout {
		if total, ok = total.Add(amount); !ok {
			return balances.ErrOverflow
		}
	}
	if err := camp.Spend(now, total); err != nil {
		return err
	}

	delta := balances.New()
	for addr, amount := range ev.Payout {
		if err := delta.Spend(camp.Creator, addr, amount); err != nil {
			return err
		}
	}
	_, _, err := a.store.UpdateDelta(camp.Channel, delta)
	return err
}

// computeGrossSpend folds each validator's per-1000-event fee into price.
// desc.Fee is a UnifiedNum representing fee per 1000 events; the per-event
// fee is desc.Fee / 1000.
func computeGrossSpend(price unifiednum.UnifiedNum, leader, follower accounting.ValidatorDesc) (unifiednum.UnifiedNum, [2]unifiednum.UnifiedNum, error) {
	leaderFee, err := leader.Fee.MulDiv(1, 1000)
	if err != nil {
		return 0, [2]unifiednum.UnifiedNum{}, err
	}
	followerFee, err := follower.Fee.MulDiv(1, 1000)
	if err != nil {
		return 0, [2]unifiednum.UnifiedNum{}, err
	}

	gross, ok := price.Add(leaderFee)
	if !ok {
		return 0, [2]unifiednum.UnifiedNum{}, balances.ErrOverflow
	}
	gross, ok = gross.Add(followerFee)
	if !ok {
		return 0, [2]unifiednum.UnifiedNum{}, balances.ErrOverflow
	}

	return gross, [2]unifiednum.UnifiedNum{leaderFee, followerFee}, nil
}

func (a *Aggregator) buildInput(camp *campaign.Campaign, ev Event, session Session, adSlot AdSlotContext) *pricing.Input {
	acc, err := a.store.Fetch(camp.Channel)
	var bal *pricing.Balances
	if err == nil && acc != nil {
		bal = &pricing.Balances{
			CampaignTotalSpent:          sumValues(acc.Balances.Spenders),
			PublisherEarnedFromCampaign: acc.Balances.Earners[ev.Publisher],
		}
	}

	return &pricing.Input{
		Global: pricing.Global{
			AdSlotID:          stringOrEmpty(ev.AdSlot),
			PublisherID:       ev.Publisher,
			Country:           session.Country,
			EventType:         string(ev.Kind),
			SecondsSinceEpoch: 0,
		},
		Channel: &pricing.Channel{
			AdvertiserID:   camp.Creator,
			CampaignID:     camp.Channel,
			CampaignBudget: camp.Budget,
		},
		Balances: bal,
		AdUnitID: ev.AdUnit,
		AdSlot:   &adSlot.Slot,
	}
}

func sumValues(m map[ids.Address]unifiednum.UnifiedNum) unifiednum.UnifiedNum {
	var total unifiednum.UnifiedNum
	for _, v := range m {
		total, _ = total.Add(v)
	}
	return total
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type droppedError string

func (e droppedError) Error() string { return string(e) }

func errDropped(reason string) error { return droppedError(reason) }
