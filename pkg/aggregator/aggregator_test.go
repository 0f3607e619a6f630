// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package aggregator

import (
	"testing"
	"time"

	"github.com/luxfi/outpace/pkg/accounting"
	"github.com/luxfi/outpace/pkg/campaign"
	"github.com/luxfi/outpace/pkg/channel"
	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/log"
	"github.com/luxfi/outpace/pkg/pricing"
	"github.com/luxfi/outpace/pkg/storage"
	"github.com/luxfi/outpace/pkg/unifiednum"
)

func mustWhole(t *testing.T, whole uint64) unifiednum.UnifiedNum {
	t.Helper()
	u, err := unifiednum.FromWhole(whole)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func addr(b byte) ids.Address {
	var a ids.Address
	a[len(a)-1] = b
	return a
}

func newTestAggregator(t *testing.T) (*Aggregator, *accounting.Store) {
	t.Helper()
	s, err := storage.NewStorage("memory", "")
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	store := accounting.NewStore(s)
	return New(store, log.NoOp(), 0), store
}

func newTestCampaign(t *testing.T, budget unifiednum.UnifiedNum, rules pricing.Rules) *campaign.Campaign {
	t.Helper()
	bounds := map[string]campaign.PriceBounds{
		campaign.EventTypeImpression: {Min: mustWhole(t, 1), Max: mustWhole(t, 1000)},
		campaign.EventTypeClick:      {Min: mustWhole(t, 5), Max: mustWhole(t, 1000)},
	}
	leader := accounting.ValidatorDesc{ID: addr(100), Fee: 0}
	follower := accounting.ValidatorDesc{ID: addr(101), Fee: 0}
	return campaign.New("camp-1", channel.ID{0x07}, addr(1), budget, leader, follower, bounds, rules, nil, campaign.Active{})
}

func TestInsertEventsAppliesImpressionToAccounting(t *testing.T) {
	agg, store := newTestAggregator(t)
	camp := newTestCampaign(t, mustWhole(t, 1000), nil)
	publisher := addr(2)

	req := InsertEventsRequest{Events: []Event{{Kind: KindImpression, Publisher: publisher}}}
	report, err := agg.InsertEvents(time.Now(), camp, req, AdSlotContext{}, false)
	if err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}
	if report.Accepted != 1 || len(report.Dropped) != 0 {
		t.Fatalf("expected one accepted event, got %+v", report)
	}

	acc, err := store.Fetch(camp.Channel)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if acc == nil {
		t.Fatal("expected Accounting to exist after an accepted event")
	}
	want := mustWhole(t, 1) // IMPRESSION's pricing bound minimum
	if acc.Balances.Earners[publisher] != want {
		t.Fatalf("expected publisher to earn %s, got %s", want, acc.Balances.Earners[publisher])
	}
	if acc.Balances.Spenders[camp.Creator] != want {
		t.Fatalf("expected creator to spend %s, got %s", want, acc.Balances.Spenders[camp.Creator])
	}
	if camp.Remaining() != mustWhole(t, 999) {
		t.Fatalf("expected remaining budget 999, got %s", camp.Remaining())
	}
}

func TestInsertEventsDropsOnTargetingShowFalse(t *testing.T) {
	agg, store := newTestAggregator(t)
	rules := pricing.Rules{pricing.FunctionRule(pricing.NewOnlyShowIf(pricing.ValueRule(pricing.BoolValue(false))))}
	camp := newTestCampaign(t, mustWhole(t, 1000), rules)
	publisher := addr(2)

	req := InsertEventsRequest{Events: []Event{{Kind: KindImpression, Publisher: publisher}}}
	report, err := agg.InsertEvents(time.Now(), camp, req, AdSlotContext{}, false)
	if err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}
	if report.Accepted != 0 || len(report.Dropped) != 1 {
		t.Fatalf("expected the event to be dropped, got %+v", report)
	}
	if camp.Remaining() != mustWhole(t, 1000) {
		t.Fatal("expected budget untouched when the event is dropped")
	}

	acc, err := store.Fetch(camp.Channel)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if acc != nil {
		t.Fatal("expected Accounting to remain unwritten when the event is dropped")
	}
}

func TestInsertEventsValidatorFeesAddToGrossSpend(t *testing.T) {
	agg, store := newTestAggregator(t)
	camp := newTestCampaign(t, mustWhole(t, 1000), nil)
	leaderFee, _ := unifiednum.FromWhole(2) // per 1000 events
	camp.Leader.Fee = leaderFee
	publisher := addr(2)

	req := InsertEventsRequest{Events: []Event{{Kind: KindImpression, Publisher: publisher}}}
	if _, err := agg.InsertEvents(time.Now(), camp, req, AdSlotContext{}, false); err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}

	acc, err := store.Fetch(camp.Channel)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if acc.Balances.Earners[camp.Leader.ID].IsZero() {
		t.Fatal("expected leader to earn a per-event fee share")
	}
}

func TestInsertEventsDropsWhenCampaignExhausted(t *testing.T) {
	agg, _ := newTestAggregator(t)
	// A nonzero but sub-minimum-price budget: the campaign is still open,
	// but can't afford even one Impression at its own pricing floor.
	tinyBudget, err := unifiednum.FromFloat64(0.5)
	if err != nil {
		t.Fatal(err)
	}
	camp := newTestCampaign(t, tinyBudget, nil)
	publisher := addr(2)

	req := InsertEventsRequest{Events: []Event{{Kind: KindImpression, Publisher: publisher}}}
	report, err := agg.InsertEvents(time.Now(), camp, req, AdSlotContext{}, false)
	if err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}
	if report.Accepted != 0 || len(report.Dropped) != 1 {
		t.Fatalf("expected the event to be dropped as exhausted, got %+v", report)
	}
	if report.Dropped[0].Reason != ErrCampaignExhausted.Error() {
		t.Fatalf("expected ErrCampaignExhausted reason, got %q", report.Dropped[0].Reason)
	}
}

func TestInsertEventsPayRequiresCreatorAuth(t *testing.T) {
	agg, store := newTestAggregator(t)
	camp := newTestCampaign(t, mustWhole(t, 1000), nil)
	earner := addr(3)

	req := InsertEventsRequest{Events: []Event{{Kind: KindPay, Payout: map[ids.Address]unifiednum.UnifiedNum{earner: mustWhole(t, 10)}}}}

	report, err := agg.InsertEvents(time.Now(), camp, req, AdSlotContext{}, false)
	if err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}
	if report.Accepted != 0 || report.Dropped[0].Reason != ErrNotCreator.Error() {
		t.Fatalf("expected Pay without creator auth to be dropped, got %+v", report)
	}

	report, err = agg.InsertEvents(time.Now(), camp, req, AdSlotContext{}, true)
	if err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}
	if report.Accepted != 1 {
		t.Fatalf("expected Pay with creator auth to be accepted, got %+v", report)
	}

	acc, err := store.Fetch(camp.Channel)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if acc.Balances.Earners[earner] != mustWhole(t, 10) {
		t.Fatalf("expected payout earner to receive 10, got %s", acc.Balances.Earners[earner])
	}
}

func TestInsertEventsRejectsDuplicateEventID(t *testing.T) {
	agg, store := newTestAggregator(t)
	camp := newTestCampaign(t, mustWhole(t, 1000), nil)
	publisher := addr(2)
	now := time.Now()

	req := InsertEventsRequest{Events: []Event{
		{Kind: KindImpression, EventID: "req-1", Publisher: publisher},
	}}
	report, err := agg.InsertEvents(now, camp, req, AdSlotContext{}, false)
	if err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}
	if report.Accepted != 1 {
		t.Fatalf("expected the first submission to be accepted, got %+v", report)
	}

	report, err = agg.InsertEvents(now.Add(time.Second), camp, req, AdSlotContext{}, false)
	if err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}
	if report.Accepted != 0 || len(report.Dropped) != 1 {
		t.Fatalf("expected the replayed event to be dropped, got %+v", report)
	}
	if report.Dropped[0].Reason != errDuplicateEvent.Error() {
		t.Fatalf("expected a duplicate-event-id reason, got %q", report.Dropped[0].Reason)
	}

	acc, err := store.Fetch(camp.Channel)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if acc.Balances.Earners[publisher] != mustWhole(t, 1) {
		t.Fatalf("expected the replay to leave Accounting untouched, got %s", acc.Balances.Earners[publisher])
	}
}

func TestInsertEventsWithoutEventIDIsNeverDeduplicated(t *testing.T) {
	agg, store := newTestAggregator(t)
	camp := newTestCampaign(t, mustWhole(t, 1000), nil)
	publisher := addr(2)

	req := InsertEventsRequest{Events: []Event{{Kind: KindImpression, Publisher: publisher}}}
	if _, err := agg.InsertEvents(time.Now(), camp, req, AdSlotContext{}, false); err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}
	report, err := agg.InsertEvents(time.Now(), camp, req, AdSlotContext{}, false)
	if err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}
	if report.Accepted != 1 {
		t.Fatalf("expected a second submission with no event id to be accepted again, got %+v", report)
	}

	acc, err := store.Fetch(camp.Channel)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if acc.Balances.Earners[publisher] != mustWhole(t, 2) {
		t.Fatalf("expected both submissions to land, got %s", acc.Balances.Earners[publisher])
	}
}

func TestInsertEventsCloseAndUpdateTargeting(t *testing.T) {
	agg, _ := newTestAggregator(t)
	camp := newTestCampaign(t, mustWhole(t, 1000), nil)

	newRules := pricing.Rules{pricing.FunctionRule(pricing.NewOnlyShowIf(pricing.ValueRule(pricing.BoolValue(false))))}
	req := InsertEventsRequest{Events: []Event{
		{Kind: KindUpdateTargeting, TargetingRules: newRules},
		{Kind: KindClose},
	}}
	report, err := agg.InsertEvents(time.Now(), camp, req, AdSlotContext{}, false)
	if err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}
	if report.Accepted != 2 {
		t.Fatalf("expected both metadata events accepted, got %+v", report)
	}
	if len(camp.TargetingRules) != 1 {
		t.Fatal("expected targeting rules to be replaced")
	}
	if camp.IsOpen(time.Now()) {
		t.Fatal("expected campaign to be closed")
	}
}
