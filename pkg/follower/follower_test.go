// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package follower

import (
	"context"
	"testing"
	"time"

	"github.com/luxfi/outpace/pkg/accounting"
	"github.com/luxfi/outpace/pkg/adapter"
	"github.com/luxfi/outpace/pkg/balances"
	"github.com/luxfi/outpace/pkg/channel"
	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/log"
	"github.com/luxfi/outpace/pkg/propagation"
	"github.com/luxfi/outpace/pkg/storage"
	"github.com/luxfi/outpace/pkg/unifiednum"
	"github.com/luxfi/outpace/pkg/vmsg"
)

type fakeFetcher struct {
	envelope *vmsg.Envelope
	hasMsg   bool
	err      error
}

func (f *fakeFetcher) GetLatest(_ context.Context, _ propagation.Validator, _ channel.ID, _ ids.Address, _ ...vmsg.Kind) (*vmsg.Envelope, bool, error) {
	return f.envelope, f.hasMsg, f.err
}

type fakeProp struct {
	calls [][]vmsg.Message
}

func (f *fakeProp) Propagate(_ context.Context, _ channel.ID, to []propagation.Validator, msgs []vmsg.Message) []propagation.Result {
	f.calls = append(f.calls, msgs)
	results := make([]propagation.Result, len(to))
	for i, v := range to {
		results[i] = propagation.Result{Validator: v.ID}
	}
	return results
}

func whole(t *testing.T, v uint64) unifiednum.UnifiedNum {
	t.Helper()
	u, err := unifiednum.FromWhole(v)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func newTestFollower(t *testing.T, fetcher Fetcher) (*Follower, *accounting.Store, *adapter.Memory, *fakeProp) {
	t.Helper()
	s, err := storage.NewStorage("memory", "")
	if err != nil {
		t.Fatal(err)
	}
	accounts := accounting.NewStore(s)
	msgStore := vmsg.NewStore(s)

	ad, err := adapter.NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	if err := ad.Unlock(context.Background(), ""); err != nil {
		t.Fatal(err)
	}

	prop := &fakeProp{}
	cfg := Config{HealthUnsignablePromilles: 750, HealthThresholdPromilles: 950}
	return New(accounts, msgStore, ad, fetcher, prop, log.NoOp(), cfg), accounts, ad, prop
}

func leaderContext(leaderAddr, followerAddr ids.Address) channel.Context {
	ch := channel.Channel{Leader: leaderAddr, Follower: followerAddr, Token: ids.Address{3}}
	return channel.Context{Channel: ch, Token: channel.TokenInfo{Precision: 8}}
}

func TestTickNoNewStateOnlyHeartbeats(t *testing.T) {
	fetcher := &fakeFetcher{hasMsg: false}
	f, _, ad, prop := newTestFollower(t, fetcher)

	leaderAdapter, err := adapter.NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	chContext := leaderContext(leaderAdapter.Whoami(), ad.Whoami())
	leader := propagation.Validator{ID: leaderAdapter.Whoami(), URL: "http://leader"}

	status, err := f.Tick(context.Background(), chContext, leader, whole(t, 1_000_000), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if status.Approve.Outcome != NotTriggered {
		t.Fatalf("expected NotTriggered, got %v", status.Approve.Outcome)
	}
	if len(prop.calls) != 1 {
		t.Fatalf("expected one propagation call (heartbeat only), got %d", len(prop.calls))
	}
}

func TestTickApprovesValidNewState(t *testing.T) {
	leaderAdapter, err := adapter.NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	if err := leaderAdapter.Unlock(context.Background(), ""); err != nil {
		t.Fatal(err)
	}

	publisher, advertiser := ids.Address{9}, ids.Address{8}
	bal := balances.New()
	if err := bal.Spend(advertiser, publisher, whole(t, 100)); err != nil {
		t.Fatal(err)
	}

	f, accounts, ad, prop := newTestFollower(t, nil)
	chContext := leaderContext(leaderAdapter.Whoami(), ad.Whoami())
	chID := chContext.Channel.ID()

	if _, _, err := accounts.UpdateDelta(chID, bal); err != nil {
		t.Fatal(err)
	}

	stateRoot, err := bal.Encode(chID, chContext.Token.Precision)
	if err != nil {
		t.Fatal(err)
	}
	sig, err := leaderAdapter.Sign(context.Background(), stateRoot)
	if err != nil {
		t.Fatal(err)
	}
	newState := vmsg.NewState{StateRoot: stateRoot, Signature: sig, Balances: balances.IntoUnchecked(bal)}
	f.fetcher = &fakeFetcher{envelope: &vmsg.Envelope{Message: newState}, hasMsg: true}

	leader := propagation.Validator{ID: leaderAdapter.Whoami(), URL: "http://leader"}
	status, err := f.Tick(context.Background(), chContext, leader, whole(t, 1_000_000), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if status.Approve.Outcome != Approved {
		t.Fatalf("expected Approved, got %v (reason=%q)", status.Approve.Outcome, status.Approve.Reason)
	}
	if len(prop.calls) != 2 {
		t.Fatalf("expected ApproveState + heartbeat propagation calls, got %d", len(prop.calls))
	}
}

func TestTickRejectsBadRootHash(t *testing.T) {
	leaderAdapter, err := adapter.NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	if err := leaderAdapter.Unlock(context.Background(), ""); err != nil {
		t.Fatal(err)
	}

	publisher, advertiser := ids.Address{9}, ids.Address{8}
	bal := balances.New()
	if err := bal.Spend(advertiser, publisher, whole(t, 100)); err != nil {
		t.Fatal(err)
	}

	f, accounts, ad, prop := newTestFollower(t, nil)
	chContext := leaderContext(leaderAdapter.Whoami(), ad.Whoami())
	chID := chContext.Channel.ID()
	if _, _, err := accounts.UpdateDelta(chID, bal); err != nil {
		t.Fatal(err)
	}

	var wrongRoot [32]byte
	wrongRoot[0] = 0xff
	sig, err := leaderAdapter.Sign(context.Background(), wrongRoot)
	if err != nil {
		t.Fatal(err)
	}
	newState := vmsg.NewState{StateRoot: wrongRoot, Signature: sig, Balances: balances.IntoUnchecked(bal)}
	f.fetcher = &fakeFetcher{envelope: &vmsg.Envelope{Message: newState}, hasMsg: true}

	leader := propagation.Validator{ID: leaderAdapter.Whoami(), URL: "http://leader"}
	status, err := f.Tick(context.Background(), chContext, leader, whole(t, 1_000_000), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if status.Approve.Outcome != Rejected {
		t.Fatalf("expected Rejected, got %v", status.Approve.Outcome)
	}
	if status.Approve.Reason != vmsg.ReasonInvalidRootHash {
		t.Fatalf("expected %q, got %q", vmsg.ReasonInvalidRootHash, status.Approve.Reason)
	}
	if len(prop.calls) != 2 {
		t.Fatalf("expected RejectState + heartbeat propagation calls, got %d", len(prop.calls))
	}
}

func TestTickSkipsAlreadyRespondedState(t *testing.T) {
	leaderAdapter, err := adapter.NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	if err := leaderAdapter.Unlock(context.Background(), ""); err != nil {
		t.Fatal(err)
	}

	publisher, advertiser := ids.Address{9}, ids.Address{8}
	bal := balances.New()
	if err := bal.Spend(advertiser, publisher, whole(t, 100)); err != nil {
		t.Fatal(err)
	}

	f, accounts, ad, prop := newTestFollower(t, nil)
	chContext := leaderContext(leaderAdapter.Whoami(), ad.Whoami())
	chID := chContext.Channel.ID()
	if _, _, err := accounts.UpdateDelta(chID, bal); err != nil {
		t.Fatal(err)
	}

	stateRoot, err := bal.Encode(chID, chContext.Token.Precision)
	if err != nil {
		t.Fatal(err)
	}
	sig, err := leaderAdapter.Sign(context.Background(), stateRoot)
	if err != nil {
		t.Fatal(err)
	}
	newState := vmsg.NewState{StateRoot: stateRoot, Signature: sig, Balances: balances.IntoUnchecked(bal)}
	f.fetcher = &fakeFetcher{envelope: &vmsg.Envelope{Message: newState}, hasMsg: true}

	leader := propagation.Validator{ID: leaderAdapter.Whoami(), URL: "http://leader"}
	now := time.Now()
	if _, err := f.Tick(context.Background(), chContext, leader, whole(t, 1_000_000), now); err != nil {
		t.Fatal(err)
	}

	status, err := f.Tick(context.Background(), chContext, leader, whole(t, 1_000_000), now)
	if err != nil {
		t.Fatal(err)
	}
	if status.Approve.Outcome != NotTriggered {
		t.Fatalf("expected NotTriggered on a re-tick of the same state root, got %v", status.Approve.Outcome)
	}
}
