// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package accounting

import (
	"testing"

	"github.com/luxfi/outpace/pkg/balances"
	"github.com/luxfi/outpace/pkg/channel"
	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/storage"
	"github.com/luxfi/outpace/pkg/unifiednum"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := storage.NewStorage("memory", "")
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	return NewStore(s)
}

func addr(b byte) ids.Address {
	var a ids.Address
	a[len(a)-1] = b
	return a
}

func TestFetchMissingChannelReturnsNil(t *testing.T) {
	store := newTestStore(t)
	acc, err := store.Fetch(channel.ID{0x01})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if acc != nil {
		t.Fatal("expected nil Accounting for an unwritten channel")
	}
}

func TestUpdateDeltaInsertsThenAdds(t *testing.T) {
	store := newTestStore(t)
	chID := channel.ID{0x02}
	spender, earner := addr(1), addr(2)

	amount, _ := unifiednum.FromWhole(5)
	delta := balances.New()
	if err := delta.Spend(spender, earner, amount); err != nil {
		t.Fatalf("Spend: %v", err)
	}

	earners, spenders, err := store.UpdateDelta(chID, delta)
	if err != nil {
		t.Fatalf("UpdateDelta: %v", err)
	}
	if len(earners) != 1 || len(spenders) != 1 {
		t.Fatalf("expected one earner and one spender row, got %d/%d", len(earners), len(spenders))
	}
	if earners[0].Amount != amount || spenders[0].Amount != amount {
		t.Fatalf("expected row amount %s, got earner=%s spender=%s", amount, earners[0].Amount, spenders[0].Amount)
	}
	if earners[0].UpdatedAt != nil {
		t.Fatal("first insert should not have an UpdatedAt")
	}

	// Apply the same delta again: the amounts should now add, not replace.
	earners2, spenders2, err := store.UpdateDelta(chID, delta)
	if err != nil {
		t.Fatalf("UpdateDelta (2nd): %v", err)
	}
	want, _ := amount.Add(amount)
	if earners2[0].Amount != want || spenders2[0].Amount != want {
		t.Fatalf("expected accumulated amount %s, got earner=%s spender=%s", want, earners2[0].Amount, spenders2[0].Amount)
	}
	if earners2[0].UpdatedAt == nil {
		t.Fatal("second update should set UpdatedAt")
	}

	acc, err := store.Fetch(chID)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if acc == nil {
		t.Fatal("expected Accounting to exist after UpdateDelta")
	}
	if acc.Balances.Earners[earner] != want || acc.Balances.Spenders[spender] != want {
		t.Fatalf("unexpected fetched balances: %+v", acc.Balances)
	}
	if !rowsEqual(earners2[0], Row{ChannelID: chID, Side: SideEarner, Address: earner, Amount: want}) {
		t.Fatal("rowsEqual sanity check failed")
	}
}

func TestApplyFeesViewZeroFeesPreservesBalances(t *testing.T) {
	bal := balances.New()
	a, b := addr(1), addr(2)
	bal.Earners[a], _ = unifiednum.FromWhole(1001)
	bal.Earners[b], _ = unifiednum.FromWhole(3124)

	bal.Spenders[a], _ = unifiednum.FromWhole(1001)
	bal.Spenders[b], _ = unifiednum.FromWhole(3124)

	deposit, _ := unifiednum.FromWhole(100_000)
	leader := ValidatorDesc{ID: addr(10), Fee: 0}
	follower := ValidatorDesc{ID: addr(11), Fee: 0}

	out, err := ApplyFeesView(bal, deposit, []ValidatorDesc{leader, follower})
	if err != nil {
		t.Fatalf("ApplyFeesView: %v", err)
	}
	if out.Earners[a] != bal.Earners[a] || out.Earners[b] != bal.Earners[b] {
		t.Fatalf("expected unchanged earners with zero fees, got %+v", out.Earners)
	}
}

func TestApplyFeesViewDistributesFeeProportionally(t *testing.T) {
	bal := balances.New()
	a, b := addr(1), addr(2)
	spenderA, spenderB := addr(3), addr(4)
	bal.Earners[a], _ = unifiednum.FromWhole(1000)
	bal.Earners[b], _ = unifiednum.FromWhole(1200)
	bal.Spenders[spenderA], _ = unifiednum.FromWhole(1000)
	bal.Spenders[spenderB], _ = unifiednum.FromWhole(1200)

	deposit, _ := unifiednum.FromWhole(10_000)
	leaderFee, _ := unifiednum.FromWhole(50)
	followerFee, _ := unifiednum.FromWhole(50)
	leader := ValidatorDesc{ID: addr(10), Fee: leaderFee}
	follower := ValidatorDesc{ID: addr(11), Fee: followerFee}

	out, err := ApplyFeesView(bal, deposit, []ValidatorDesc{leader, follower})
	if err != nil {
		t.Fatalf("ApplyFeesView: %v", err)
	}
	if out.Earners[leader.ID].IsZero() || out.Earners[follower.ID].IsZero() {
		t.Fatal("expected both validators to receive a nonzero fee")
	}
	if out.Earners[a] >= bal.Earners[a] {
		t.Fatal("expected earner a's balance to be scaled down by the fee ratio")
	}
}

func TestApplyFeesViewErrorsWhenFeesExceedDeposit(t *testing.T) {
	bal := balances.New()
	a := addr(1)
	bal.Earners[a], _ = unifiednum.FromWhole(10)
	bal.Spenders[a], _ = unifiednum.FromWhole(10)

	deposit, _ := unifiednum.FromWhole(1_000)
	bigFee, _ := unifiednum.FromWhole(600)
	leader := ValidatorDesc{ID: addr(10), Fee: bigFee}
	follower := ValidatorDesc{ID: addr(11), Fee: bigFee}

	_, err := ApplyFeesView(bal, deposit, []ValidatorDesc{leader, follower})
	if err != ErrFeeConstraintViolated {
		t.Fatalf("expected ErrFeeConstraintViolated, got %v", err)
	}
}
