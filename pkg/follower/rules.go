// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package follower implements the Follower Tick: validating a leader's
// NewState against local Accounting, checking monotonic transition and
// health, and emitting ApproveState or RejectState.
package follower

import (
	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/unifiednum"
)

// IsValidTransition reports whether next is a valid advance over prev under
// a total cap: every address present in prev must not decrease in next,
// the overall sum must not decrease, and the overall sum must not exceed
// cap. ok is false on uint64 overflow while summing either map.
func IsValidTransition(cap unifiednum.UnifiedNum, prev, next map[ids.Address]unifiednum.UnifiedNum) (valid bool, ok bool) {
	sumPrev, ok := sumValues(prev)
	if !ok {
		return false, false
	}
	sumNext, ok := sumValues(next)
	if !ok {
		return false, false
	}
	if sumNext.Cmp(sumPrev) < 0 {
		return false, true
	}
	if sumNext.Cmp(cap) > 0 {
		return false, true
	}
	for addr, v := range prev {
		if next[addr].Cmp(v) < 0 {
			return false, true
		}
	}
	return true, true
}

// GetHealth scores how closely approved tracks ours, in [0, 1000]: 1000
// means approved is at least as large as ours on every address we hold (no
// shortfall); below that it is the shortfall ratio against our own total,
// saturating at 0. ok is false on uint64 overflow while summing ours.
//
// original_source/validator_worker/src/core/follower_rules.rs's get_health
// computes this shortfall ratio against the OTHER side's diff (earners
// shortfall divided by spenders shortfall) rather than against the side's
// own sum — a shape that only makes sense called once over a whole
// Balances, not once per side as the leader/follower tick call sites do.
// Normalizing against the side's own sum keeps the same "1000 minus
// shortfall ratio, saturating at 0" behavior without that cross-side
// reference.
func GetHealth(ours, approved map[ids.Address]unifiednum.UnifiedNum) (health uint64, ok bool) {
	sumOurs, ok := sumValues(ours)
	if !ok {
		return 0, false
	}
	if sumOurs.IsZero() {
		return 1000, true
	}

	var sumMins unifiednum.UnifiedNum
	for addr, v := range ours {
		m := unifiednum.Min(v, approved[addr])
		var addOk bool
		sumMins, addOk = sumMins.Add(m)
		if !addOk {
			return 0, false
		}
	}
	if sumMins.Cmp(sumOurs) >= 0 {
		return 1000, true
	}

	diff, ok := sumOurs.Sub(sumMins)
	if !ok {
		return 0, false
	}
	penalty, err := diff.MulDiv(1000, sumOurs.Uint64())
	if err != nil {
		return 0, true
	}
	if penalty.Uint64() >= 1000 {
		return 0, true
	}
	return 1000 - penalty.Uint64(), true
}

func sumValues(m map[ids.Address]unifiednum.UnifiedNum) (unifiednum.UnifiedNum, bool) {
	var total unifiednum.UnifiedNum
	var ok bool
	for _, v := range m {
		total, ok = total.Add(v)
		if !ok {
			return 0, false
		}
	}
	return total, true
}
