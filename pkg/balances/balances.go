// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package balances implements the per-channel earners/spenders ledger and
// its Merkle state-root encoding. Unchecked is the shape received over the
// wire in a NewState message; Checked is the shape guaranteed to satisfy the
// zero-sum conservation invariant (I1). Spend is the sole primitive that may
// mutate a Checked balance; Check is the sole way to obtain one from an
// Unchecked balance.
package balances

import (
	"errors"
	"fmt"
	"sort"

	"github.com/luxfi/outpace/pkg/channel"
	"github.com/luxfi/outpace/pkg/crypto"
	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/unifiednum"
)

// ErrOverflow is returned by Spend and Check when a uint64 addition overflows.
var ErrOverflow = errors.New("balances: overflow")

// ErrPayoutMismatch is returned by Check when the earners and spenders sums
// of an Unchecked balance disagree (I1 violation).
type ErrPayoutMismatch struct {
	EarnersSum  unifiednum.UnifiedNum
	SpendersSum unifiednum.UnifiedNum
}

func (e *ErrPayoutMismatch) Error() string {
	return fmt.Sprintf("balances: payout mismatch: earners=%s spenders=%s", e.EarnersSum, e.SpendersSum)
}

// Unchecked holds an earners/spenders ledger as received over the wire,
// before I1 has been verified.
type Unchecked struct {
	Earners  map[ids.Address]unifiednum.UnifiedNum
	Spenders map[ids.Address]unifiednum.UnifiedNum
}

// Checked holds an earners/spenders ledger known to satisfy I1. It can only
// be constructed via Check or New.
type Checked struct {
	Earners  map[ids.Address]unifiednum.UnifiedNum
	Spenders map[ids.Address]unifiednum.UnifiedNum
}

// New returns an empty Checked balance, the starting point for a channel's
// Accounting on first event.
func New() Checked {
	return Checked{
		Earners:  make(map[ids.Address]unifiednum.UnifiedNum),
		Spenders: make(map[ids.Address]unifiednum.UnifiedNum),
	}
}

// NewUnchecked returns an empty Unchecked balance.
func NewUnchecked() Unchecked {
	return Unchecked{
		Earners:  make(map[ids.Address]unifiednum.UnifiedNum),
		Spenders: make(map[ids.Address]unifiednum.UnifiedNum),
	}
}

// Sum returns the total of earners and the total of spenders, or false if
// either sum overflows uint64.
func (c Checked) Sum() (earners, spenders unifiednum.UnifiedNum, ok bool) {
	return sumBalances(c.Earners, c.Spenders)
}

// Sum returns the total of earners and the total of spenders, or false if
// either sum overflows uint64.
func (u Unchecked) Sum() (earners, spenders unifiednum.UnifiedNum, ok bool) {
	return sumBalances(u.Earners, u.Spenders)
}

func sumBalances(earners, spenders map[ids.Address]unifiednum.UnifiedNum) (unifiednum.UnifiedNum, unifiednum.UnifiedNum, bool) {
	earnersSum, ok := sumValues(earners)
	if !ok {
		return 0, 0, false
	}
	spendersSum, ok := sumValues(spenders)
	if !ok {
		return 0, 0, false
	}
	return earnersSum, spendersSum, true
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

// sortedAddresses returns m's keys sorted ascending by address bytes, the
// canonical order required whenever a Merkle root is computed.
func sortedAddresses(m map[ids.Address]unifiednum.UnifiedNum) []ids.Address {
	out := make([]ids.Address, 0, len(m))
	for a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return lessAddress(out[i], out[j])
	})
	return out
}

func lessAddress(a, b ids.Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Spend is the sole primitive that mutates a Checked balance (I4): it
// credits amount to both Spenders[spender] and Earners[earner] atomically,
// failing with ErrOverflow and leaving c unchanged if either addition
// overflows.
func (c Checked) Spend(spender, earner ids.Address, amount unifiednum.UnifiedNum) error {
	newSpender, ok := c.Spenders[spender].Add(amount)
	if !ok {
		return ErrOverflow
	}
	newEarner, ok := c.Earners[earner].Add(amount)
	if !ok {
		return ErrOverflow
	}
	c.Spenders[spender] = newSpender
	c.Earners[earner] = newEarner
	return nil
}

// Check validates I1 (zero-sum conservation) on an Unchecked balance and
// returns the equivalent Checked balance. It does not copy the maps.
func Check(u Unchecked) (Checked, error) {
	earnersSum, spendersSum, ok := u.Sum()
	if !ok {
		return Checked{}, ErrOverflow
	}
	if earnersSum != spendersSum {
		return Checked{}, &ErrPayoutMismatch{EarnersSum: earnersSum, SpendersSum: spendersSum}
	}
	return Checked{Earners: u.Earners, Spenders: u.Spenders}, nil
}

// IntoUnchecked demotes a Checked balance to Unchecked for wire transport,
// e.g. embedding it in a NewState message before the peer re-verifies it.
func IntoUnchecked(c Checked) Unchecked {
	return Unchecked{Earners: c.Earners, Spenders: c.Spenders}
}

// Clone returns a deep copy of c, so a caller can mutate the copy via Spend
// without aliasing the original snapshot (e.g. follower-rules comparisons
// that need to retain a pre-tick balance to diff against).
func (c Checked) Clone() Checked {
	out := New()
	for a, v := range c.Earners {
		out.Earners[a] = v
	}
	for a, v := range c.Spenders {
		out.Spenders[a] = v
	}
	return out
}

// spenderTag distinguishes a spender leaf from an earner leaf in the Merkle
// tree, so that an earner and a spender with coincidentally equal
// (channel_id, address, amount) never hash to the same leaf.
const spenderTag = 0x01

// Encode computes the 32-byte Merkle state root committed in a NewState
// message, over this Checked balance's earners and spenders:
//  1. every UnifiedNum amount is converted to the token's native precision;
//  2. an earner leaf is keccak256(channelId || address || amount_be32);
//     a spender leaf is keccak256(channelId || address || amount_be32 || spenderTag);
//  3. all leaves (earners and spenders together) are sorted lexicographically;
//  4. a standard binary Merkle tree is built with keccak256(left||right),
//     duplicating the last leaf on odd-sized levels;
//  5. the resulting root is returned.
//
// An empty Balances (no earners, no spenders) encodes to the all-zero root.
func (c Checked) Encode(chID channel.ID, tokenPrecision uint8) ([32]byte, error) {
	leaves := make([][]byte, 0, len(c.Earners)+len(c.Spenders))

	for _, addr := range sortedAddresses(c.Earners) {
		leaf, err := encodeLeaf(chID, addr, c.Earners[addr], tokenPrecision, false)
		if err != nil {
			return [32]byte{}, err
		}
		leaves = append(leaves, leaf)
	}
	for _, addr := range sortedAddresses(c.Spenders) {
		leaf, err := encodeLeaf(chID, addr, c.Spenders[addr], tokenPrecision, true)
		if err != nil {
			return [32]byte{}, err
		}
		leaves = append(leaves, leaf)
	}

	if len(leaves) == 0 {
		return [32]byte{}, nil
	}

	sort.Slice(leaves, func(i, j int) bool {
		return lessBytes(leaves[i], leaves[j])
	})

	return merkleRoot(leaves), nil
}

func encodeLeaf(chID channel.ID, addr ids.Address, amount unifiednum.UnifiedNum, tokenPrecision uint8, spender bool) ([]byte, error) {
	native, err := unifiednum.ToNative(amount, tokenPrecision)
	if err != nil {
		return nil, fmt.Errorf("balances: encode leaf for %s: %w", addr, err)
	}

	var amountBE [32]byte
	putUint64BE(amountBE[24:], native)

	parts := make([]byte, 0, 32+20+32+1)
	parts = append(parts, chID.Bytes()...)
	parts = append(parts, addr.Bytes()...)
	parts = append(parts, amountBE[:]...)
	if spender {
		parts = append(parts, spenderTag)
	}

	digest := crypto.Keccak256(parts)
	return digest[:], nil
}

func putUint64BE(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func lessBytes(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func merkleRoot(leaves [][]byte) [32]byte {
	level := leaves
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			digest := crypto.Keccak256(level[i], level[i+1])
			next = append(next, digest[:])
		}
		level = next
	}
	var root [32]byte
	copy(root[:], level[0])
	return root
}
