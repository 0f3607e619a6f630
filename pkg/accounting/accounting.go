// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package accounting implements the per-channel Accounting Store: the
// persisted earner/spender ledger the Event Aggregator credits and the
// Leader/Follower ticks read back to detect balance divergence.
package accounting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/outpace/pkg/balances"
	"github.com/luxfi/outpace/pkg/channel"
	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/storage"
	"github.com/luxfi/outpace/pkg/unifiednum"
)

// Side distinguishes which half of a channel's ledger a Row belongs to.
type Side uint8

const (
	SideEarner Side = iota
	SideSpender
)

func (s Side) String() string {
	switch s {
	case SideEarner:
		return "Earner"
	case SideSpender:
		return "Spender"
	default:
		return "Unknown"
	}
}

// Row is one persisted (channel, side, address) entry: the absolute amount
// after every delta applied to it so far.
type Row struct {
	ChannelID channel.ID             `json:"channelId"`
	Side      Side                   `json:"side"`
	Address   ids.Address            `json:"address"`
	Amount    unifiednum.UnifiedNum  `json:"amount"`
	CreatedAt time.Time              `json:"created"`
	UpdatedAt *time.Time             `json:"updated,omitempty"`
}

// Accounting is one channel's full ledger: one per channel, created lazily
// on its first event and never destroyed.
type Accounting struct {
	ChannelID channel.ID
	Balances  balances.Checked
	CreatedAt time.Time
	UpdatedAt *time.Time
}

// Store persists Accounting rows in the shared key-value storage. Each row
// is its own key so that UpdateDelta's per-row upserts are independently
// visible; nothing here makes a whole-batch update atomic (see UpdateDelta).
type Store struct {
	storage *storage.Storage

	// mu serializes read-modify-write of a single row against concurrent
	// UpdateDelta calls on the same Store. It does not make a multi-row
	// batch atomic; it only prevents two goroutines from racing on the
	// same row's "read then add then write" sequence.
	mu sync.Mutex
}

// NewStore returns a Store backed by s.
func NewStore(s *storage.Storage) *Store {
	return &Store{storage: s}
}

func rowKey(chID channel.ID, side Side, addr ids.Address) []byte {
	return []byte(fmt.Sprintf("accounting/%s/%d/%s", chID.String(), side, addr.String()))
}

func rowPrefix(chID channel.ID) []byte {
	return []byte(fmt.Sprintf("accounting/%s/", chID.String()))
}

// Fetch loads the channel's full Accounting, or nil if no row has ever been
// written for it.
func (s *Store) Fetch(chID channel.ID) (*Accounting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	checked := balances.New()
	var createdAt time.Time
	var updatedAt *time.Time
	found := false

	iter := s.storage.NewIteratorWithPrefix(rowPrefix(chID))
	defer iter.Release()

	for iter.Next() {
		var row Row
		if err := json.Unmarshal(iter.Value(), &row); err != nil {
			return nil, fmt.Errorf("accounting: decode row %s: %w", iter.Key(), err)
		}
		found = true

		switch row.Side {
		case SideEarner:
			checked.Earners[row.Address] = row.Amount
		case SideSpender:
			checked.Spenders[row.Address] = row.Amount
		}

		if createdAt.IsZero() || row.CreatedAt.Before(createdAt) {
			createdAt = row.CreatedAt
		}
		if row.UpdatedAt != nil && (updatedAt == nil || row.UpdatedAt.After(*updatedAt)) {
			updatedAt = row.UpdatedAt
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("accounting: iterate channel %s: %w", chID, err)
	}
	if !found {
		return nil, nil
	}

	return &Accounting{
		ChannelID: chID,
		Balances:  checked,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

// UpdateDelta applies delta to the channel's stored ledger by upsert-with-
// add per (channel, side, address) row, returning the new absolute amounts.
//
// Updates are per-row additive and not transactional across the whole
// delta: if a row update fails partway through, the rows already applied
// stay applied. The caller may retry, but must not re-apply a delta it
// already applied in part — idempotence across a retry is the caller's
// responsibility. This keeps the hot aggregation path cheap; the validator
// state machine only ever reads Accounting between ticks, never mid-batch.
func (s *Store) UpdateDelta(chID channel.ID, delta balances.Checked) (earners, spenders []Row, err error) {
	for addr, amount := range delta.Earners {
		row, updateErr := s.upsertAdd(chID, SideEarner, addr, amount)
		if updateErr != nil {
			return earners, spenders, fmt.Errorf("accounting: update earner %s: %w", addr, updateErr)
		}
		earners = append(earners, row)
	}
	for addr, amount := range delta.Spenders {
		row, updateErr := s.upsertAdd(chID, SideSpender, addr, amount)
		if updateErr != nil {
			return earners, spenders, fmt.Errorf("accounting: update spender %s: %w", addr, updateErr)
		}
		spenders = append(spenders, row)
	}
	return earners, spenders, nil
}

func (s *Store) upsertAdd(chID channel.ID, side Side, addr ids.Address, delta unifiednum.UnifiedNum) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rowKey(chID, side, addr)
	now := time.Now().UTC()

	existing, ok, err := s.getRow(key)
	if err != nil {
		return Row{}, err
	}

	row := Row{ChannelID: chID, Side: side, Address: addr, CreatedAt: now}
	if ok {
		newAmount, addOk := existing.Amount.Add(delta)
		if !addOk {
			return Row{}, balances.ErrOverflow
		}
		row = existing
		row.Amount = newAmount
		row.UpdatedAt = &now
	} else {
		row.Amount = delta
	}

	encoded, err := json.Marshal(row)
	if err != nil {
		return Row{}, fmt.Errorf("accounting: encode row: %w", err)
	}
	if err := s.storage.Put(key, encoded); err != nil {
		return Row{}, fmt.Errorf("accounting: persist row: %w", err)
	}
	return row, nil
}

func (s *Store) getRow(key []byte) (Row, bool, error) {
	has, err := s.storage.Has(key)
	if err != nil {
		return Row{}, false, err
	}
	if !has {
		return Row{}, false, nil
	}
	raw, err := s.storage.Get(key)
	if err != nil {
		return Row{}, false, err
	}
	var row Row
	if err := json.Unmarshal(raw, &row); err != nil {
		return Row{}, false, fmt.Errorf("decode row: %w", err)
	}
	return row, true, nil
}

// rowsEqual is used by tests to compare persisted rows ignoring timestamps.
func rowsEqual(a, b Row) bool {
	return a.ChannelID == b.ChannelID && a.Side == b.Side && a.Address == b.Address && a.Amount == b.Amount &&
		bytes.Equal(rowKey(a.ChannelID, a.Side, a.Address), rowKey(b.ChannelID, b.Side, b.Address))
}
