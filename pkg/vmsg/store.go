// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vmsg

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/luxfi/outpace/pkg/channel"
	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/storage"
)

// Received is one stored validator message, tagged with who sent it and
// when it was received, matching the shape the "ping-pong" fetch pattern
// (fetch the leader's latest NewState, fetch our own latest
// ApproveState/RejectState) needs to operate on.
type Received struct {
	From     ids.Address
	Received time.Time
	Message  Message
}

// Store persists validator messages per (channel, validator), append-only,
// and serves the "latest message of one of several kinds" queries the
// leader and follower ticks are built around.
type Store struct {
	storage *storage.Storage
}

// NewStore returns a Store backed by s.
func NewStore(s *storage.Storage) *Store {
	return &Store{storage: s}
}

type record struct {
	From     ids.Address `json:"from"`
	Received time.Time   `json:"received"`
	Envelope Envelope    `json:"msg"`
}

func messageKey(chID channel.ID, from ids.Address, seq uint64) []byte {
	return []byte(fmt.Sprintf("vmsg/%s/%s/%020d", chID.String(), from.String(), seq))
}

func seqKey(chID channel.ID, from ids.Address) []byte {
	return []byte(fmt.Sprintf("vmsgseq/%s/%s", chID.String(), from.String()))
}

func prefix(chID channel.ID, from ids.Address) []byte {
	return []byte(fmt.Sprintf("vmsg/%s/%s/", chID.String(), from.String()))
}

// Append records msg as sent by from on chID, in arrival order.
func (s *Store) Append(chID channel.ID, from ids.Address, msg Message, receivedAt time.Time) error {
	seq, err := s.nextSeq(chID, from)
	if err != nil {
		return err
	}
	rec := record{From: from, Received: receivedAt, Envelope: Envelope{Message: msg}}
	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("vmsg: encode record: %w", err)
	}
	if err := s.storage.Put(messageKey(chID, from, seq), encoded); err != nil {
		return fmt.Errorf("vmsg: persist record: %w", err)
	}
	return nil
}

func (s *Store) nextSeq(chID channel.ID, from ids.Address) (uint64, error) {
	key := seqKey(chID, from)
	has, err := s.storage.Has(key)
	if err != nil {
		return 0, err
	}
	var next uint64
	if has {
		raw, err := s.storage.Get(key)
		if err != nil {
			return 0, err
		}
		var cur uint64
		if err := json.Unmarshal(raw, &cur); err != nil {
			return 0, err
		}
		next = cur + 1
	}
	encoded, err := json.Marshal(next)
	if err != nil {
		return 0, err
	}
	if err := s.storage.Put(key, encoded); err != nil {
		return 0, err
	}
	return next, nil
}

// Latest returns the most recently appended message from `from` whose Kind
// is one of kinds, or (Received{}, false, nil) if none exists.
func (s *Store) Latest(chID channel.ID, from ids.Address, kinds ...Kind) (Received, bool, error) {
	wanted := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		wanted[k] = true
	}

	iter := s.storage.NewIteratorWithPrefix(prefix(chID, from))
	defer iter.Release()

	var latest Received
	found := false
	for iter.Next() {
		var rec record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return Received{}, false, fmt.Errorf("vmsg: decode record: %w", err)
		}
		if len(wanted) > 0 && !wanted[rec.Envelope.Message.Kind()] {
			continue
		}
		latest = Received{From: rec.From, Received: rec.Received, Message: rec.Envelope.Message}
		found = true
	}
	if err := iter.Error(); err != nil {
		return Received{}, false, fmt.Errorf("vmsg: iterate: %w", err)
	}
	return latest, found, nil
}

// LatestN returns up to limit of the most recently appended messages from
// `from` whose Kind is one of kinds, oldest first, as the public
// GET .../validator-messages/{from}/{types}?limit=N route serves. limit<=0
// means no limit.
func (s *Store) LatestN(chID channel.ID, from ids.Address, limit int, kinds ...Kind) ([]Received, error) {
	wanted := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		wanted[k] = true
	}

	iter := s.storage.NewIteratorWithPrefix(prefix(chID, from))
	defer iter.Release()

	var all []Received
	for iter.Next() {
		var rec record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("vmsg: decode record: %w", err)
		}
		if len(wanted) > 0 && !wanted[rec.Envelope.Message.Kind()] {
			continue
		}
		all = append(all, Received{From: rec.From, Received: rec.Received, Message: rec.Envelope.Message})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("vmsg: iterate: %w", err)
	}

	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}
