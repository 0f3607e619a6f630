// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sentryapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/luxfi/outpace/pkg/channel"
	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/propagation"
	"github.com/luxfi/outpace/pkg/storage"
)

// ErrChannelAlreadyExists is returned by ChannelStore.Create for a
// previously registered channel id (the REST layer maps this to 409, the
// same conflict code a duplicate channel creation gets in the original
// sentry).
var ErrChannelAlreadyExists = errors.New("sentryapi: channel already exists")

// channelRecord is one registered channel: its identifying Context plus the
// peer validator endpoints the tick loops and this API's own
// validator-messages routes need to reach it.
type channelRecord struct {
	Context    channel.Context         `json:"context"`
	Validators []propagation.Validator `json:"validators"`
	CreatedAt  time.Time               `json:"createdAt"`
}

// ChannelStore persists registered channels, the prerequisite for
// GET /channel/list and for authorizing POST .../validator-messages as
// coming from a known channel validator. Grounded on pkg/campaign.Store's
// storage.Storage + key-prefix iteration shape.
type ChannelStore struct {
	storage *storage.Storage
}

// NewChannelStore returns a ChannelStore backed by s.
func NewChannelStore(s *storage.Storage) *ChannelStore {
	return &ChannelStore{storage: s}
}

func channelKey(id channel.ID) []byte {
	return []byte("channel/" + id.String())
}

// Register persists ctx's channel and its validator endpoints, failing with
// ErrChannelAlreadyExists if already registered.
func (s *ChannelStore) Register(ctx channel.Context, validators []propagation.Validator) error {
	id := ctx.Channel.ID()
	key := channelKey(id)
	has, err := s.storage.Has(key)
	if err != nil {
		return fmt.Errorf("sentryapi: check existing channel: %w", err)
	}
	if has {
		return ErrChannelAlreadyExists
	}
	rec := channelRecord{Context: ctx, Validators: validators, CreatedAt: time.Now().UTC()}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("sentryapi: encode channel: %w", err)
	}
	return s.storage.Put(key, data)
}

// Fetch returns the registered channel named id, or (nil, nil) if unknown.
func (s *ChannelStore) Fetch(id channel.ID) (*channel.Context, []propagation.Validator, error) {
	key := channelKey(id)
	has, err := s.storage.Has(key)
	if err != nil {
		return nil, nil, fmt.Errorf("sentryapi: check existing channel: %w", err)
	}
	if !has {
		return nil, nil, nil
	}
	data, err := s.storage.Get(key)
	if err != nil {
		return nil, nil, fmt.Errorf("sentryapi: fetch channel: %w", err)
	}
	var rec channelRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, nil, fmt.Errorf("sentryapi: decode channel: %w", err)
	}
	return &rec.Context, rec.Validators, nil
}

// ChannelFilter narrows List to channels matching every non-zero field.
// ValidUntil is accepted for REST compatibility with the public query
// parameter but never applied: a Channel itself carries no expiry, only the
// Campaigns pinned to it do (see campaign.Filter.ActiveToGE).
type ChannelFilter struct {
	Creator    *ids.Address // matches leader or follower
	Validator  *ids.Address
	ValidUntil time.Time
}

// List returns registered channels matching filter, ordered by ID hex,
// paginated at a fixed 50-per-page size.
func (s *ChannelStore) List(page int, filter ChannelFilter) ([]channel.Context, error) {
	const pageSize = 50
	if page < 1 {
		page = 1
	}

	iter := s.storage.NewIteratorWithPrefix([]byte("channel/"))
	defer iter.Release()

	var all []channel.Context
	for iter.Next() {
		var rec channelRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("sentryapi: decode channel during list: %w", err)
		}
		if !channelMatches(rec, filter) {
			continue
		}
		all = append(all, rec.Context)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("sentryapi: list channels: %w", err)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].Channel.ID().String() < all[j].Channel.ID().String()
	})

	start := (page - 1) * pageSize
	if start >= len(all) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func channelMatches(rec channelRecord, f ChannelFilter) bool {
	if f.Creator != nil {
		_, leaderMatch := rec.Context.Channel.FindValidator(*f.Creator)
		if !leaderMatch {
			return false
		}
	}
	if f.Validator != nil {
		_, ok := rec.Context.Channel.FindValidator(*f.Validator)
		if !ok {
			return false
		}
	}
	return true
}
