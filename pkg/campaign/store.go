// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package campaign

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/luxfi/outpace/pkg/accounting"
	"github.com/luxfi/outpace/pkg/channel"
	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/pricing"
	"github.com/luxfi/outpace/pkg/storage"
	"github.com/luxfi/outpace/pkg/unifiednum"
)

// ErrAlreadyExists is returned by Create when a campaign with the same ID
// has already been persisted (the REST layer maps this to 409).
var ErrAlreadyExists = errors.New("campaign: already exists")

// record is Campaign's on-disk shape: Campaign keeps remaining/closed
// unexported so callers can't bypass Spend/Close, but the store needs them
// to survive a round trip.
type record struct {
	ID             string                   `json:"id"`
	Channel        string                   `json:"channel"`
	Creator        ids.Address              `json:"creator"`
	Budget         unifiednum.UnifiedNum    `json:"budget"`
	Leader         accounting.ValidatorDesc `json:"leader"`
	Follower       accounting.ValidatorDesc `json:"follower"`
	PricingBounds  map[string]PriceBounds   `json:"pricingBounds"`
	TargetingRules pricing.Rules            `json:"targetingRules"`
	AdUnits        []AdUnit                 `json:"adUnits"`
	ActiveFrom     time.Time                `json:"activeFrom"`
	ActiveTo       time.Time                `json:"activeTo"`
	Remaining      unifiednum.UnifiedNum    `json:"remaining"`
	Closed         bool                     `json:"closed"`
}

// Store persists Campaigns keyed by ID, backed by storage.Storage.
type Store struct {
	storage *storage.Storage
}

// NewStore returns a Store backed by s.
func NewStore(s *storage.Storage) *Store {
	return &Store{storage: s}
}

func campaignKey(id string) []byte {
	return []byte("campaign/" + id)
}

// Create persists c, failing with ErrAlreadyExists if its ID is taken.
func (s *Store) Create(c *Campaign) error {
	key := campaignKey(c.ID)
	has, err := s.storage.Has(key)
	if err != nil {
		return fmt.Errorf("campaign: check existing: %w", err)
	}
	if has {
		return ErrAlreadyExists
	}
	return s.put(c)
}

// Update overwrites the persisted copy of c.
func (s *Store) Update(c *Campaign) error {
	return s.put(c)
}

func (s *Store) put(c *Campaign) error {
	rec := toRecord(c)
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("campaign: encode: %w", err)
	}
	if err := s.storage.Put(campaignKey(c.ID), data); err != nil {
		return fmt.Errorf("campaign: persist: %w", err)
	}
	return nil
}

// Fetch returns the campaign named id, or (nil, nil) if it doesn't exist.
func (s *Store) Fetch(id string) (*Campaign, error) {
	key := campaignKey(id)
	has, err := s.storage.Has(key)
	if err != nil {
		return nil, fmt.Errorf("campaign: check existing: %w", err)
	}
	if !has {
		return nil, nil
	}

	data, err := s.storage.Get(key)
	if err != nil {
		return nil, fmt.Errorf("campaign: fetch: %w", err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("campaign: decode: %w", err)
	}
	return rec.toCampaign()
}

// Filter narrows List to campaigns matching every non-zero field.
type Filter struct {
	Creator    *ids.Address
	Validator  *ids.Address
	ActiveToGE time.Time
}

// List returns campaigns matching filter, ordered by ID, paginated by page
// (1-indexed) at a fixed 50-per-page size.
func (s *Store) List(page int, filter Filter) ([]*Campaign, error) {
	const pageSize = 50
	if page < 1 {
		page = 1
	}

	iter := s.storage.NewIteratorWithPrefix([]byte("campaign/"))
	defer iter.Release()

	var all []*Campaign
	for iter.Next() {
		var rec record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("campaign: decode during list: %w", err)
		}
		c, err := rec.toCampaign()
		if err != nil {
			return nil, err
		}
		if !matches(c, filter) {
			continue
		}
		all = append(all, c)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("campaign: list: %w", err)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

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

func matches(c *Campaign, f Filter) bool {
	if f.Creator != nil && !c.Creator.Equal(*f.Creator) {
		return false
	}
	if f.Validator != nil && !c.Leader.ID.Equal(*f.Validator) && !c.Follower.ID.Equal(*f.Validator) {
		return false
	}
	if !f.ActiveToGE.IsZero() && c.Active.To.Before(f.ActiveToGE) {
		return false
	}
	return true
}

func toRecord(c *Campaign) record {
	return record{
		ID:             c.ID,
		Channel:        c.Channel.String(),
		Creator:        c.Creator,
		Budget:         c.Budget,
		Leader:         c.Leader,
		Follower:       c.Follower,
		PricingBounds:  c.PricingBounds,
		TargetingRules: c.TargetingRules,
		AdUnits:        c.AdUnits,
		ActiveFrom:     c.Active.From,
		ActiveTo:       c.Active.To,
		Remaining:      c.remaining,
		Closed:         c.closed,
	}
}

// toCampaign reverses toRecord, restoring remaining/closed directly rather
// than through New (which always resets remaining to the full budget) so a
// reloaded campaign keeps the budget it had actually spent.
func (rec record) toCampaign() (*Campaign, error) {
	chID, err := channel.IDFromHex(rec.Channel)
	if err != nil {
		return nil, fmt.Errorf("campaign: decode channel id: %w", err)
	}
	return &Campaign{
		ID:             rec.ID,
		Channel:        chID,
		Creator:        rec.Creator,
		Budget:         rec.Budget,
		Leader:         rec.Leader,
		Follower:       rec.Follower,
		PricingBounds:  rec.PricingBounds,
		TargetingRules: rec.TargetingRules,
		AdUnits:        rec.AdUnits,
		Active:         Active{From: rec.ActiveFrom, To: rec.ActiveTo},
		remaining:      rec.Remaining,
		closed:         rec.Closed,
	}, nil
}
