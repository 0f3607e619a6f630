// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package leader implements the Leader Tick: detecting whether Accounting
// has advanced past the leader's own last NewState, and if so signing and
// propagating a new one. A Heartbeat is emitted on every tick regardless.
package leader

import (
	"context"
	"fmt"
	"time"

	"github.com/luxfi/outpace/pkg/accounting"
	"github.com/luxfi/outpace/pkg/adapter"
	"github.com/luxfi/outpace/pkg/balances"
	"github.com/luxfi/outpace/pkg/channel"
	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/log"
	"github.com/luxfi/outpace/pkg/propagation"
	"github.com/luxfi/outpace/pkg/vmsg"
)

// Propagator is the subset of *propagation.Client the Leader Tick needs,
// narrowed to an interface so tests can supply a fake instead of an HTTP
// server.
type Propagator interface {
	Propagate(ctx context.Context, chID channel.ID, to []propagation.Validator, msgs []vmsg.Message) []propagation.Result
}

// TickStatus reports what one Tick call did.
type TickStatus struct {
	// NewState is non-nil when Accounting had advanced and a new state was
	// signed and propagated.
	NewState        *vmsg.NewState
	NewStatePropagation []propagation.Result

	HeartbeatErr         error
	HeartbeatPropagation []propagation.Result
}

// Leader runs the per-channel leader tick.
type Leader struct {
	accounts *accounting.Store
	msgs     *vmsg.Store
	adapter  adapter.Adapter
	prop     Propagator
	log      log.Logger
}

// New returns a Leader backed by accounts/msgs/ad, propagating through prop.
func New(accounts *accounting.Store, msgs *vmsg.Store, ad adapter.Adapter, prop Propagator, logger log.Logger) *Leader {
	return &Leader{accounts: accounts, msgs: msgs, adapter: ad, prop: prop, log: logger}
}

// Tick runs one leader tick for chContext's channel, propagating to
// follower. now is the timestamp signed into this tick's Heartbeat.
func (l *Leader) Tick(ctx context.Context, chContext channel.Context, follower propagation.Validator, now time.Time) (TickStatus, error) {
	chID := chContext.Channel.ID()
	whoami := l.adapter.Whoami()

	acc, err := l.accounts.Fetch(chID)
	if err != nil {
		return TickStatus{}, fmt.Errorf("leader: fetch accounting: %w", err)
	}

	var status TickStatus
	if acc != nil && (len(acc.Balances.Earners) > 0 || len(acc.Balances.Spenders) > 0) {
		shouldGenerate, last, err := l.shouldGenerateNewState(chID, whoami, acc.Balances)
		if err != nil {
			return TickStatus{}, err
		}
		_ = last
		if shouldGenerate {
			newState, propResult, err := l.onNewAccounting(ctx, chContext, follower, acc.Balances)
			if err != nil {
				return TickStatus{}, err
			}
			status.NewState = &newState
			status.NewStatePropagation = propResult
		}
	}

	status.HeartbeatPropagation, status.HeartbeatErr = l.heartbeat(ctx, chContext, follower, now)
	return status, nil
}

// shouldGenerateNewState implements the diff step: trigger if no last own
// NewState exists, or if any earner/spender in acc strictly exceeds the
// corresponding value in the last NewState.
func (l *Leader) shouldGenerateNewState(chID channel.ID, whoami ids.Address, acc balances.Checked) (bool, *vmsg.NewState, error) {
	received, ok, err := l.msgs.Latest(chID, whoami, vmsg.KindNewState)
	if err != nil {
		return false, nil, fmt.Errorf("leader: fetch last own NewState: %w", err)
	}
	if !ok {
		return true, nil, nil
	}
	last := received.Message.(vmsg.NewState)

	for addr, v := range acc.Earners {
		if v.Cmp(last.Balances.Earners[addr]) > 0 {
			return true, &last, nil
		}
	}
	for addr, v := range acc.Spenders {
		if v.Cmp(last.Balances.Spenders[addr]) > 0 {
			return true, &last, nil
		}
	}
	return false, &last, nil
}

func (l *Leader) onNewAccounting(ctx context.Context, chContext channel.Context, follower propagation.Validator, acc balances.Checked) (vmsg.NewState, []propagation.Result, error) {
	chID := chContext.Channel.ID()
	stateRoot, err := acc.Encode(chID, chContext.Token.Precision)
	if err != nil {
		return vmsg.NewState{}, nil, fmt.Errorf("leader: encode state root: %w", err)
	}

	sig, err := l.adapter.Sign(ctx, stateRoot)
	if err != nil {
		return vmsg.NewState{}, nil, fmt.Errorf("leader: sign state root: %w", err)
	}

	newState := vmsg.NewState{StateRoot: stateRoot, Signature: sig, Balances: balances.IntoUnchecked(acc)}

	if err := l.msgs.Append(chID, l.adapter.Whoami(), newState, time.Now().UTC()); err != nil {
		return vmsg.NewState{}, nil, fmt.Errorf("leader: persist NewState: %w", err)
	}

	results := l.prop.Propagate(ctx, chID, []propagation.Validator{follower}, []vmsg.Message{newState})
	return newState, results, nil
}

func (l *Leader) heartbeat(ctx context.Context, chContext channel.Context, follower propagation.Validator, now time.Time) ([]propagation.Result, error) {
	chID := chContext.Channel.ID()
	digest := vmsg.HeartbeatDigest(chID, now)

	sig, err := l.adapter.Sign(ctx, digest)
	if err != nil {
		log.Debugf(l.log, "heartbeat sign failed", log.Error(err))
		return nil, fmt.Errorf("leader: sign heartbeat: %w", err)
	}

	hb := vmsg.Heartbeat{StateRoot: digest, Signature: sig, Timestamp: now}
	if err := l.msgs.Append(chID, l.adapter.Whoami(), hb, now); err != nil {
		return nil, fmt.Errorf("leader: persist heartbeat: %w", err)
	}

	return l.prop.Propagate(ctx, chID, []propagation.Validator{follower}, []vmsg.Message{hb}), nil
}
