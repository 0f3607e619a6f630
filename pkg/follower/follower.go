// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package follower

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/outpace/pkg/accounting"
	"github.com/luxfi/outpace/pkg/adapter"
	"github.com/luxfi/outpace/pkg/balances"
	"github.com/luxfi/outpace/pkg/channel"
	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/log"
	"github.com/luxfi/outpace/pkg/propagation"
	"github.com/luxfi/outpace/pkg/unifiednum"
	"github.com/luxfi/outpace/pkg/vmsg"
)

// Fetcher is the subset of *propagation.Client the Follower Tick needs to
// fetch a peer's latest messages, narrowed to an interface so tests can
// supply a fake instead of an HTTP server.
type Fetcher interface {
	GetLatest(ctx context.Context, v propagation.Validator, chID channel.ID, from ids.Address, kinds ...vmsg.Kind) (*vmsg.Envelope, bool, error)
}

// Propagator is the subset of *propagation.Client the Follower Tick needs to
// propagate an ApproveState or RejectState back to the leader.
type Propagator interface {
	Propagate(ctx context.Context, chID channel.ID, to []propagation.Validator, msgs []vmsg.Message) []propagation.Result
}

// Outcome describes what a Follower Tick did with the leader's latest
// NewState.
type Outcome int

const (
	// NotTriggered means there was nothing new to respond to: either no
	// NewState exists yet, or we already responded to the current one.
	NotTriggered Outcome = iota
	Approved
	Rejected
)

// ApproveResult reports the outcome of validating the leader's latest
// NewState.
type ApproveResult struct {
	Outcome     Outcome
	StateRoot   [32]byte
	Reason      string // set when Outcome == Rejected
	Propagation []propagation.Result
}

// TickStatus reports what one Tick call did.
type TickStatus struct {
	Approve ApproveResult

	HeartbeatErr         error
	HeartbeatPropagation []propagation.Result
}

// Config holds the health thresholds a Follower Tick enforces, expressed in
// promilles (parts per 1000) as returned by GetHealth.
type Config struct {
	HealthUnsignablePromilles uint64
	HealthThresholdPromilles  uint64
}

// Follower runs the per-channel follower tick.
type Follower struct {
	accounts *accounting.Store
	msgs     *vmsg.Store
	adapter  adapter.Adapter
	fetcher  Fetcher
	prop     Propagator
	log      log.Logger
	config   Config
}

// New returns a Follower backed by accounts/msgs/ad, fetching and
// propagating through fetcher/prop.
func New(accounts *accounting.Store, msgs *vmsg.Store, ad adapter.Adapter, fetcher Fetcher, prop Propagator, logger log.Logger, config Config) *Follower {
	return &Follower{accounts: accounts, msgs: msgs, adapter: ad, fetcher: fetcher, prop: prop, log: logger, config: config}
}

// Tick runs one follower tick for chContext's channel against leader.
// allSpendersSum is the sum of every spender's on-chain deposit for this
// channel's token, the cap transitions are checked against. now is the
// timestamp signed into this tick's Heartbeat.
func (f *Follower) Tick(ctx context.Context, chContext channel.Context, leader propagation.Validator, allSpendersSum unifiednum.UnifiedNum, now time.Time) (TickStatus, error) {
	chID := chContext.Channel.ID()
	whoami := f.adapter.Whoami()

	env, hasNewState, err := f.fetcher.GetLatest(ctx, leader, chID, chContext.Channel.Leader, vmsg.KindNewState)
	if err != nil {
		return TickStatus{}, fmt.Errorf("follower: fetch leader's latest NewState: %w", err)
	}

	var status TickStatus
	if hasNewState {
		newState := env.Message.(vmsg.NewState)
		alreadyResponded, err := f.alreadyRespondedTo(chID, whoami, newState.StateRoot)
		if err != nil {
			return TickStatus{}, err
		}
		if !alreadyResponded {
			acc, err := f.accounts.Fetch(chID)
			if err != nil {
				return TickStatus{}, fmt.Errorf("follower: fetch accounting: %w", err)
			}
			accBalances := balances.New()
			if acc != nil {
				accBalances = acc.Balances
			}

			approve, err := f.onNewState(ctx, chContext, leader, accBalances, newState, allSpendersSum, now)
			if err != nil {
				return TickStatus{}, err
			}
			status.Approve = approve
		}
	}

	status.HeartbeatPropagation, status.HeartbeatErr = f.heartbeat(ctx, chContext, leader, now)
	return status, nil
}

// alreadyRespondedTo reports whether our own last ApproveState or
// RejectState already answered stateRoot.
func (f *Follower) alreadyRespondedTo(chID channel.ID, whoami ids.Address, stateRoot [32]byte) (bool, error) {
	received, ok, err := f.msgs.Latest(chID, whoami, vmsg.KindApproveState, vmsg.KindRejectState)
	if err != nil {
		return false, fmt.Errorf("follower: fetch our latest response: %w", err)
	}
	if !ok {
		return false, nil
	}
	switch m := received.Message.(type) {
	case vmsg.ApproveState:
		return m.StateRoot == stateRoot, nil
	case vmsg.RejectState:
		return m.StateRoot == stateRoot, nil
	default:
		return false, nil
	}
}

func (f *Follower) onNewState(ctx context.Context, chContext channel.Context, leader propagation.Validator, accBalances balances.Checked, newState vmsg.NewState, allSpendersSum unifiednum.UnifiedNum, now time.Time) (ApproveResult, error) {
	chID := chContext.Channel.ID()

	proposed, err := balances.Check(newState.Balances)
	if err != nil {
		var mismatch *balances.ErrPayoutMismatch
		if errors.As(err, &mismatch) {
			return f.reject(ctx, chID, leader, newState, vmsg.ReasonInvalidTransition, now)
		}
		return ApproveResult{}, fmt.Errorf("follower: check proposed balances: %w", err)
	}

	expectedRoot, err := proposed.Encode(chID, chContext.Token.Precision)
	if err != nil {
		return ApproveResult{}, fmt.Errorf("follower: encode proposed state root: %w", err)
	}
	if expectedRoot != newState.StateRoot {
		return f.reject(ctx, chID, leader, newState, vmsg.ReasonInvalidRootHash, now)
	}

	verified, err := f.adapter.Verify(ctx, chContext.Channel.Leader, newState.StateRoot, newState.Signature)
	if err != nil {
		return ApproveResult{}, fmt.Errorf("follower: verify leader signature: %w", err)
	}
	if !verified {
		return f.reject(ctx, chID, leader, newState, vmsg.ReasonInvalidSignature, now)
	}

	prevBalances, err := f.previouslyApprovedBalances(chID, chContext.Channel.Leader)
	if err != nil {
		return f.reject(ctx, chID, leader, newState, vmsg.ReasonInvalidTransition, now)
	}

	validSpenders, ok := IsValidTransition(allSpendersSum, prevBalances.Spenders, proposed.Spenders)
	if !ok {
		return ApproveResult{}, fmt.Errorf("follower: spenders transition: %w", balances.ErrOverflow)
	}
	if !validSpenders {
		return f.reject(ctx, chID, leader, newState, vmsg.ReasonInvalidTransition, now)
	}

	validEarners, ok := IsValidTransition(allSpendersSum, prevBalances.Earners, proposed.Earners)
	if !ok {
		return ApproveResult{}, fmt.Errorf("follower: earners transition: %w", balances.ErrOverflow)
	}
	if !validEarners {
		return f.reject(ctx, chID, leader, newState, vmsg.ReasonInvalidTransition, now)
	}

	healthEarners, ok := GetHealth(accBalances.Earners, proposed.Earners)
	if !ok {
		return ApproveResult{}, fmt.Errorf("follower: earners health: %w", balances.ErrOverflow)
	}
	if healthEarners < f.config.HealthUnsignablePromilles {
		return f.reject(ctx, chID, leader, newState, vmsg.ReasonTooLowHealthEarners, now)
	}

	healthSpenders, ok := GetHealth(accBalances.Spenders, proposed.Spenders)
	if !ok {
		return ApproveResult{}, fmt.Errorf("follower: spenders health: %w", balances.ErrOverflow)
	}
	if healthSpenders < f.config.HealthUnsignablePromilles {
		return f.reject(ctx, chID, leader, newState, vmsg.ReasonTooLowHealthSpenders, now)
	}

	sig, err := f.adapter.Sign(ctx, newState.StateRoot)
	if err != nil {
		return ApproveResult{}, fmt.Errorf("follower: sign approve state: %w", err)
	}
	isHealthy := healthEarners >= f.config.HealthThresholdPromilles && healthSpenders >= f.config.HealthThresholdPromilles

	approveState := vmsg.ApproveState{StateRoot: newState.StateRoot, Signature: sig, IsHealthy: isHealthy}
	whoami := f.adapter.Whoami()
	if err := f.msgs.Append(chID, whoami, approveState, now); err != nil {
		return ApproveResult{}, fmt.Errorf("follower: persist approve state: %w", err)
	}
	// Keep a local copy of the leader's NewState so the next tick's transition
	// check has a previously-approved balance to diff against.
	if err := f.msgs.Append(chID, chContext.Channel.Leader, newState, now); err != nil {
		return ApproveResult{}, fmt.Errorf("follower: persist leader's new state: %w", err)
	}

	results := f.prop.Propagate(ctx, chID, []propagation.Validator{leader}, []vmsg.Message{approveState})
	return ApproveResult{Outcome: Approved, StateRoot: newState.StateRoot, Propagation: results}, nil
}

func (f *Follower) previouslyApprovedBalances(chID channel.ID, leaderAddr ids.Address) (balances.Checked, error) {
	received, ok, err := f.msgs.Latest(chID, leaderAddr, vmsg.KindNewState)
	if err != nil {
		return balances.Checked{}, fmt.Errorf("follower: fetch previously approved new state: %w", err)
	}
	if !ok {
		return balances.New(), nil
	}
	prev := received.Message.(vmsg.NewState)
	return balances.Check(prev.Balances)
}

func (f *Follower) reject(ctx context.Context, chID channel.ID, leader propagation.Validator, newState vmsg.NewState, reason string, now time.Time) (ApproveResult, error) {
	rejectState := vmsg.RejectState{
		StateRoot: newState.StateRoot,
		Signature: newState.Signature,
		Reason:    reason,
		Timestamp: now,
		Balances:  &newState.Balances,
	}

	whoami := f.adapter.Whoami()
	if err := f.msgs.Append(chID, whoami, rejectState, now); err != nil {
		return ApproveResult{}, fmt.Errorf("follower: persist reject state: %w", err)
	}
	log.Debugf(f.log, "rejecting new state", log.String("reason", reason))

	results := f.prop.Propagate(ctx, chID, []propagation.Validator{leader}, []vmsg.Message{rejectState})
	return ApproveResult{Outcome: Rejected, StateRoot: newState.StateRoot, Reason: reason, Propagation: results}, nil
}

func (f *Follower) heartbeat(ctx context.Context, chContext channel.Context, leader propagation.Validator, now time.Time) ([]propagation.Result, error) {
	chID := chContext.Channel.ID()
	digest := vmsg.HeartbeatDigest(chID, now)

	sig, err := f.adapter.Sign(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("follower: sign heartbeat: %w", err)
	}

	hb := vmsg.Heartbeat{StateRoot: digest, Signature: sig, Timestamp: now}
	if err := f.msgs.Append(chID, f.adapter.Whoami(), hb, now); err != nil {
		return nil, fmt.Errorf("follower: persist heartbeat: %w", err)
	}

	return f.prop.Propagate(ctx, chID, []propagation.Validator{leader}, []vmsg.Message{hb}), nil
}
