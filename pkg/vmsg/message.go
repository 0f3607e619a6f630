// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package vmsg implements the validator-message protocol: NewState,
// ApproveState, RejectState and Heartbeat, their wire JSON shapes, and the
// append-only per-channel message store the leader/follower ticks read and
// write through.
package vmsg

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/luxfi/outpace/pkg/balances"
	"github.com/luxfi/outpace/pkg/channel"
	"github.com/luxfi/outpace/pkg/crypto"
	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/unifiednum"
)

// Kind tags the four validator message variants.
type Kind string

const (
	KindNewState     Kind = "NewState"
	KindApproveState Kind = "ApproveState"
	KindRejectState  Kind = "RejectState"
	KindHeartbeat    Kind = "Heartbeat"
)

// Reject reasons, surfaced verbatim as RejectState.Reason.
const (
	ReasonInvalidRootHash      = "InvalidRootHash"
	ReasonInvalidSignature     = "InvalidSignature"
	ReasonInvalidTransition    = "InvalidTransition"
	ReasonTooLowHealthEarners  = "TooLowHealthEarners"
	ReasonTooLowHealthSpenders = "TooLowHealthSpenders"
)

// Message is the common interface every validator message satisfies, so a
// propagation batch can carry a heterogeneous slice.
type Message interface {
	Kind() Kind
}

// NewState is emitted by a channel's leader when its Accounting has
// advanced past the balances committed in its own last NewState.
type NewState struct {
	StateRoot [32]byte
	Signature []byte
	Balances  balances.Unchecked
}

func (NewState) Kind() Kind { return KindNewState }

// ApproveState is emitted by a follower once it has validated a leader's
// NewState and checked its health against its own Accounting.
type ApproveState struct {
	StateRoot [32]byte
	Signature []byte
	IsHealthy bool
}

func (ApproveState) Kind() Kind { return KindApproveState }

// RejectState is emitted by a follower instead of ApproveState when a
// NewState fails a validity or health check.
type RejectState struct {
	StateRoot [32]byte
	Signature []byte
	Reason    string
	Timestamp time.Time
	Balances  *balances.Unchecked
}

func (RejectState) Kind() Kind { return KindRejectState }

// Heartbeat is emitted by both validators on every tick regardless of
// whether a NewState/ApproveState was also emitted.
type Heartbeat struct {
	StateRoot [32]byte
	Signature []byte
	Timestamp time.Time
}

func (Heartbeat) Kind() Kind { return KindHeartbeat }

// HeartbeatDigest computes keccak256(channel_id || timestamp_ms_big_endian),
// the digest a Heartbeat's signature is produced over.
func HeartbeatDigest(chID channel.ID, ts time.Time) [32]byte {
	var tsBuf [8]byte
	ms := uint64(ts.UnixMilli())
	for i := 7; i >= 0; i-- {
		tsBuf[i] = byte(ms)
		ms >>= 8
	}
	return crypto.Keccak256(chID.Bytes(), tsBuf[:])
}

type wireBalances struct {
	Earners  map[string]string `json:"earners"`
	Spenders map[string]string `json:"spenders"`
}

func encodeBalances(b balances.Unchecked) wireBalances {
	w := wireBalances{Earners: map[string]string{}, Spenders: map[string]string{}}
	for addr, amount := range b.Earners {
		w.Earners[addr.String()] = amount.String()
	}
	for addr, amount := range b.Spenders {
		w.Spenders[addr.String()] = amount.String()
	}
	return w
}

func decodeBalances(w wireBalances) (balances.Unchecked, error) {
	out := balances.NewUnchecked()
	for addrHex, amountStr := range w.Earners {
		addr, amount, err := decodeEntry(addrHex, amountStr)
		if err != nil {
			return out, fmt.Errorf("vmsg: decode earner: %w", err)
		}
		out.Earners[addr] = amount
	}
	for addrHex, amountStr := range w.Spenders {
		addr, amount, err := decodeEntry(addrHex, amountStr)
		if err != nil {
			return out, fmt.Errorf("vmsg: decode spender: %w", err)
		}
		out.Spenders[addr] = amount
	}
	return out, nil
}

func (n NewState) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      Kind         `json:"type"`
		StateRoot string       `json:"stateRoot"`
		Signature string       `json:"signature"`
		Balances  wireBalances `json:"balances"`
	}{KindNewState, hexEncode(n.StateRoot[:]), hexEncode(n.Signature), encodeBalances(n.Balances)})
}

func (n *NewState) UnmarshalJSON(data []byte) error {
	var body struct {
		StateRoot string       `json:"stateRoot"`
		Signature string       `json:"signature"`
		Balances  wireBalances `json:"balances"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return fmt.Errorf("vmsg: decode NewState: %w", err)
	}
	root, err := hexDecode32(body.StateRoot)
	if err != nil {
		return fmt.Errorf("vmsg: decode NewState stateRoot: %w", err)
	}
	sig, err := hexDecode(body.Signature)
	if err != nil {
		return fmt.Errorf("vmsg: decode NewState signature: %w", err)
	}
	bal, err := decodeBalances(body.Balances)
	if err != nil {
		return err
	}
	*n = NewState{StateRoot: root, Signature: sig, Balances: bal}
	return nil
}

func (a ApproveState) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      Kind   `json:"type"`
		StateRoot string `json:"stateRoot"`
		Signature string `json:"signature"`
		IsHealthy bool   `json:"isHealthy"`
	}{KindApproveState, hexEncode(a.StateRoot[:]), hexEncode(a.Signature), a.IsHealthy})
}

func (a *ApproveState) UnmarshalJSON(data []byte) error {
	var body struct {
		StateRoot string `json:"stateRoot"`
		Signature string `json:"signature"`
		IsHealthy bool   `json:"isHealthy"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return fmt.Errorf("vmsg: decode ApproveState: %w", err)
	}
	root, err := hexDecode32(body.StateRoot)
	if err != nil {
		return fmt.Errorf("vmsg: decode ApproveState stateRoot: %w", err)
	}
	sig, err := hexDecode(body.Signature)
	if err != nil {
		return fmt.Errorf("vmsg: decode ApproveState signature: %w", err)
	}
	*a = ApproveState{StateRoot: root, Signature: sig, IsHealthy: body.IsHealthy}
	return nil
}

func (r RejectState) MarshalJSON() ([]byte, error) {
	var wireBal *wireBalances
	if r.Balances != nil {
		b := encodeBalances(*r.Balances)
		wireBal = &b
	}
	return json.Marshal(struct {
		Type      Kind          `json:"type"`
		StateRoot string        `json:"stateRoot"`
		Signature string        `json:"signature"`
		Reason    string        `json:"reason"`
		Timestamp time.Time     `json:"timestamp"`
		Balances  *wireBalances `json:"balances,omitempty"`
	}{KindRejectState, hexEncode(r.StateRoot[:]), hexEncode(r.Signature), r.Reason, r.Timestamp, wireBal})
}

func (r *RejectState) UnmarshalJSON(data []byte) error {
	var body struct {
		StateRoot string        `json:"stateRoot"`
		Signature string        `json:"signature"`
		Reason    string        `json:"reason"`
		Timestamp time.Time     `json:"timestamp"`
		Balances  *wireBalances `json:"balances"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return fmt.Errorf("vmsg: decode RejectState: %w", err)
	}
	root, err := hexDecode32(body.StateRoot)
	if err != nil {
		return fmt.Errorf("vmsg: decode RejectState stateRoot: %w", err)
	}
	sig, err := hexDecode(body.Signature)
	if err != nil {
		return fmt.Errorf("vmsg: decode RejectState signature: %w", err)
	}
	var bal *balances.Unchecked
	if body.Balances != nil {
		decoded, err := decodeBalances(*body.Balances)
		if err != nil {
			return err
		}
		bal = &decoded
	}
	*r = RejectState{StateRoot: root, Signature: sig, Reason: body.Reason, Timestamp: body.Timestamp, Balances: bal}
	return nil
}

func (h Heartbeat) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      Kind      `json:"type"`
		StateRoot string    `json:"stateRoot"`
		Signature string    `json:"signature"`
		Timestamp time.Time `json:"timestamp"`
	}{KindHeartbeat, hexEncode(h.StateRoot[:]), hexEncode(h.Signature), h.Timestamp})
}

func (h *Heartbeat) UnmarshalJSON(data []byte) error {
	var body struct {
		StateRoot string    `json:"stateRoot"`
		Signature string    `json:"signature"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return fmt.Errorf("vmsg: decode Heartbeat: %w", err)
	}
	root, err := hexDecode32(body.StateRoot)
	if err != nil {
		return fmt.Errorf("vmsg: decode Heartbeat stateRoot: %w", err)
	}
	sig, err := hexDecode(body.Signature)
	if err != nil {
		return fmt.Errorf("vmsg: decode Heartbeat signature: %w", err)
	}
	*h = Heartbeat{StateRoot: root, Signature: sig, Timestamp: body.Timestamp}
	return nil
}

// Envelope carries one Message tagged by its Kind, the wire shape used to
// decode a heterogeneous "messages": [...] array without knowing each
// entry's concrete type ahead of time.
type Envelope struct {
	Message Message
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Message)
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("vmsg: decode envelope type: %w", err)
	}
	switch head.Type {
	case KindNewState:
		var m NewState
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		e.Message = m
	case KindApproveState:
		var m ApproveState
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		e.Message = m
	case KindRejectState:
		var m RejectState
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		e.Message = m
	case KindHeartbeat:
		var m Heartbeat
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		e.Message = m
	default:
		return fmt.Errorf("vmsg: unknown message type %q", head.Type)
	}
	return nil
}

func hexEncode(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

func hexDecode(s string) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	return hex.DecodeString(s)
}

func hexDecode32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hexDecode(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("vmsg: expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

func decodeEntry(addrHex, amountStr string) (ids.Address, unifiednum.UnifiedNum, error) {
	addr, err := ids.AddressFromHex(addrHex)
	if err != nil {
		return ids.Address{}, 0, err
	}
	var amount unifiednum.UnifiedNum
	if err := json.Unmarshal([]byte(`"`+amountStr+`"`), &amount); err != nil {
		return ids.Address{}, 0, err
	}
	return addr, amount, nil
}
