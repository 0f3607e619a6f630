// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package channel implements the immutable Channel tuple, its deterministic
// ChannelId, and the ChannelContext binding a Channel to a chain and a
// token's native precision.
package channel

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/luxfi/outpace/pkg/crypto"
	"github.com/luxfi/outpace/pkg/ids"
)

// ID is the 32-byte keccak256 digest of a Channel's ABI-encoded tuple. It is
// the on-chain identifier for the channel.
type ID [32]byte

// String renders the ID as "0x"-prefixed lowercase hex.
func (id ID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// Bytes returns the raw 32 bytes.
func (id ID) Bytes() []byte {
	return id[:]
}

// IDFromHex parses a ChannelId from hex, with or without the "0x" prefix.
func IDFromHex(s string) (ID, error) {
	var id ID
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("channel: decode id hex: %w", err)
	}
	if len(b) != 32 {
		return id, fmt.Errorf("channel: invalid id length: expected 32, got %d", len(b))
	}
	copy(id[:], b)
	return id, nil
}

func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

func (id *ID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := IDFromHex(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Nonce is an unsigned 256-bit channel nonce, used to let the same
// leader/follower/guardian/token tuple mint distinct channels.
type Nonce struct {
	v *big.Int
}

// NonceFromUint64 builds a Nonce from a small integer.
func NonceFromUint64(v uint64) Nonce {
	return Nonce{v: new(big.Int).SetUint64(v)}
}

// NonceFromString parses a base-10 nonce string.
func NonceFromString(s string) (Nonce, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Nonce{}, fmt.Errorf("channel: invalid nonce %q", s)
	}
	return Nonce{v: v}, nil
}

// Bytes returns the nonce as a 32-byte big-endian array, the same encoding
// used by the on-chain ABI as a FixedBytes(32) token.
func (n Nonce) Bytes() [32]byte {
	var out [32]byte
	if n.v == nil {
		return out
	}
	b := n.v.Bytes()
	copy(out[32-len(b):], b)
	return out
}

func (n Nonce) String() string {
	if n.v == nil {
		return "0"
	}
	return n.v.String()
}

func (n Nonce) MarshalJSON() ([]byte, error) {
	return []byte(`"` + n.String() + `"`), nil
}

func (n *Nonce) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := NonceFromString(s)
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// Channel is the immutable tuple identifying an off-chain payment channel.
// Leader and Follower are ValidatorIds: an Address acting in a signer role.
type Channel struct {
	Leader   ids.Address `json:"leader"`
	Follower ids.Address `json:"follower"`
	Guardian ids.Address `json:"guardian"`
	Token    ids.Address `json:"token"`
	Nonce    Nonce       `json:"nonce"`
}

// ID computes the deterministic ChannelId: keccak256 of the ABI-encoded
// tuple (leader, follower, guardian, token as 32-byte left-padded addresses,
// nonce as a 32-byte big-endian FixedBytes). This must byte-for-byte match
// the on-chain OUTPACE contract's channel id computation.
func (c Channel) ID() ID {
	var buf [5 * 32]byte
	abiEncodeAddress(buf[0*32:1*32], c.Leader)
	abiEncodeAddress(buf[1*32:2*32], c.Follower)
	abiEncodeAddress(buf[2*32:3*32], c.Guardian)
	abiEncodeAddress(buf[3*32:4*32], c.Token)
	nonce := c.Nonce.Bytes()
	copy(buf[4*32:5*32], nonce[:])

	digest := crypto.Keccak256(buf[:])
	return ID(digest)
}

// FindValidator reports whether validator is this channel's leader or
// follower, returning "" if neither.
func (c Channel) FindValidator(validator ids.Address) (role string, ok bool) {
	switch {
	case validator.Equal(c.Leader):
		return "leader", true
	case validator.Equal(c.Follower):
		return "follower", true
	default:
		return "", false
	}
}

// abiEncodeAddress left-pads a 20-byte Address into a 32-byte ABI word, the
// standard Solidity ABI encoding for the `address` type.
func abiEncodeAddress(word []byte, addr ids.Address) {
	for i := range word {
		word[i] = 0
	}
	copy(word[12:], addr.Bytes())
}
