// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package adapter defines the external collaborator boundary every
// validator component signs, verifies, and reads deposits through. Only the
// interface and a deterministic in-memory test double are implemented here;
// a real chain-RPC adapter (hardware/software wallet signing, eth_call
// deposit queries, EIP-1271 isValidSignature calls) is out of scope.
package adapter

import (
	"context"
	"errors"

	"github.com/luxfi/outpace/pkg/channel"
	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/unifiednum"
)

// ErrLocked is returned by Sign when the adapter hasn't been Unlocked yet.
var ErrLocked = errors.New("adapter: locked")

// Adapter signs and verifies state roots, resolves on-chain deposits, and
// reports the validator's own identity. Leader/Follower ticks depend only on
// this interface, never on a concrete chain client.
type Adapter interface {
	// Sign produces a signature over stateRoot under this validator's key.
	// Fails with ErrLocked if Unlock hasn't succeeded yet.
	Sign(ctx context.Context, stateRoot [32]byte) ([]byte, error)

	// Verify reports whether sig over stateRoot was produced by signer.
	Verify(ctx context.Context, signer ids.Address, stateRoot [32]byte, sig []byte) (bool, error)

	// VerifyIdentity reports whether identity is validly represented by
	// signer, supporting both plain EOA equality and EIP-1271 contract
	// signer delegation.
	VerifyIdentity(ctx context.Context, identity ids.Address, signer ids.Address) (bool, error)

	// GetDeposit returns spender's total on-chain deposit into ch.
	GetDeposit(ctx context.Context, ch channel.Channel, spender ids.Address) (unifiednum.UnifiedNum, error)

	// Whoami returns this validator's own Address.
	Whoami() ids.Address

	// Unlock transitions the adapter from Locked to Unlocked so Sign can
	// succeed, analogous to decrypting a keystore with passphrase.
	Unlock(ctx context.Context, passphrase string) error
}
