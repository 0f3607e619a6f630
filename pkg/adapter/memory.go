// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package adapter

import (
	"context"
	"crypto/ecdsa"
	"sync"

	"github.com/luxfi/outpace/pkg/channel"
	"github.com/luxfi/outpace/pkg/crypto"
	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/unifiednum"
)

// Memory is a deterministic in-memory Adapter used by every unit test that
// needs to sign, verify, or look up a deposit without a real chain client.
type Memory struct {
	mu       sync.Mutex
	priv     *ecdsa.PrivateKey
	identity ids.Address
	unlocked bool

	// deposits maps (channel id, spender) to a fixed on-chain deposit
	// amount, pre-seeded by tests via SetDeposit.
	deposits map[channel.ID]map[ids.Address]unifiednum.UnifiedNum

	// identities maps an EIP-1271-style contract identity to the signer
	// address allowed to act on its behalf, pre-seeded via SetIdentity.
	identities map[ids.Address]ids.Address
}

// NewMemory generates a fresh keypair and returns a locked Memory adapter
// identified by its corresponding Address.
func NewMemory() (*Memory, error) {
	priv, addr, err := crypto.GenerateIdentity()
	if err != nil {
		return nil, err
	}
	return &Memory{
		priv:       priv,
		identity:   addr,
		deposits:   make(map[channel.ID]map[ids.Address]unifiednum.UnifiedNum),
		identities: make(map[ids.Address]ids.Address),
	}, nil
}

func (m *Memory) Whoami() ids.Address {
	return m.identity
}

func (m *Memory) Unlock(_ context.Context, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unlocked = true
	return nil
}

func (m *Memory) Sign(_ context.Context, stateRoot [32]byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.unlocked {
		return nil, ErrLocked
	}
	return crypto.Sign(stateRoot, m.priv)
}

func (m *Memory) Verify(_ context.Context, signer ids.Address, stateRoot [32]byte, sig []byte) (bool, error) {
	return crypto.VerifySignature(signer, stateRoot, sig)
}

// VerifyIdentity accepts a plain signer==identity match, or a delegation
// previously registered via SetIdentity (the in-memory stand-in for an
// EIP-1271 isValidSignature call).
func (m *Memory) VerifyIdentity(_ context.Context, identity ids.Address, signer ids.Address) (bool, error) {
	if identity.Equal(signer) {
		return true, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delegate, ok := m.identities[identity]
	return ok && delegate.Equal(signer), nil
}

func (m *Memory) GetDeposit(_ context.Context, ch channel.Channel, spender ids.Address) (unifiednum.UnifiedNum, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deposits[ch.ID()][spender], nil
}

// SetDeposit seeds the deposit GetDeposit reports for (ch, spender).
func (m *Memory) SetDeposit(ch channel.Channel, spender ids.Address, amount unifiednum.UnifiedNum) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byChannel, ok := m.deposits[ch.ID()]
	if !ok {
		byChannel = make(map[ids.Address]unifiednum.UnifiedNum)
		m.deposits[ch.ID()] = byChannel
	}
	byChannel[spender] = amount
}

// SetIdentity registers delegate as a valid signer for identity.
func (m *Memory) SetIdentity(identity, delegate ids.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[identity] = delegate
}
