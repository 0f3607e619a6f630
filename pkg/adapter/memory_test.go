// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package adapter

import (
	"context"
	"testing"

	"github.com/luxfi/outpace/pkg/channel"
	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/unifiednum"
)

func TestMemorySignRequiresUnlock(t *testing.T) {
	m, err := NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := m.Sign(ctx, [32]byte{1}); err != ErrLocked {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if err := m.Unlock(ctx, ""); err != nil {
		t.Fatal(err)
	}
	sig, err := m.Sign(ctx, [32]byte{1})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ok, err := m.Verify(ctx, m.Whoami(), [32]byte{1}, sig)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected signature to verify against own identity")
	}
}

func TestMemoryVerifyIdentityDelegation(t *testing.T) {
	m, err := NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	identity := ids.Address{9}
	ok, err := m.VerifyIdentity(ctx, identity, m.Whoami())
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected no delegation to be registered yet")
	}
	m.SetIdentity(identity, m.Whoami())
	ok, err = m.VerifyIdentity(ctx, identity, m.Whoami())
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected delegation to verify once registered")
	}
}

func TestMemoryGetDeposit(t *testing.T) {
	m, err := NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	ch := channel.Channel{Leader: ids.Address{1}, Follower: ids.Address{2}, Token: ids.Address{3}}
	spender := ids.Address{4}

	amount, err := unifiednum.FromWhole(100)
	if err != nil {
		t.Fatal(err)
	}
	m.SetDeposit(ch, spender, amount)

	got, err := m.GetDeposit(context.Background(), ch, spender)
	if err != nil {
		t.Fatal(err)
	}
	if got != amount {
		t.Fatalf("expected deposit %s, got %s", amount, got)
	}
}
