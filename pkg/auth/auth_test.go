// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/luxfi/outpace/pkg/adapter"
	"github.com/luxfi/outpace/pkg/ids"
)

func unlockedMemory(t *testing.T) *adapter.Memory {
	t.Helper()
	ad, err := adapter.NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	if err := ad.Unlock(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	return ad
}

func TestSignVerifyRoundTrip(t *testing.T) {
	signer := unlockedMemory(t)
	recipient := ids.Address{1}

	payload := Payload{ID: recipient, Era: Era(time.Now()), Address: signer.Whoami(), ChainID: 1337}
	token, err := Sign(context.Background(), signer, payload)
	if err != nil {
		t.Fatal(err)
	}

	verified, err := Verify(context.Background(), signer, token, recipient)
	if err != nil {
		t.Fatal(err)
	}
	if !verified.Signer.Equal(signer.Whoami()) {
		t.Fatalf("expected signer %s, got %s", signer.Whoami(), verified.Signer)
	}
	if verified.Payload.ChainID != 1337 {
		t.Fatalf("expected chainId 1337, got %d", verified.Payload.ChainID)
	}
}

func TestVerifyRejectsWrongRecipient(t *testing.T) {
	signer := unlockedMemory(t)
	recipient := ids.Address{1}

	payload := Payload{ID: recipient, Era: Era(time.Now()), Address: signer.Whoami()}
	token, err := Sign(context.Background(), signer, payload)
	if err != nil {
		t.Fatal(err)
	}

	_, err = Verify(context.Background(), signer, token, ids.Address{2})
	if err != ErrWrongRecipient {
		t.Fatalf("expected ErrWrongRecipient, got %v", err)
	}
}

func TestVerifyAcceptsDelegatedIdentity(t *testing.T) {
	signer := unlockedMemory(t)
	recipient := ids.Address{1}
	identity := ids.Address{9}

	signer.SetIdentity(identity, signer.Whoami())

	payload := Payload{ID: recipient, Era: Era(time.Now()), Address: ids.Address{3}, Identity: &identity}
	token, err := Sign(context.Background(), signer, payload)
	if err != nil {
		t.Fatal(err)
	}

	verified, err := Verify(context.Background(), signer, token, recipient)
	if err != nil {
		t.Fatal(err)
	}
	if !verified.Signer.Equal(signer.Whoami()) {
		t.Fatalf("expected recovered signer %s, got %s", signer.Whoami(), verified.Signer)
	}
}

func TestVerifyRejectsUndelegatedIdentity(t *testing.T) {
	signer := unlockedMemory(t)
	recipient := ids.Address{1}
	identity := ids.Address{9}

	payload := Payload{ID: recipient, Era: Era(time.Now()), Address: ids.Address{3}, Identity: &identity}
	token, err := Sign(context.Background(), signer, payload)
	if err != nil {
		t.Fatal(err)
	}

	_, err = Verify(context.Background(), signer, token, recipient)
	if err != ErrUnauthorizedSigner {
		t.Fatalf("expected ErrUnauthorizedSigner, got %v", err)
	}
}

func TestFromAuthorizationHeaderRequiresBearerPrefix(t *testing.T) {
	signer := unlockedMemory(t)
	_, err := FromAuthorizationHeader(context.Background(), signer, "Basic abc123", signer.Whoami())
	if err != ErrMissingBearerPrefix {
		t.Fatalf("expected ErrMissingBearerPrefix, got %v", err)
	}
}
