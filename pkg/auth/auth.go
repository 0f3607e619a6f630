// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package auth implements Ethereum Web Tokens (EWT): the
// header.payload.signature bearer tokens validators and sentries exchange
// to authenticate a request. A token is addressed to a specific validator
// (payload.id) and signed by either the address it names directly, or by a
// signer delegated through an on-chain Identity contract (payload.identity,
// checked via Adapter.VerifyIdentity).
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/luxfi/outpace/pkg/adapter"
	"github.com/luxfi/outpace/pkg/crypto"
	"github.com/luxfi/outpace/pkg/ids"
)

var (
	ErrInvalidToken        = errors.New("auth: malformed token")
	ErrInvalidHeader       = errors.New("auth: unrecognized header")
	ErrInvalidSignature    = errors.New("auth: invalid signature encoding")
	ErrWrongRecipient      = errors.New("auth: token is not addressed to this validator")
	ErrUnauthorizedSigner  = errors.New("auth: signer is not authorized for this payload")
	ErrMissingBearerPrefix = errors.New("auth: Authorization header is missing the Bearer prefix")
)

// ethSignMode is appended to the 65-byte recoverable signature to mark it
// as an EOA (Ethereum account) signature, as opposed to a future signing
// mode.
const ethSignMode = 0x01

// header is the fixed EWT header; every token uses this exact value, so it
// is compared as an opaque base64 string rather than decoded.
type header struct {
	Type string `json:"typ"`
	Alg  string `json:"alg"`
}

var ethHeader = header{Type: "JWT", Alg: "ETH"}

var ethHeaderB64 = mustBase64(ethHeader)

func mustBase64(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// Payload is the EWT claim set: id is the validator the token is intended
// for, era is minutes-since-epoch at signing time, address is the signer's
// address (or the address delegating to identity, if set).
type Payload struct {
	ID       ids.Address  `json:"id"`
	Era      int64        `json:"era"`
	Address  ids.Address  `json:"address"`
	ChainID  uint64       `json:"chainId"`
	Identity *ids.Address `json:"identity,omitempty"`
}

// Era converts t to the minutes-since-epoch unit EWT payloads carry.
func Era(t time.Time) int64 {
	return t.Unix() / 60
}

// Verified is a Payload whose signature has been checked and whose signer
// has been authorized against it.
type Verified struct {
	Signer  ids.Address
	Payload Payload
}

// Sign builds and signs an EWT token for payload using ad, returning the
// `header.payload.signature` token string.
func Sign(ctx context.Context, ad adapter.Adapter, payload Payload) (string, error) {
	payloadB64, err := base64Encode(payload)
	if err != nil {
		return "", fmt.Errorf("auth: encode payload: %w", err)
	}

	digest := digestFor(ethHeaderB64, payloadB64)
	sig, err := ad.Sign(ctx, digest)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	sig = append(sig, ethSignMode)

	sigB64 := base64.RawURLEncoding.EncodeToString(sig)
	return ethHeaderB64 + "." + payloadB64 + "." + sigB64, nil
}

// Verify parses token, recovers its signer, and authorizes the signer
// against the payload: either the signer equals payload.Address directly,
// or (when payload.Identity is set) ad.VerifyIdentity accepts the signer as
// a delegate of that identity. whoami must match payload.ID.
func Verify(ctx context.Context, ad adapter.Adapter, token string, whoami ids.Address) (*Verified, error) {
	parts := strings.SplitN(token, ".", 3)
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}
	headerB64, payloadB64, sigB64 := parts[0], parts[1], parts[2]

	if headerB64 != ethHeaderB64 {
		return nil, ErrInvalidHeader
	}

	payloadJSON, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	var payload Payload
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(sig) != 66 || sig[65] != ethSignMode {
		return nil, ErrInvalidSignature
	}

	digest := digestFor(headerB64, payloadB64)
	signer, err := crypto.Recover(digest, sig[:65])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if !payload.ID.Equal(whoami) {
		return nil, ErrWrongRecipient
	}

	if payload.Identity != nil {
		ok, err := ad.VerifyIdentity(ctx, *payload.Identity, signer)
		if err != nil {
			return nil, fmt.Errorf("auth: verify identity: %w", err)
		}
		if !ok {
			return nil, ErrUnauthorizedSigner
		}
	} else if !signer.Equal(payload.Address) {
		return nil, ErrUnauthorizedSigner
	}

	return &Verified{Signer: signer, Payload: payload}, nil
}

// FromAuthorizationHeader strips the "Bearer " scheme from header and
// verifies the remaining token, as the public API's auth middleware does
// for every incoming request that carries an Authorization header.
func FromAuthorizationHeader(ctx context.Context, ad adapter.Adapter, header string, whoami ids.Address) (*Verified, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return nil, ErrMissingBearerPrefix
	}
	return Verify(ctx, ad, strings.TrimPrefix(header, prefix), whoami)
}

func digestFor(headerB64, payloadB64 string) [32]byte {
	return crypto.ToEthSignedMessage(crypto.Keccak256([]byte(headerB64 + "." + payloadB64)))
}

func base64Encode(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
