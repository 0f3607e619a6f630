// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package crypto

import (
	"crypto/ecdsa"
	"fmt"

	luxcrypto "github.com/luxfi/crypto"

	"github.com/luxfi/outpace/pkg/ids"
)

// ethSignedMessagePrefix mirrors Ethereum's personal_sign prefix, applied
// before signing a state root or EWT header/payload digest so that the
// resulting signature is verifiable by the same convention the on-chain
// OUTPACE verifier uses.
const ethSignedMessagePrefix = "\x19Ethereum Signed Message:\n32"

// Keccak256 hashes data the same way the on-chain ABI encoder does, so that
// state roots and ChannelIds computed here match what a verifier contract
// would recompute.
func Keccak256(data ...[]byte) [32]byte {
	var out [32]byte
	copy(out[:], luxcrypto.Keccak256(data...))
	return out
}

// ToEthSignedMessage applies the Ethereum Signed Message prefix to a 32-byte
// digest, matching the `to_ethereum_signed` step used by the reference
// adapter before producing a validator signature.
func ToEthSignedMessage(digest [32]byte) [32]byte {
	return Keccak256([]byte(ethSignedMessagePrefix), digest[:])
}

// Sign produces an Ethereum-style recoverable signature (65 bytes: r||s||v,
// v in {0,1}) over digest using priv. Callers that need on-chain/EWT
// compatible signatures should sign ToEthSignedMessage(digest), not digest
// directly.
func Sign(digest [32]byte, priv *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := luxcrypto.Sign(digest[:], priv)
	if err != nil {
		return nil, fmt.Errorf("sign digest: %w", err)
	}
	return sig, nil
}

// Recover recovers the signer Address from a digest and a 65-byte recoverable
// signature.
func Recover(digest [32]byte, sig []byte) (ids.Address, error) {
	pub, err := luxcrypto.SigToPub(digest[:], sig)
	if err != nil {
		return ids.Address{}, fmt.Errorf("recover pubkey: %w", err)
	}
	return PubkeyToAddress(pub), nil
}

// VerifySignature reports whether sig over digest recovers to signer.
func VerifySignature(signer ids.Address, digest [32]byte, sig []byte) (bool, error) {
	recovered, err := Recover(digest, sig)
	if err != nil {
		return false, err
	}
	return recovered.Equal(signer), nil
}

// PubkeyToAddress derives the 20-byte Address from an ECDSA public key the
// same way Ethereum does: the low 20 bytes of keccak256 of the uncompressed
// public key, excluding its leading 0x04 marker byte.
func PubkeyToAddress(pub *ecdsa.PublicKey) ids.Address {
	raw := luxcrypto.FromECDSAPub(pub)
	hash := Keccak256(raw[1:])
	var addr ids.Address
	copy(addr[:], hash[12:])
	return addr
}

// GenerateIdentity creates a fresh ECDSA keypair and returns both the
// private key and the Address it corresponds to.
func GenerateIdentity() (*ecdsa.PrivateKey, ids.Address, error) {
	priv, err := luxcrypto.GenerateKey()
	if err != nil {
		return nil, ids.Address{}, fmt.Errorf("generate key: %w", err)
	}
	return priv, PubkeyToAddress(&priv.PublicKey), nil
}
