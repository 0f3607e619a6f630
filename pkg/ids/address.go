// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ids

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// AddressLen is the length of an Address in bytes.
const AddressLen = 20

// Address is a 20-byte Ethereum-style account identifier. It is used both for
// on-chain actors (advertisers, publishers, the channel's leader/follower)
// and as a ValidatorId: a validator's Address used in its signer role.
type Address [AddressLen]byte

// EmptyAddress is the zero Address.
var EmptyAddress = Address{}

// AddressFromBytes copies b into a new Address. len(b) must be AddressLen.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLen {
		return a, fmt.Errorf("invalid address length: expected %d, got %d", AddressLen, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// AddressFromHex parses a hex string, with or without the "0x" prefix, into
// an Address. It does not enforce EIP-55 casing on input.
func AddressFromHex(s string) (Address, error) {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("decode address hex: %w", err)
	}
	return AddressFromBytes(b)
}

// Bytes returns the raw 20 bytes of the Address.
func (a Address) Bytes() []byte {
	return a[:]
}

// IsZero reports whether a is the empty Address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Hex returns the lowercase "0x"-prefixed hex encoding, without checksum casing.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

// String returns the EIP-55 checksummed "0x"-prefixed representation.
func (a Address) String() string {
	return a.Checksum()
}

// Checksum computes the EIP-55 mixed-case checksum encoding of the address:
// each hex digit is upper-cased if the corresponding nibble of
// keccak256(lowercase hex) is >= 8.
func (a Address) Checksum() string {
	lower := hex.EncodeToString(a[:])

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	hashed := h.Sum(nil)

	out := make([]byte, len(lower))
	for i, c := range []byte(lower) {
		hashByte := hashed[i/2]
		var nibble byte
		if i%2 == 0 {
			nibble = hashByte >> 4
		} else {
			nibble = hashByte & 0x0f
		}
		if c >= 'a' && c <= 'f' && nibble >= 8 {
			out[i] = c - ('a' - 'A')
		} else {
			out[i] = c
		}
	}

	return "0x" + string(out)
}

// Equal reports whether a and b hold the same bytes.
func (a Address) Equal(b Address) bool {
	return bytes.Equal(a[:], b[:])
}

func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Checksum())
}

func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := AddressFromHex(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
