// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package channel

import (
	"errors"
	"fmt"

	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/unifiednum"
)

// ErrTokenNotWhitelisted is returned when a Channel's token is not present
// in the validator's configured token whitelist.
var ErrTokenNotWhitelisted = errors.New("channel: token not whitelisted")

// TokenInfo describes a whitelisted ERC20-style token's native precision
// and the validator's minimum acceptable deposit/fee for it.
type TokenInfo struct {
	Precision            uint8              `json:"precision"`
	MinTokenUnitsDeposit  uint64             `json:"minTokenUnitsForDeposit"`
	MinValidatorFee       unifiednum.UnifiedNum `json:"minValidatorFee"`
}

// ChainID identifies the chain a Channel is deployed on.
type ChainID uint64

// Context binds a Channel to the chain it lives on and the native-precision
// metadata of its token, so that amounts can be converted between
// UnifiedNum and the token's native units.
type Context struct {
	Channel Channel
	ChainID ChainID
	Token   TokenInfo
}

// NewContext validates that token is whitelisted before binding it to ch.
func NewContext(ch Channel, chainID ChainID, whitelist map[ids.Address]TokenInfo) (Context, error) {
	info, ok := whitelist[ch.Token]
	if !ok {
		return Context{}, fmt.Errorf("%w: %s", ErrTokenNotWhitelisted, ch.Token)
	}
	return Context{Channel: ch, ChainID: chainID, Token: info}, nil
}

// ToNative converts a UnifiedNum amount to the channel token's native
// precision.
func (c Context) ToNative(amount unifiednum.UnifiedNum) (uint64, error) {
	return unifiednum.ToNative(amount, c.Token.Precision)
}

// FromNative converts a raw native-precision amount back to UnifiedNum.
func (c Context) FromNative(amount uint64) (unifiednum.UnifiedNum, error) {
	return unifiednum.FromNative(amount, c.Token.Precision)
}
