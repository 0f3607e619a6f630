// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package accounting

import (
	"errors"
	"math/big"

	"github.com/luxfi/outpace/pkg/balances"
	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/unifiednum"
	"github.com/shopspring/decimal"
)

// decimalFromUnified renders a UnifiedNum's raw uint64 base-unit amount as a
// decimal.Decimal, going through math/big so values above math.MaxInt64
// don't silently wrap through a signed int64 cast.
func decimalFromUnified(u unifiednum.UnifiedNum) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(u)), 0)
}

// ErrFeeConstraintViolated is returned when a campaign's validator fees
// exceed its deposit, or its distributed balances exceed its deposit
// (OUTPACE rule 4) — neither can happen for a genuinely Checked ledger, but
// ApplyFeesView is handed an arbitrary deposit figure by its caller, so it
// re-checks both.
var ErrFeeConstraintViolated = errors.New("accounting: fee constraint violated")

// ValidatorDesc is a campaign's validator entry: the address earning a
// fee, and the fee amount charged per 1000 events.
type ValidatorDesc struct {
	ID  ids.Address
	Fee unifiednum.UnifiedNum
}

// ApplyFeesView returns a *reporting-only* projection of balances: what each
// earner/spender would hold after distributing the campaign's deposit
// proportionally between "amount actually spent" and "leader/follower
// validator fees". It never mutates Accounting — ledger truth is always the
// unadjusted Checked balances from the Event Aggregator; this exists purely
// so a dashboard can show advertisers/publishers a post-fee estimate.
//
// The distribution mirrors a deposit being split into two pools:
//   - to_distribute = deposit - sum(validator fees)
//   - every existing balance is scaled by ratio = to_distribute / deposit
//   - the leftover from integer rounding is folded into the first
//     validator's fee row, and each validator's fee (scaled by
//     fee_ratio = total_distributed / deposit) is added as its own entry
func ApplyFeesView(bal balances.Checked, deposit unifiednum.UnifiedNum, validators []ValidatorDesc) (balances.Checked, error) {
	dist, err := newDistribution(bal, deposit, validators)
	if err != nil {
		return balances.Checked{}, err
	}

	out := balances.New()
	var total unifiednum.UnifiedNum
	var addOk bool

	adjust := func(m map[ids.Address]unifiednum.UnifiedNum, into map[ids.Address]unifiednum.UnifiedNum) error {
		for addr, amount := range m {
			adjusted, ok := scaleByRatio(amount, dist.ratio)
			if !ok {
				return ErrFeeConstraintViolated
			}
			into[addr] = adjusted
			total, addOk = total.Add(adjusted)
			if !addOk {
				return ErrFeeConstraintViolated
			}
		}
		return nil
	}
	if err := adjust(bal.Earners, out.Earners); err != nil {
		return balances.Checked{}, err
	}
	if err := adjust(bal.Spenders, out.Spenders); err != nil {
		return balances.Checked{}, err
	}

	roundingError, err := dist.roundingError(total)
	if err != nil {
		return balances.Checked{}, err
	}

	return distributeFee(out, roundingError, dist.feeRatio, validators)
}

type distribution struct {
	deposit          unifiednum.UnifiedNum
	totalDistributed unifiednum.UnifiedNum
	validatorsFee    unifiednum.UnifiedNum
	toDistribute     unifiednum.UnifiedNum
	ratio            decimal.Decimal // toDistribute / deposit
	feeRatio         decimal.Decimal // totalDistributed / deposit
}

func newDistribution(bal balances.Checked, deposit unifiednum.UnifiedNum, validators []ValidatorDesc) (*distribution, error) {
	var totalDistributed unifiednum.UnifiedNum
	var ok bool
	for _, v := range bal.Earners {
		if totalDistributed, ok = totalDistributed.Add(v); !ok {
			return nil, ErrFeeConstraintViolated
		}
	}

	var validatorsFee unifiednum.UnifiedNum
	for _, v := range validators {
		if validatorsFee, ok = validatorsFee.Add(v.Fee); !ok {
			return nil, ErrFeeConstraintViolated
		}
	}

	if validatorsFee > deposit {
		return nil, ErrFeeConstraintViolated
	}
	if totalDistributed > deposit {
		return nil, ErrFeeConstraintViolated
	}

	toDistribute, ok := deposit.Sub(validatorsFee)
	if !ok {
		return nil, ErrFeeConstraintViolated
	}

	depositDec := decimalFromUnified(deposit)
	if depositDec.IsZero() {
		return nil, ErrFeeConstraintViolated
	}

	return &distribution{
		deposit:          deposit,
		totalDistributed: totalDistributed,
		validatorsFee:    validatorsFee,
		toDistribute:     toDistribute,
		ratio:            decimalFromUnified(toDistribute).Div(depositDec),
		feeRatio:         decimalFromUnified(totalDistributed).Div(depositDec),
	}, nil
}

// roundingError is to_distribute - total once every balance has
// been scaled down, but only when the original ledger exactly accounted
// for the whole deposit; otherwise there is no rounding error to recover.
func (d *distribution) roundingError(totalAfterScaling unifiednum.UnifiedNum) (unifiednum.UnifiedNum, error) {
	if d.deposit != d.totalDistributed {
		return 0, nil
	}
	roundingError, ok := d.toDistribute.Sub(totalAfterScaling)
	if !ok {
		return 0, ErrFeeConstraintViolated
	}
	return roundingError, nil
}

func distributeFee(bal balances.Checked, roundingError unifiednum.UnifiedNum, feeRatio decimal.Decimal, validators []ValidatorDesc) (balances.Checked, error) {
	for i, v := range validators {
		fee, ok := scaleByRatio(v.Fee, feeRatio)
		if !ok {
			return balances.Checked{}, ErrFeeConstraintViolated
		}
		if i == 0 {
			fee, ok = fee.Add(roundingError)
			if !ok {
				return balances.Checked{}, ErrFeeConstraintViolated
			}
		}
		if fee.IsZero() {
			continue
		}
		existing := bal.Earners[v.ID]
		updated, ok := existing.Add(fee)
		if !ok {
			return balances.Checked{}, ErrFeeConstraintViolated
		}
		bal.Earners[v.ID] = updated
	}
	return bal, nil
}

// scaleByRatio returns floor(amount * ratio), reporting false if the
// result doesn't fit in a UnifiedNum's uint64 base-unit representation.
func scaleByRatio(amount unifiednum.UnifiedNum, ratio decimal.Decimal) (unifiednum.UnifiedNum, bool) {
	scaled := decimalFromUnified(amount).Mul(ratio).Floor()
	bi := scaled.BigInt()
	if scaled.IsNegative() || !bi.IsUint64() {
		return 0, false
	}
	return unifiednum.UnifiedNum(bi.Uint64()), true
}
