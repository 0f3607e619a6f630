// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sentryapi

import (
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/luxfi/outpace/pkg/campaign"
	"github.com/luxfi/outpace/pkg/channel"
	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/unifiednum"
)

// getAccounting implements GET /channel/{id}/accounting: the authoritative
// earner/spender balances, as the leader/follower ticks see them.
func (s *Server) getAccounting(c *gin.Context) {
	chID, err := channel.IDFromHex(c.Param("id"))
	if err != nil {
		badRequest(c, err)
		return
	}
	acc, err := s.accounts.Fetch(chID)
	if err != nil {
		internalError(c, err)
		return
	}
	if acc == nil {
		notFound(c, "unknown channel")
		return
	}
	success(c, gin.H{
		"earners":  stringKeyed(acc.Balances.Earners),
		"spenders": stringKeyed(acc.Balances.Spenders),
	})
}

// stringKeyed renders an address-keyed balance map the way vmsg's wire
// format does: ids.Address doesn't implement encoding.TextMarshaler, so
// encoding/json can't use it directly as a map key.
func stringKeyed(m map[ids.Address]unifiednum.UnifiedNum) map[string]unifiednum.UnifiedNum {
	out := make(map[string]unifiednum.UnifiedNum, len(m))
	for addr, amount := range m {
		out[addr.String()] = amount
	}
	return out
}

// getSpender implements GET /channel/{id}/spender/{addr}: one spender's
// on-chain deposit paired with the channel's recorded total spend.
func (s *Server) getSpender(c *gin.Context) {
	chID, err := channel.IDFromHex(c.Param("id"))
	if err != nil {
		badRequest(c, err)
		return
	}
	addr, err := ids.AddressFromHex(c.Param("addr"))
	if err != nil {
		badRequest(c, err)
		return
	}

	ctx, _, err := s.channels.Fetch(chID)
	if err != nil {
		internalError(c, err)
		return
	}
	if ctx == nil {
		notFound(c, "unknown channel")
		return
	}

	spender, err := s.spenderFor(c, *ctx, addr)
	if err != nil {
		internalError(c, err)
		return
	}
	success(c, spender)
}

// getAllSpenders implements GET /channel/{id}/spender/all: every address
// that has appeared on the spender side of the channel's Accounting, paired
// with its on-chain deposit.
func (s *Server) getAllSpenders(c *gin.Context) {
	chID, err := channel.IDFromHex(c.Param("id"))
	if err != nil {
		badRequest(c, err)
		return
	}
	ctx, _, err := s.channels.Fetch(chID)
	if err != nil {
		internalError(c, err)
		return
	}
	if ctx == nil {
		notFound(c, "unknown channel")
		return
	}

	acc, err := s.accounts.Fetch(chID)
	if err != nil {
		internalError(c, err)
		return
	}

	out := make(map[string]campaign.Spender)
	if acc != nil {
		addrs := make([]ids.Address, 0, len(acc.Balances.Spenders))
		for addr := range acc.Balances.Spenders {
			addrs = append(addrs, addr)
		}
		sort.Slice(addrs, func(i, j int) bool { return addrs[i].String() < addrs[j].String() })

		for _, addr := range addrs {
			spender, err := s.spenderFor(c, *ctx, addr)
			if err != nil {
				internalError(c, err)
				return
			}
			out[addr.String()] = spender
		}
	}
	success(c, gin.H{"spenders": out})
}

func (s *Server) spenderFor(c *gin.Context, ctx channel.Context, addr ids.Address) (campaign.Spender, error) {
	deposit, err := s.adapter.GetDeposit(c.Request.Context(), ctx.Channel, addr)
	if err != nil {
		return campaign.Spender{}, err
	}

	spender := campaign.Spender{TotalDeposited: deposit}
	acc, err := s.accounts.Fetch(ctx.Channel.ID())
	if err != nil {
		return campaign.Spender{}, err
	}
	if acc != nil {
		if spent, ok := acc.Balances.Spenders[addr]; ok {
			spender.TotalSpent = &spent
		}
	}
	return spender, nil
}

// listChannels implements GET /channel/list.
func (s *Server) listChannels(c *gin.Context) {
	page := pageParam(c)
	filter := ChannelFilter{}
	if creator := c.Query("creator"); creator != "" {
		addr, err := ids.AddressFromHex(creator)
		if err != nil {
			badRequest(c, err)
			return
		}
		filter.Creator = &addr
	}
	if validator := c.Query("validator"); validator != "" {
		addr, err := ids.AddressFromHex(validator)
		if err != nil {
			badRequest(c, err)
			return
		}
		filter.Validator = &addr
	}

	channels, err := s.channels.List(page, filter)
	if err != nil {
		internalError(c, err)
		return
	}
	success(c, gin.H{"channels": channels})
}

func pageParam(c *gin.Context) int {
	raw := c.Query("page")
	if raw == "" {
		return 1
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 1
	}
	return page
}
