// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sentryapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/luxfi/outpace/pkg/channel"
	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/vmsg"
)

// postValidatorMessages implements POST /channel/{id}/validator-messages:
// appends every message in the body as sent by the verified caller,
// the propagation wire format pkg/propagation.Client.Propagate posts.
func (s *Server) postValidatorMessages(c *gin.Context) {
	chID, err := channel.IDFromHex(c.Param("id"))
	if err != nil {
		badRequest(c, err)
		return
	}
	verified, ok := verifiedFrom(c)
	if !ok {
		unauthorized(c, errUnauthorizedValidator)
		return
	}

	var body struct {
		Messages []vmsg.Envelope `json:"messages"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	now := time.Now().UTC()
	for _, env := range body.Messages {
		if err := s.msgs.Append(chID, verified.Signer, env.Message, now); err != nil {
			internalError(c, err)
			return
		}
	}
	success(c, gin.H{"success": true})
}

// getValidatorMessages implements GET
// /channel/{id}/validator-messages/{from}/{types}?limit=N: {types} is one
// or more '+'-joined Kind names.
func (s *Server) getValidatorMessages(c *gin.Context) {
	chID, err := channel.IDFromHex(c.Param("id"))
	if err != nil {
		badRequest(c, err)
		return
	}
	from, err := ids.AddressFromHex(c.Param("from"))
	if err != nil {
		badRequest(c, err)
		return
	}

	kinds := parseKinds(c.Param("types"))
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		limit = n
	}

	received, err := s.msgs.LatestN(chID, from, limit, kinds...)
	if err != nil {
		internalError(c, err)
		return
	}
	envelopes := make([]vmsg.Envelope, len(received))
	for i, r := range received {
		envelopes[i] = vmsg.Envelope{Message: r.Message}
	}
	success(c, gin.H{"messages": envelopes})
}

func parseKinds(types string) []vmsg.Kind {
	parts := strings.Split(types, "+")
	kinds := make([]vmsg.Kind, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		kinds = append(kinds, vmsg.Kind(p))
	}
	return kinds
}

// lastApprovedResponse is GET /channel/{id}/last-approved's body: the
// leader's latest NewState paired with this validator's own latest
// ApproveState/RejectState response to it, plus optionally each side's
// latest Heartbeat.
type lastApprovedResponse struct {
	NewState      *vmsg.Envelope `json:"newState,omitempty"`
	Approve       *vmsg.Envelope `json:"approveState,omitempty"`
	LeaderHeartbt *vmsg.Envelope `json:"leaderHeartbeat,omitempty"`
	OwnHeartbeat  *vmsg.Envelope `json:"ownHeartbeat,omitempty"`
}

// getLastApproved implements GET /channel/{id}/last-approved?withHeartbeat=bool.
func (s *Server) getLastApproved(c *gin.Context) {
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

	var resp lastApprovedResponse

	leaderState, hasLeaderState, err := s.msgs.Latest(chID, ctx.Channel.Leader, vmsg.KindNewState)
	if err != nil {
		internalError(c, err)
		return
	}
	if hasLeaderState {
		resp.NewState = &vmsg.Envelope{Message: leaderState.Message}
	}

	ownResponse, hasOwn, err := s.msgs.Latest(chID, s.adapter.Whoami(), vmsg.KindApproveState, vmsg.KindRejectState)
	if err != nil {
		internalError(c, err)
		return
	}
	if hasOwn {
		resp.Approve = &vmsg.Envelope{Message: ownResponse.Message}
	}

	if c.Query("withHeartbeat") == "true" {
		if hb, ok, err := s.msgs.Latest(chID, ctx.Channel.Leader, vmsg.KindHeartbeat); err == nil && ok {
			resp.LeaderHeartbt = &vmsg.Envelope{Message: hb.Message}
		}
		if hb, ok, err := s.msgs.Latest(chID, s.adapter.Whoami(), vmsg.KindHeartbeat); err == nil && ok {
			resp.OwnHeartbeat = &vmsg.Envelope{Message: hb.Message}
		}
	}

	success(c, resp)
}
