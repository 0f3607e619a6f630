// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sentryapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/luxfi/outpace/pkg/accounting"
	"github.com/luxfi/outpace/pkg/aggregator"
	"github.com/luxfi/outpace/pkg/campaign"
	"github.com/luxfi/outpace/pkg/channel"
	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/pricing"
	"github.com/luxfi/outpace/pkg/unifiednum"
)

// validatorDescRequest is the wire shape of a campaign's leader/follower
// entry: an address plus its fee per 1000 events, in base units.
type validatorDescRequest struct {
	ID  ids.Address           `json:"id"`
	Fee unifiednum.UnifiedNum `json:"fee"`
}

func (v validatorDescRequest) toValidatorDesc() accounting.ValidatorDesc {
	return accounting.ValidatorDesc{ID: v.ID, Fee: v.Fee}
}

// createCampaignRequest is POST /campaign's body; ID is optional, a fresh
// one is minted when omitted.
type createCampaignRequest struct {
	ID             string                           `json:"id"`
	Channel        string                           `json:"channel"`
	Budget         unifiednum.UnifiedNum            `json:"budget"`
	Leader         validatorDescRequest             `json:"leader"`
	Follower       validatorDescRequest             `json:"follower"`
	PricingBounds  map[string]campaign.PriceBounds  `json:"pricingBounds"`
	TargetingRules pricing.Rules                    `json:"targetingRules"`
	AdUnits        []campaign.AdUnit                `json:"adUnits"`
	ActiveFrom     time.Time                        `json:"activeFrom"`
	ActiveTo       time.Time                        `json:"activeTo"`
}

// createCampaign implements POST /campaign: the creator is recorded as
// whoever's bearer token signed the request, or the zero address if none
// was presented — the REST layer's own access control beyond "was this
// request authenticated at all" is left to its deployment, matching the
// original sentry's own thin campaign-creation gate.
func (s *Server) createCampaign(c *gin.Context) {
	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	chID, err := channel.IDFromHex(req.Channel)
	if err != nil {
		badRequest(c, err)
		return
	}

	creator := ids.Address{}
	if verified, ok := verifiedFrom(c); ok {
		creator = verified.Signer
	}

	camp := campaign.New(
		id, chID, creator, req.Budget,
		req.Leader.toValidatorDesc(), req.Follower.toValidatorDesc(),
		req.PricingBounds, req.TargetingRules, req.AdUnits,
		campaign.Active{From: req.ActiveFrom, To: req.ActiveTo},
	)

	if err := s.campaigns.Create(camp); err != nil {
		if err == campaign.ErrAlreadyExists {
			conflict(c, "campaign already exists")
			return
		}
		internalError(c, err)
		return
	}
	success(c, gin.H{"success": true})
}

// updateCampaignRequest is POST /campaign/{id}'s body: only targeting rules,
// pricing bounds and ad unit inventory can change after creation.
type updateCampaignRequest struct {
	PricingBounds  map[string]campaign.PriceBounds `json:"pricingBounds"`
	TargetingRules pricing.Rules                   `json:"targetingRules"`
	AdUnits        []campaign.AdUnit               `json:"adUnits"`
}

// updateCampaign implements POST /campaign/{id}.
func (s *Server) updateCampaign(c *gin.Context) {
	camp, ok := s.mustCampaign(c)
	if !ok {
		return
	}
	verified, ok := verifiedFrom(c)
	if !ok || !verified.Signer.Equal(camp.Creator) {
		unauthorized(c, errNotCampaignCreator)
		return
	}

	var req updateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.PricingBounds != nil {
		camp.PricingBounds = req.PricingBounds
	}
	camp.UpdateTargeting(req.TargetingRules)
	if req.AdUnits != nil {
		camp.AdUnits = req.AdUnits
	}

	if err := s.campaigns.Update(camp); err != nil {
		internalError(c, err)
		return
	}
	success(c, gin.H{"success": true})
}

// closeCampaign implements POST /campaign/{id}/close.
func (s *Server) closeCampaign(c *gin.Context) {
	camp, ok := s.mustCampaign(c)
	if !ok {
		return
	}
	verified, ok := verifiedFrom(c)
	if !ok || !verified.Signer.Equal(camp.Creator) {
		unauthorized(c, errNotCampaignCreator)
		return
	}
	camp.Close()
	if err := s.campaigns.Update(camp); err != nil {
		internalError(c, err)
		return
	}
	success(c, gin.H{"success": true})
}

// submitEventsRequest is POST /campaign/{id}/events's body.
type submitEventsRequest struct {
	Events  []aggregator.Event `json:"events"`
	Session aggregator.Session `json:"session"`
}

// submitEvents implements POST /campaign/{id}/events: PAY events are only
// accepted when the caller authenticated as the campaign's creator, the
// same gate aggregator.InsertEvents enforces for the rest of the pipeline.
func (s *Server) submitEvents(c *gin.Context) {
	camp, ok := s.mustCampaign(c)
	if !ok {
		return
	}

	var req submitEventsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	isCreator := false
	if verified, ok := verifiedFrom(c); ok {
		isCreator = verified.Signer.Equal(camp.Creator)
	}

	report, err := s.aggregator.InsertEvents(time.Now().UTC(), camp, aggregator.InsertEventsRequest{
		Events:  req.Events,
		Session: req.Session,
	}, aggregator.AdSlotContext{}, isCreator)
	if err != nil {
		internalError(c, err)
		return
	}
	if err := s.campaigns.Update(camp); err != nil {
		internalError(c, err)
		return
	}
	success(c, gin.H{"accepted": report.Accepted, "dropped": report.Dropped})
}

// listCampaigns implements GET /campaign/list.
func (s *Server) listCampaigns(c *gin.Context) {
	page := pageParam(c)
	filter := campaign.Filter{}
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
	if activeToGE := c.Query("activeToGE"); activeToGE != "" {
		ts, err := time.Parse(time.RFC3339, activeToGE)
		if err != nil {
			badRequest(c, err)
			return
		}
		filter.ActiveToGE = ts
	}

	campaigns, err := s.campaigns.List(page, filter)
	if err != nil {
		internalError(c, err)
		return
	}
	success(c, gin.H{"campaigns": campaigns})
}

func (s *Server) mustCampaign(c *gin.Context) (*campaign.Campaign, bool) {
	camp, err := s.campaigns.Fetch(c.Param("id"))
	if err != nil {
		internalError(c, err)
		return nil, false
	}
	if camp == nil {
		notFound(c, "unknown campaign")
		return nil, false
	}
	return camp, true
}
