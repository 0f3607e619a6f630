// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package sentryapi implements the validator REST surface: the
// public HTTP API peer validators and publishers/advertisers use to
// exchange validator messages, read accounting state, and submit
// campaigns and events. Route shapes follow the gin-based wiring the
// rest of this module's cmd/ entrypoints already use.
package sentryapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/luxfi/outpace/pkg/accounting"
	"github.com/luxfi/outpace/pkg/adapter"
	"github.com/luxfi/outpace/pkg/aggregator"
	"github.com/luxfi/outpace/pkg/campaign"
	"github.com/luxfi/outpace/pkg/log"
	"github.com/luxfi/outpace/pkg/vmsg"
)

// Server holds every collaborator the validator REST surface dispatches
// into. It owns no tick scheduling of its own — that lives in cmd/validatord
// — only the HTTP-facing read/write paths onto the same stores the tick
// loops use.
type Server struct {
	channels   *ChannelStore
	campaigns  *campaign.Store
	accounts   *accounting.Store
	msgs       *vmsg.Store
	aggregator *aggregator.Aggregator
	adapter    adapter.Adapter
	log        log.Logger
}

// New wires a Server from its component stores and collaborators.
func New(channels *ChannelStore, campaigns *campaign.Store, accounts *accounting.Store, msgs *vmsg.Store, agg *aggregator.Aggregator, ad adapter.Adapter, logger log.Logger) *Server {
	return &Server{
		channels:   channels,
		campaigns:  campaigns,
		accounts:   accounts,
		msgs:       msgs,
		aggregator: agg,
		adapter:    ad,
		log:        logger,
	}
}

// Router builds the gin engine serving every route in the validator REST
// surface, CORS-open the same way cmd/api/main.go's setupRouter is.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	ch := r.Group("/channel")
	{
		ch.POST("/:id/validator-messages", s.authAsValidator, s.postValidatorMessages)
		ch.GET("/:id/validator-messages/:from/:types", s.getValidatorMessages)
		ch.GET("/:id/last-approved", s.getLastApproved)
		ch.GET("/:id/accounting", s.getAccounting)
		ch.GET("/:id/spender/all", s.getAllSpenders)
		ch.GET("/:id/spender/:addr", s.getSpender)
		ch.GET("/list", s.listChannels)
	}

	camp := r.Group("/campaign")
	{
		camp.POST("", s.authOptional, s.createCampaign)
		camp.POST("/:id", s.authOptional, s.updateCampaign)
		camp.POST("/:id/events", s.authOptional, s.submitEvents)
		camp.POST("/:id/close", s.authOptional, s.closeCampaign)
		camp.GET("/list", s.listCampaigns)
	}

	return r
}
