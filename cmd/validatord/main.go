// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command validatord runs one OUTPACE validator: it serves the sentry REST
// API other validators and sentries talk to, and drives a leader or
// follower Tick on an interval for every channel named in its channels
// file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luxfi/outpace/pkg/accounting"
	"github.com/luxfi/outpace/pkg/adapter"
	"github.com/luxfi/outpace/pkg/aggregator"
	"github.com/luxfi/outpace/pkg/campaign"
	"github.com/luxfi/outpace/pkg/channel"
	"github.com/luxfi/outpace/pkg/follower"
	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/leader"
	"github.com/luxfi/outpace/pkg/log"
	"github.com/luxfi/outpace/pkg/metric"
	"github.com/luxfi/outpace/pkg/propagation"
	"github.com/luxfi/outpace/pkg/sentryapi"
	"github.com/luxfi/outpace/pkg/storage"
	"github.com/luxfi/outpace/pkg/unifiednum"
	"github.com/luxfi/outpace/pkg/vmsg"
)

var (
	dataDir             = flag.String("data-dir", "/tmp/validatord", "Storage directory (ignored for --storage=memory)")
	storageKind         = flag.String("storage", "badger", "Storage backend: memory or badger")
	apiAddr             = flag.String("api-addr", ":8005", "Address the sentry REST API listens on")
	opsAddr             = flag.String("ops-addr", ":8006", "Address healthz/metrics listen on")
	channelsFile        = flag.String("channels-file", "", "Path to a JSON file describing this validator's channels")
	tickInterval        = flag.Duration("tick-interval", 10*time.Second, "Interval between leader/follower ticks for each channel")
	propagationTimeout  = flag.Duration("propagation-timeout", 5*time.Second, "Per-request timeout for validator-to-validator propagation")
	logLevel            = flag.String("log-level", "info", "Log level")
	healthUnsignable    = flag.Uint64("health-unsignable-promilles", 950, "Follower health promille below which a NewState is rejected outright")
	healthThreshold     = flag.Uint64("health-threshold-promilles", 750, "Follower health promille at or above which an ApproveState is marked healthy")
	globalMinImpression = flag.Uint64("global-min-impression-price", 0, "Floor price (base units) applied under every campaign's own pricing bounds")
)

// channelConfig is one entry in --channels-file: the channel this validator
// participates in, its role, and the peer validator it ticks against.
type channelConfig struct {
	Channel        channel.Channel       `json:"channel"`
	ChainID        uint64                `json:"chainId"`
	TokenPrecision uint8                 `json:"tokenPrecision"`
	Role           string                `json:"role"` // "leader" or "follower"
	Peer           propagation.Validator `json:"peer"`
}

func loadChannelConfigs(path string) ([]channelConfig, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("validatord: read channels file: %w", err)
	}
	var configs []channelConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("validatord: decode channels file: %w", err)
	}
	return configs, nil
}

func main() {
	flag.Parse()
	logger := log.NewWithLevel(*logLevel)
	defer logger.Sync()

	metrics, err := metric.NewMetrics()
	if err != nil {
		logger.Fatal(fmt.Sprintf("validatord: init metrics: %v", err))
	}

	store, err := storage.NewStorage(*storageKind, *dataDir)
	if err != nil {
		logger.Fatal(fmt.Sprintf("validatord: open storage: %v", err))
	}

	ad, err := adapter.NewMemory()
	if err != nil {
		logger.Fatal(fmt.Sprintf("validatord: create adapter: %v", err))
	}
	if err := ad.Unlock(context.Background(), ""); err != nil {
		logger.Fatal(fmt.Sprintf("validatord: unlock adapter: %v", err))
	}
	logger.Info(fmt.Sprintf("validatord: running as %s", ad.Whoami().String()))

	channels := sentryapi.NewChannelStore(store)
	campaigns := campaign.NewStore(store)
	accounts := accounting.NewStore(store)
	msgs := vmsg.NewStore(store)

	globalFloor := unifiednum.FromUint64(*globalMinImpression)
	agg := aggregator.New(accounts, logger, globalFloor)

	api := sentryapi.New(channels, campaigns, accounts, msgs, agg, ad, logger)

	configs, err := loadChannelConfigs(*channelsFile)
	if err != nil {
		logger.Fatal(err.Error())
	}
	for _, cfg := range configs {
		ctx, err := channel.NewContext(cfg.Channel, channel.ChainID(cfg.ChainID), map[ids.Address]channel.TokenInfo{
			cfg.Channel.Token: {Precision: cfg.TokenPrecision},
		})
		if err != nil {
			logger.Fatal(fmt.Sprintf("validatord: build channel context: %v", err))
		}
		if err := channels.Register(ctx, []propagation.Validator{cfg.Peer}); err != nil && err != sentryapi.ErrChannelAlreadyExists {
			logger.Fatal(fmt.Sprintf("validatord: register channel: %v", err))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	prop := propagation.NewClient(*propagationTimeout)

	for _, cfg := range configs {
		cfg := cfg
		chCtx, err := channel.NewContext(cfg.Channel, channel.ChainID(cfg.ChainID), map[ids.Address]channel.TokenInfo{
			cfg.Channel.Token: {Precision: cfg.TokenPrecision},
		})
		if err != nil {
			logger.Fatal(fmt.Sprintf("validatord: build channel context: %v", err))
		}

		wg.Add(1)
		switch cfg.Role {
		case "leader":
			l := leader.New(accounts, msgs, ad, prop, logger)
			go runLeaderLoop(ctx, &wg, l, chCtx, cfg.Peer, metrics, logger)
		case "follower":
			f := follower.New(accounts, msgs, ad, prop, prop, logger, follower.Config{
				HealthUnsignablePromilles: *healthUnsignable,
				HealthThresholdPromilles:  *healthThreshold,
			})
			go runFollowerLoop(ctx, &wg, f, chCtx, cfg.Peer, ad, accounts, metrics, logger)
		default:
			logger.Fatal(fmt.Sprintf("validatord: unknown role %q for channel %s", cfg.Role, cfg.Channel.ID()))
		}
	}

	apiServer := &http.Server{Addr: *apiAddr, Handler: api.Router()}
	go func() {
		logger.Info(fmt.Sprintf("validatord: sentry API listening on %s", *apiAddr))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(fmt.Sprintf("validatord: sentry API error: %v", err))
		}
	}()

	opsServer := &http.Server{Addr: *opsAddr, Handler: opsRouter(metrics)}
	go func() {
		logger.Info(fmt.Sprintf("validatord: ops endpoint listening on %s", *opsAddr))
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(fmt.Sprintf("validatord: ops endpoint error: %v", err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("validatord: shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(fmt.Sprintf("validatord: sentry API shutdown error: %v", err))
	}
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(fmt.Sprintf("validatord: ops endpoint shutdown error: %v", err))
	}
	wg.Wait()
	logger.Info("validatord: stopped")
}

// opsRouter serves /healthz and /metrics, the two endpoints a cluster's
// liveness/readiness probes and scrape config need, kept on a separate
// port from the public sentry API.
func opsRouter(metrics *metric.Metrics) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.GetGatherer(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

func runLeaderLoop(ctx context.Context, wg *sync.WaitGroup, l *leader.Leader, chCtx channel.Context, followerPeer propagation.Validator, metrics *metric.Metrics, logger log.Logger) {
	defer wg.Done()
	ticker := time.NewTicker(*tickInterval)
	defer ticker.Stop()
	chID := chCtx.Channel.ID()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			start := time.Now()
			status, err := l.Tick(ctx, chCtx, followerPeer, now.UTC())
			metrics.TickDuration.Observe(time.Since(start).Seconds())
			metrics.LeaderTicksRun.Inc()
			if err != nil {
				logger.Error(fmt.Sprintf("validatord: leader tick failed for channel %s: %v", chID, err))
				continue
			}
			if status.NewState != nil {
				metrics.NewStatesEmitted.Inc()
			}
			metrics.HeartbeatsEmitted.Inc()
		}
	}
}

func runFollowerLoop(ctx context.Context, wg *sync.WaitGroup, f *follower.Follower, chCtx channel.Context, leaderPeer propagation.Validator, ad adapter.Adapter, accounts *accounting.Store, metrics *metric.Metrics, logger log.Logger) {
	defer wg.Done()
	ticker := time.NewTicker(*tickInterval)
	defer ticker.Stop()
	chID := chCtx.Channel.ID()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			allSpendersSum, err := sumSpenderDeposits(ctx, ad, accounts, chCtx)
			if err != nil {
				logger.Error(fmt.Sprintf("validatord: sum spender deposits for channel %s: %v", chID, err))
				continue
			}

			start := time.Now()
			status, err := f.Tick(ctx, chCtx, leaderPeer, allSpendersSum, now.UTC())
			metrics.TickDuration.Observe(time.Since(start).Seconds())
			metrics.FollowerTicksRun.Inc()
			if err != nil {
				logger.Error(fmt.Sprintf("validatord: follower tick failed for channel %s: %v", chID, err))
				continue
			}
			switch status.Approve.Outcome {
			case follower.Approved:
				metrics.ApproveStatesSent.Inc()
			case follower.Rejected:
				metrics.RejectStatesSent.Inc()
			}
			metrics.HeartbeatsEmitted.Inc()
		}
	}
}

// sumSpenderDeposits approximates a channel's allSpendersSum cap as the sum
// of on-chain deposits for every address that has already appeared on the
// spender side of this channel's Accounting. A full implementation would
// watch on-chain deposit events for every address that could ever spend
// into the channel; without a chain-RPC adapter to source that from (see
// pkg/adapter's own scope note), this is the best approximation reachable
// from state this validator already tracks.
func sumSpenderDeposits(ctx context.Context, ad adapter.Adapter, accounts *accounting.Store, chCtx channel.Context) (unifiednum.UnifiedNum, error) {
	acc, err := accounts.Fetch(chCtx.Channel.ID())
	if err != nil {
		return unifiednum.Zero, err
	}
	if acc == nil {
		return unifiednum.Zero, nil
	}

	sum := unifiednum.Zero
	for spender := range acc.Balances.Spenders {
		deposit, err := ad.GetDeposit(ctx, chCtx.Channel, spender)
		if err != nil {
			return unifiednum.Zero, err
		}
		next, ok := sum.Add(deposit)
		if !ok {
			return unifiednum.Zero, fmt.Errorf("validatord: spender deposit sum overflow")
		}
		sum = next
	}
	return sum, nil
}
