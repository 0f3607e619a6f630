// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sentryapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/luxfi/outpace/pkg/accounting"
	"github.com/luxfi/outpace/pkg/adapter"
	"github.com/luxfi/outpace/pkg/aggregator"
	"github.com/luxfi/outpace/pkg/auth"
	"github.com/luxfi/outpace/pkg/campaign"
	"github.com/luxfi/outpace/pkg/channel"
	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/log"
	"github.com/luxfi/outpace/pkg/pricing"
	"github.com/luxfi/outpace/pkg/storage"
	"github.com/luxfi/outpace/pkg/unifiednum"
	"github.com/luxfi/outpace/pkg/vmsg"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testHarness struct {
	router   *gin.Engine
	whoami   *adapter.Memory
	ctx      channel.Context
	channels *ChannelStore
}

func newTestHarness(t *testing.T) testHarness {
	t.Helper()

	mem, err := adapter.NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	if err := mem.Unlock(context.Background(), ""); err != nil {
		t.Fatal(err)
	}

	ch := channel.Channel{Leader: mem.Whoami(), Follower: addr(2), Guardian: addr(3), Token: addr(4)}
	ctx := channel.Context{Channel: ch, Token: channel.TokenInfo{Precision: 18}}

	chStore := NewChannelStore(mustStorage(t))
	if err := chStore.Register(ctx, nil); err != nil {
		t.Fatal(err)
	}

	campStore := campaign.NewStore(mustStorage(t))
	accStore := accounting.NewStore(mustStorage(t))
	msgStore := vmsg.NewStore(mustStorage(t))
	agg := aggregator.New(accStore, log.NoOp(), unifiednum.FromUint64(0))

	srv := New(chStore, campStore, accStore, msgStore, agg, mem, log.NoOp())
	return testHarness{router: srv.Router(), whoami: mem, ctx: ctx, channels: chStore}
}

func mustStorage(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.NewStorage("memory", "")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func addr(b byte) ids.Address {
	var a ids.Address
	a[len(a)-1] = b
	return a
}

func (h testHarness) do(t *testing.T, method, path string, body interface{}, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h testHarness) bearerAs(t *testing.T, signer *adapter.Memory, recipient ids.Address) string {
	t.Helper()
	token, err := auth.Sign(context.Background(), signer, auth.Payload{
		ID:      recipient,
		Era:     auth.Era(time.Now()),
		Address: signer.Whoami(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestHarness(t)
	rec := h.do(t, http.MethodGet, "/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPostAndGetValidatorMessages(t *testing.T) {
	h := newTestHarness(t)
	chID := h.ctx.Channel.ID()
	token := h.bearerAs(t, h.whoami, h.whoami.Whoami())

	hb := vmsg.Heartbeat{Timestamp: time.Now().UTC()}
	body := struct {
		Messages []vmsg.Envelope `json:"messages"`
	}{Messages: []vmsg.Envelope{{Message: hb}}}

	rec := h.do(t, http.MethodPost, "/channel/"+chID.String()+"/validator-messages", body, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodGet, "/channel/"+chID.String()+"/validator-messages/"+h.whoami.Whoami().String()+"/Heartbeat", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Messages []vmsg.Envelope `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Message.Kind() != vmsg.KindHeartbeat {
		t.Fatalf("expected one heartbeat back, got %+v", resp.Messages)
	}
}

func TestPostValidatorMessagesRejectsNonValidator(t *testing.T) {
	h := newTestHarness(t)
	chID := h.ctx.Channel.ID()

	outsider, err := adapter.NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	if err := outsider.Unlock(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	token := h.bearerAs(t, outsider, h.whoami.Whoami())

	body := struct {
		Messages []vmsg.Envelope `json:"messages"`
	}{Messages: []vmsg.Envelope{{Message: vmsg.Heartbeat{Timestamp: time.Now().UTC()}}}}

	rec := h.do(t, http.MethodPost, "/channel/"+chID.String()+"/validator-messages", body, token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a non-validator signer, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetAccountingUnknownChannel(t *testing.T) {
	h := newTestHarness(t)
	rec := h.do(t, http.MethodGet, "/channel/"+(channel.ID{9}).String()+"/accounting", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetSpender(t *testing.T) {
	h := newTestHarness(t)
	chID := h.ctx.Channel.ID()
	spender := addr(42)
	h.whoami.SetDeposit(h.ctx.Channel, spender, unifiednum.FromUint64(500))

	rec := h.do(t, http.MethodGet, "/channel/"+chID.String()+"/spender/"+spender.String(), nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got campaign.Spender
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.TotalDeposited.Uint64() != 500 {
		t.Fatalf("expected deposit 500, got %s", got.TotalDeposited)
	}
}

func TestCampaignCreateUpdateCloseLifecycle(t *testing.T) {
	h := newTestHarness(t)
	chID := h.ctx.Channel.ID()

	creator, err := adapter.NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	if err := creator.Unlock(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	creatorToken := h.bearerAs(t, creator, h.whoami.Whoami())

	createReq := createCampaignRequest{
		ID:            "camp-1",
		Channel:       chID.String(),
		Budget:        unifiednum.FromUint64(1000),
		Leader:        validatorDescRequest{ID: h.ctx.Channel.Leader, Fee: unifiednum.FromUint64(1)},
		Follower:      validatorDescRequest{ID: h.ctx.Channel.Follower, Fee: unifiednum.FromUint64(1)},
		PricingBounds: map[string]campaign.PriceBounds{
			campaign.EventTypeImpression: {Min: unifiednum.FromUint64(1), Max: unifiednum.FromUint64(2)},
		},
		TargetingRules: pricing.Rules{},
		ActiveTo:       time.Unix(1999999999, 0).UTC(),
	}

	rec := h.do(t, http.MethodPost, "/campaign", createReq, creatorToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 creating campaign, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodPost, "/campaign", createReq, creatorToken)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate create, got %d: %s", rec.Code, rec.Body.String())
	}

	updateReq := updateCampaignRequest{
		TargetingRules: pricing.Rules{},
		AdUnits:        []campaign.AdUnit{{ID: "unit-1", MediaURL: "https://example.test/unit-1.png"}},
	}
	rec = h.do(t, http.MethodPost, "/campaign/camp-1", updateReq, creatorToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 updating campaign, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodPost, "/campaign/camp-1/close", nil, creatorToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 closing campaign, got %d: %s", rec.Code, rec.Body.String())
	}

	listRec := h.do(t, http.MethodGet, "/campaign/list", nil, "")
	if listRec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing campaigns, got %d: %s", listRec.Code, listRec.Body.String())
	}
}

func TestCampaignUpdateRejectsNonCreator(t *testing.T) {
	h := newTestHarness(t)
	chID := h.ctx.Channel.ID()

	creator, err := adapter.NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	_ = creator.Unlock(context.Background(), "")
	creatorToken := h.bearerAs(t, creator, h.whoami.Whoami())

	createReq := createCampaignRequest{
		ID:      "camp-guarded",
		Channel: chID.String(),
		Budget:  unifiednum.FromUint64(1000),
		PricingBounds: map[string]campaign.PriceBounds{
			campaign.EventTypeImpression: {Min: unifiednum.FromUint64(1), Max: unifiednum.FromUint64(2)},
		},
		ActiveTo: time.Unix(1999999999, 0).UTC(),
	}
	if rec := h.do(t, http.MethodPost, "/campaign", createReq, creatorToken); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 creating campaign, got %d: %s", rec.Code, rec.Body.String())
	}

	intruder, err := adapter.NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	_ = intruder.Unlock(context.Background(), "")
	intruderToken := h.bearerAs(t, intruder, h.whoami.Whoami())

	rec := h.do(t, http.MethodPost, "/campaign/camp-guarded/close", nil, intruderToken)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a non-creator close, got %d: %s", rec.Code, rec.Body.String())
	}
}
