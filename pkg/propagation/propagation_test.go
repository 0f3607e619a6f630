// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package propagation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/luxfi/outpace/pkg/channel"
	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/vmsg"
)

func TestPropagatePostsEnvelopes(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody struct {
		Messages []vmsg.Envelope `json:"messages"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Error(err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(5 * time.Second)
	chID := channel.ID{1, 2, 3}
	to := []Validator{{ID: ids.Address{7}, URL: server.URL, Token: "secret"}}
	hb := vmsg.Heartbeat{Timestamp: time.Now().UTC()}

	results := client.Propagate(context.Background(), chID, to, []vmsg.Message{hb})
	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("expected one successful result, got %+v", results)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("expected bearer auth header, got %q", gotAuth)
	}
	if gotPath != "/channel/"+chID.String()+"/validator-messages" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if len(gotBody.Messages) != 1 || gotBody.Messages[0].Message.Kind() != vmsg.KindHeartbeat {
		t.Fatalf("expected one heartbeat envelope, got %+v", gotBody.Messages)
	}
}

func TestPropagateReportsPerValidatorFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(5 * time.Second)
	chID := channel.ID{1}
	to := []Validator{{ID: ids.Address{7}, URL: server.URL}}
	hb := vmsg.Heartbeat{Timestamp: time.Now().UTC()}

	results := client.Propagate(context.Background(), chID, to, []vmsg.Message{hb})
	if len(results) != 1 || results[0].Err == nil {
		t.Fatalf("expected a propagation error, got %+v", results)
	}
}

func TestGetLatestReturnsLastMessage(t *testing.T) {
	hb := vmsg.Heartbeat{Timestamp: time.Now().UTC()}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		expected := "/channel/" + (channel.ID{4}).String() + "/validator-messages/" + (ids.Address{5}).String() + "/Heartbeat"
		if r.URL.Path != expected {
			t.Errorf("unexpected path: %s (want %s)", r.URL.Path, expected)
		}
		if r.URL.Query().Get("limit") != "1" {
			t.Errorf("expected limit=1, got %q", r.URL.Query().Get("limit"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Messages []vmsg.Envelope `json:"messages"`
		}{[]vmsg.Envelope{{Message: hb}}})
	}))
	defer server.Close()

	client := NewClient(5 * time.Second)
	v := Validator{ID: ids.Address{7}, URL: server.URL}

	env, ok, err := client.GetLatest(context.Background(), v, channel.ID{4}, ids.Address{5}, vmsg.KindHeartbeat)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a message to be found")
	}
	if env.Message.Kind() != vmsg.KindHeartbeat {
		t.Fatalf("expected a heartbeat, got %v", env.Message.Kind())
	}
}

func TestGetLatestNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Messages []vmsg.Envelope `json:"messages"`
		}{nil})
	}))
	defer server.Close()

	client := NewClient(5 * time.Second)
	v := Validator{ID: ids.Address{7}, URL: server.URL}

	_, ok, err := client.GetLatest(context.Background(), v, channel.ID{4}, ids.Address{5}, vmsg.KindHeartbeat)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected no message to be found")
	}
}
