// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package propagation implements the validator-to-validator HTTP transport:
// pushing a signed message batch to a peer's validator-messages endpoint,
// and fetching a peer's latest messages of given kinds. Retries are not
// automatic; a failed propagation becomes visible to the peer on its next
// tick when it fetches.
package propagation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/luxfi/outpace/pkg/channel"
	"github.com/luxfi/outpace/pkg/ids"
	"github.com/luxfi/outpace/pkg/vmsg"
)

// Validator is one addressable peer: its on-channel identity and the base
// URL its sentry API listens on.
type Validator struct {
	ID    ids.Address
	URL   string
	Token string // bearer auth token sent with every request to this peer
}

// Result is one validator's outcome from a Propagate call.
type Result struct {
	Validator ids.Address
	Err       error
}

// Client sends and fetches validator messages over HTTP.
type Client struct {
	httpClient *http.Client
}

// NewClient returns a Client with the given per-request timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

// Propagate POSTs msgs to every validator in to, in parallel-free sequence
// (the caller already runs one tick per channel concurrently; fan-out
// inside a single tick isn't worth the complexity). Each validator's
// outcome is reported independently; one failure does not abort the rest.
func (c *Client) Propagate(ctx context.Context, chID channel.ID, to []Validator, msgs []vmsg.Message) []Result {
	results := make([]Result, 0, len(to))
	envelopes := make([]vmsg.Envelope, len(msgs))
	for i, m := range msgs {
		envelopes[i] = vmsg.Envelope{Message: m}
	}
	body, err := json.Marshal(struct {
		Messages []vmsg.Envelope `json:"messages"`
	}{envelopes})
	if err != nil {
		for _, v := range to {
			results = append(results, Result{Validator: v.ID, Err: fmt.Errorf("propagation: encode messages: %w", err)})
		}
		return results
	}

	for _, v := range to {
		err := c.propagateOne(ctx, v, chID, body)
		results = append(results, Result{Validator: v.ID, Err: err})
	}
	return results
}

func (c *Client) propagateOne(ctx context.Context, v Validator, chID channel.ID, body []byte) error {
	url := fmt.Sprintf("%s/channel/%s/validator-messages", strings.TrimSuffix(v.URL, "/"), chID.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("propagation: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if v.Token != "" {
		req.Header.Set("Authorization", "Bearer "+v.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("propagation: send to %s: %w", v.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("propagation: %s responded %s", v.ID, resp.Status)
	}
	return nil
}

// GetLatest fetches the latest message of one of kinds from `from` on
// validator v's sentry API, or (nil, false, nil) if none exists.
func (c *Client) GetLatest(ctx context.Context, v Validator, chID channel.ID, from ids.Address, kinds ...vmsg.Kind) (*vmsg.Envelope, bool, error) {
	typeNames := make([]string, len(kinds))
	for i, k := range kinds {
		typeNames[i] = string(k)
	}
	url := fmt.Sprintf("%s/channel/%s/validator-messages/%s/%s?limit=1",
		strings.TrimSuffix(v.URL, "/"), chID.String(), from.String(), strings.Join(typeNames, "+"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("propagation: build request: %w", err)
	}
	if v.Token != "" {
		req.Header.Set("Authorization", "Bearer "+v.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("propagation: fetch from %s: %w", v.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("propagation: %s responded %s", v.ID, resp.Status)
	}

	var out struct {
		Messages []vmsg.Envelope `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false, fmt.Errorf("propagation: decode response: %w", err)
	}
	if len(out.Messages) == 0 {
		return nil, false, nil
	}
	return &out.Messages[len(out.Messages)-1], true, nil
}
