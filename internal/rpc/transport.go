// Package rpc implements the HTTP-based RPC control plane described in
// spec.md §6: every method is a POST to a JSON endpoint, client-side
// calls are bounded by a short timeout (spec.md §5: "cap RPC wait at a
// few seconds"), and transport failures are returned as plain errors for
// the caller to log-and-continue per spec.md §7 category 2.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single RPC call.
const DefaultTimeout = 5 * time.Second

// Client issues JSON RPCs against a single agent or coordinator endpoint.
// Agents construct one of these per callback and drop it afterwards
// (spec.md §9 "Cyclic callback"), rather than holding a long-lived handle.
type Client struct {
	addr string
	http *http.Client
}

// NewClient builds a Client for the agent/coordinator reachable at addr
// ("host:port").
func NewClient(addr string) *Client {
	return &Client{
		addr: addr,
		http: &http.Client{Timeout: DefaultTimeout},
	}
}

// Call issues req as a JSON POST to method and decodes the JSON response
// body into resp. Pass a nil req for RPCs with no request body, and a nil
// resp for RPCs with no response body.
func (c *Client) Call(ctx context.Context, method string, req, resp any) error {
	var body bytes.Buffer
	if req != nil {
		if err := json.NewEncoder(&body).Encode(req); err != nil {
			return fmt.Errorf("rpc: encode %s request: %w", method, err)
		}
	}

	url := fmt.Sprintf("http://%s/rpc/%s", c.addr, method)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return fmt.Errorf("rpc: build request for %s: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("rpc: call %s at %s: %w", method, c.addr, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc: %s at %s returned status %d", method, c.addr, httpResp.StatusCode)
	}

	if resp == nil {
		return nil
	}
	if err := json.NewDecoder(httpResp.Body).Decode(resp); err != nil {
		return fmt.Errorf("rpc: decode %s response: %w", method, err)
	}
	return nil
}
