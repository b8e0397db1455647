package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/banshee-data/canbridge/internal/httputil"
)

// Client provides typed access to a running daemon's HTTP API. The CLI
// subcommands use it to talk to localhost; tests inject a mock client.
type Client struct {
	base string
	http httputil.HTTPClient
}

// NewClient creates a client for the API at base (e.g.
// "http://localhost:8080"). A nil HTTP client gets a 10s timeout
// default.
func NewClient(base string, hc httputil.HTTPClient) *Client {
	if hc == nil {
		hc = httputil.NewStandardClient(&http.Client{Timeout: 10 * time.Second})
	}
	return &Client{base: strings.TrimRight(base, "/"), http: hc}
}

// Stats fetches the pipeline counters.
func (c *Client) Stats() (StatsResponse, error) {
	var out StatsResponse
	resp, err := c.http.Get(c.base + "/api/stats")
	if err != nil {
		return out, err
	}
	return out, c.decode(resp, &out)
}

// Send asks the daemon to transmit one frame.
func (c *Client) Send(req SendRequest) (SendResponse, error) {
	var out SendResponse
	data, err := json.Marshal(req)
	if err != nil {
		return out, fmt.Errorf("marshal send request: %w", err)
	}
	resp, err := c.http.Post(c.base+"/api/send", "application/json", bytes.NewReader(data))
	if err != nil {
		return out, err
	}
	return out, c.decode(resp, &out)
}

// Reload asks the daemon to re-read its mapping config.
func (c *Client) Reload() (ReloadResult, error) {
	var out ReloadResult
	resp, err := c.http.Post(c.base+"/api/reload", "application/json", nil)
	if err != nil {
		return out, err
	}
	return out, c.decode(resp, &out)
}

func (c *Client) decode(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
