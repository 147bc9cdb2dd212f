package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a thin HTTP client for the peerctl API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given base URL (e.g. http://host:port).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			// reload can take as long as the daemon timeout
			Timeout: 60 * time.Second,
		},
	}
}

// Error is a non-2xx response.
type Error struct {
	StatusCode int
	Status     string
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed: %s", e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("request failed: %s: %s (%s)", e.Status, e.Message, e.Code)
	}
	return fmt.Sprintf("request failed: %s: %s", e.Status, e.Message)
}

func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodGet, "/", nil, &resp)
	return resp, err
}

// Peers lists peer names.
func (c *Client) Peers(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.do(ctx, http.MethodGet, "/peers", nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

func (c *Client) AddPeer(ctx context.Context, name string) (AddPeerResponse, error) {
	var resp AddPeerResponse
	err := c.do(ctx, http.MethodPost, "/add-peer", AddPeerRequest{Name: name}, &resp)
	return resp, err
}

// PeerConfig fetches the client config of a peer.
func (c *Client) PeerConfig(ctx context.Context, name string) (PeerConfigResponse, error) {
	var resp PeerConfigResponse
	err := c.do(ctx, http.MethodGet, "/peer/"+url.PathEscape(name), nil, &resp)
	return resp, err
}

func (c *Client) RemovePeer(ctx context.Context, name string) (MessageResponse, error) {
	var resp MessageResponse
	err := c.do(ctx, http.MethodDelete, "/peer/"+url.PathEscape(name), nil, &resp)
	return resp, err
}

func (c *Client) ServerInfo(ctx context.Context) (ServerInfoResponse, error) {
	var resp ServerInfoResponse
	err := c.do(ctx, http.MethodGet, "/server-info", nil, &resp)
	return resp, err
}

// Reload asks the server to restart the WireGuard daemon.
func (c *Client) Reload(ctx context.Context) (ReloadResponse, error) {
	var resp ReloadResponse
	err := c.do(ctx, http.MethodPost, "/reload-wireguard", nil, &resp)
	return resp, err
}

// Events returns up to limit recent journal entries, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	path := "/events"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var items []Event
	if err := c.do(ctx, http.MethodGet, path, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		data, _ := io.ReadAll(res.Body)
		apiErr := &Error{StatusCode: res.StatusCode, Status: res.Status}
		var parsed ErrorResponse
		if json.Unmarshal(data, &parsed) == nil && parsed.Error != "" {
			apiErr.Message, apiErr.Code = parsed.Error, parsed.Code
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}

	decoder := json.NewDecoder(res.Body)
	return decoder.Decode(out)
}
