// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package prowlarr

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

const (
	defaultRequestTimeout = 30 * time.Second
	statusProbeTimeout    = 10 * time.Second
)

// Config holds the connection settings for a Prowlarr instance.
type Config struct {
	URL    string
	APIKey string
	// TimeoutSeconds bounds listing and search requests. Defaults to 30.
	TimeoutSeconds int
	// ProxyURL optionally routes outbound requests through an
	// http, https or socks5 proxy.
	ProxyURL  string
	UserAgent string
}

// Client wraps the Prowlarr REST API. Every call is a stateless GET with no
// retries: listing and search are opportunistic, so a transient failure is
// surfaced immediately rather than masked by backoff.
type Client struct {
	baseURL      string
	apiKey       string
	userAgent    string
	httpClient   *http.Client
	statusClient *http.Client
}

// NewClient builds a client from cfg. A missing URL or API key is not an
// error here; calls will return a ConfigError until both are set, so the
// service can start unconfigured and report the problem through
// TestConnection.
func NewClient(cfg Config) (*Client, error) {
	timeout := defaultRequestTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	transport, err := buildTransport(cfg.ProxyURL)
	if err != nil {
		return nil, fmt.Errorf("configure proxy: %w", err)
	}

	return &Client{
		baseURL:      strings.TrimRight(strings.TrimSpace(cfg.URL), "/"),
		apiKey:       strings.TrimSpace(cfg.APIKey),
		userAgent:    cfg.UserAgent,
		httpClient:   &http.Client{Timeout: timeout, Transport: transport},
		statusClient: &http.Client{Timeout: statusProbeTimeout, Transport: transport},
	}, nil
}

func buildTransport(proxyURL string) (http.RoundTripper, error) {
	proxyURL = strings.TrimSpace(proxyURL)
	if proxyURL == "" {
		return nil, nil
	}

	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}

	switch parsed.Scheme {
	case "http", "https":
		return &http.Transport{Proxy: http.ProxyURL(parsed)}, nil
	case "socks5":
		var auth *proxy.Auth
		if parsed.User != nil {
			password, _ := parsed.User.Password()
			auth = &proxy.Auth{User: parsed.User.Username(), Password: password}
		}
		dialer, err := proxy.SOCKS5("tcp", parsed.Host, auth, &net.Dialer{Timeout: 10 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("socks5 dialer: %w", err)
		}
		return &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				if cd, ok := dialer.(proxy.ContextDialer); ok {
					return cd.DialContext(ctx, network, addr)
				}
				return dialer.Dial(network, addr)
			},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", parsed.Scheme)
	}
}

// Configured reports whether both URL and API key are set.
func (c *Client) Configured() bool {
	return c.requireConfig() == nil
}

func (c *Client) requireConfig() error {
	if c.baseURL == "" {
		return &ConfigError{Missing: "base URL"}
	}
	if c.apiKey == "" {
		return &ConfigError{Missing: "API key"}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, endpoint string, params url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if params != nil {
		req.URL.RawQuery = params.Encode()
	}
	return req, nil
}

func (c *Client) get(ctx context.Context, client *http.Client, path []string, params url.Values, out any) error {
	if err := c.requireConfig(); err != nil {
		return err
	}

	endpoint, err := url.JoinPath(c.baseURL, path...)
	if err != nil {
		return fmt.Errorf("build prowlarr url: %w", err)
	}

	req, err := c.newRequest(ctx, endpoint, params)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("prowlarr request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &StatusError{StatusCode: resp.StatusCode, URL: endpoint}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode prowlarr response: %w", err)
	}
	return nil
}

// ListIndexers fetches every indexer configured on the aggregator,
// enabled or not. One GET, no retries.
func (c *Client) ListIndexers(ctx context.Context) ([]Indexer, error) {
	var indexers []Indexer
	if err := c.get(ctx, c.httpClient, []string{"api", "v1", "indexer"}, nil, &indexers); err != nil {
		return nil, fmt.Errorf("list indexers: %w", err)
	}
	return indexers, nil
}

// Search runs one batched query across the given remote indexer IDs.
func (c *Client) Search(ctx context.Context, query string, indexerIDs []int, limit int) ([]SearchResult, error) {
	ids := make([]string, 0, len(indexerIDs))
	for _, id := range indexerIDs {
		ids = append(ids, strconv.Itoa(id))
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("indexerIds", strings.Join(ids, ","))
	params.Set("type", "search")
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var results []SearchResult
	if err := c.get(ctx, c.httpClient, []string{"api", "v1", "search"}, params, &results); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	return results, nil
}

// TestConnection probes GET /api/v1/system/status with a short timeout.
// It never returns a Go error: any failure comes back as OK=false with the
// status code or transport message in Detail, so the result can go straight
// to an operator.
func (c *Client) TestConnection(ctx context.Context) ConnectionStatus {
	var status []systemStatus
	if err := c.get(ctx, c.statusClient, []string{"api", "v1", "system", "status"}, nil, &status); err != nil {
		return ConnectionStatus{OK: false, Detail: err.Error()}
	}

	detail := "connected"
	if len(status) > 0 && status[0].Version != "" {
		detail = fmt.Sprintf("connected, server version %s", status[0].Version)
	}
	return ConnectionStatus{OK: true, Detail: detail}
}
