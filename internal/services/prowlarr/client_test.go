// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package prowlarr

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		URL:       server.URL,
		APIKey:    "test-key",
		UserAgent: "prowlink-test",
	})
	require.NoError(t, err)
	return client
}

func TestClientConfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{name: "both_set", cfg: Config{URL: "http://localhost:9696", APIKey: "k"}, want: true},
		{name: "missing_url", cfg: Config{APIKey: "k"}, want: false},
		{name: "missing_key", cfg: Config{URL: "http://localhost:9696"}, want: false},
		{name: "whitespace_only", cfg: Config{URL: "  ", APIKey: "  "}, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, client.Configured())
		})
	}
}

func TestClientUnconfiguredReturnsConfigError(t *testing.T) {
	client, err := NewClient(Config{})
	require.NoError(t, err)

	_, err = client.ListIndexers(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, &ConfigError{}))

	_, err = client.Search(context.Background(), "x", []int{1}, 100)
	require.Error(t, err)
	assert.True(t, errors.Is(err, &ConfigError{}))

	status := client.TestConnection(context.Background())
	assert.False(t, status.OK)
}

func TestClientRejectsUnsupportedProxyScheme(t *testing.T) {
	_, err := NewClient(Config{URL: "http://localhost:9696", APIKey: "k", ProxyURL: "ftp://proxy.local"})
	require.Error(t, err)
}

func TestClientListIndexers(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/indexer", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "prowlink-test", r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id": 1, "name": "Alpha", "definitionName": "alpha", "enable": true, "privacy": "private",
			 "fields": [{"name": "baseUrl", "value": "https://alpha.example.org"}]},
			{"id": 2, "name": "Beta", "definitionName": "beta", "enable": false, "privacy": "public"}
		]`))
	})

	indexers, err := client.ListIndexers(context.Background())
	require.NoError(t, err)
	require.Len(t, indexers, 2)

	assert.Equal(t, 1, indexers[0].ID)
	assert.True(t, indexers[0].Enable)
	assert.False(t, indexers[0].Public())
	assert.Equal(t, "https://alpha.example.org", indexers[0].BaseURL())

	assert.False(t, indexers[1].Enable)
	assert.True(t, indexers[1].Public())
	assert.Empty(t, indexers[1].BaseURL())
}

func TestClientSearchParameters(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/search", r.URL.Path)

		query := r.URL.Query()
		assert.Equal(t, "ubuntu server", query.Get("query"))
		assert.Equal(t, "3,7,12", query.Get("indexerIds"))
		assert.Equal(t, "search", query.Get("type"))
		assert.Equal(t, "100", query.Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"indexerId": 3, "title": "ubuntu-server.iso", "size": 1024, "seeders": 9}]`))
	})

	results, err := client.Search(context.Background(), "ubuntu server", []int{3, 7, 12}, 100)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, 3, results[0].IndexerID)
	assert.Equal(t, "ubuntu-server.iso", results[0].Title)
	assert.Equal(t, int64(1024), results[0].Size)
	assert.Equal(t, 9, results[0].Seeders)
}

func TestClientStatusError(t *testing.T) {
	tests := []struct {
		name        string
		statusCode  int
		authFailure bool
	}{
		{name: "unauthorized", statusCode: http.StatusUnauthorized, authFailure: true},
		{name: "forbidden", statusCode: http.StatusForbidden, authFailure: true},
		{name: "server_error", statusCode: http.StatusInternalServerError, authFailure: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			})

			_, err := client.ListIndexers(context.Background())
			require.Error(t, err)

			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.statusCode, statusErr.StatusCode)
			assert.Equal(t, tt.authFailure, statusErr.IsAuthFailure())
		})
	}
}

func TestClientTestConnection(t *testing.T) {
	t.Run("success_with_version", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/system/status", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[{"version": "1.21.2.4649", "appName": "Prowlarr"}]`))
		})

		status := client.TestConnection(context.Background())
		assert.True(t, status.OK)
		assert.Contains(t, status.Detail, "1.21.2.4649")
	})

	t.Run("rejected_key", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})

		status := client.TestConnection(context.Background())
		assert.False(t, status.OK)
		assert.Contains(t, status.Detail, "401")
	})

	t.Run("unreachable", func(t *testing.T) {
		client, err := NewClient(Config{URL: "http://127.0.0.1:1", APIKey: "k"})
		require.NoError(t, err)

		status := client.TestConnection(context.Background())
		assert.False(t, status.OK)
		assert.NotEmpty(t, status.Detail)
	})
}
