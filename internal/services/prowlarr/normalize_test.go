// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package prowlarr

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeResult(t *testing.T) {
	site := SiteRef{
		ID:        4,
		Name:      "Alpha",
		Priority:  25,
		Cookie:    "session=abc",
		UserAgent: "custom-agent",
		Proxy:     true,
	}
	bind := func(remoteID int) (SiteRef, bool) {
		if remoteID == 9 {
			return site, true
		}
		return SiteRef{}, false
	}

	raw := SearchResult{
		IndexerID:   9,
		Title:       "Some.Release.2160p",
		Description: "a release",
		DownloadURL: "https://prowlarr.local/download/1",
		InfoURL:     "https://alpha.example.org/details/1",
		Size:        123456789,
		Seeders:     12,
		Leechers:    3,
		Grabs:       40,
		PublishDate: "2026-01-02T15:04:05Z",
		IMDBID:      "tt0111161",
		Categories:  []any{"Movies", float64(2000)},
	}

	result, err := normalizeResult(raw, bind)
	require.NoError(t, err)

	assert.Equal(t, "Some.Release.2160p", result.Title)
	assert.Equal(t, "https://prowlarr.local/download/1", result.DownloadEnclosure)
	assert.Equal(t, "https://alpha.example.org/details/1", result.PageURL)
	assert.Equal(t, int64(123456789), result.SizeBytes)
	assert.Equal(t, 12, result.Seeders)
	assert.Equal(t, 3, result.Leechers)
	assert.Equal(t, 3, result.Peers, "peers mirrors leechers")
	assert.Equal(t, 40, result.GrabCount)
	assert.Equal(t, []string{"Movies", "2000"}, result.Categories)

	assert.Equal(t, 4, result.SiteID)
	assert.Equal(t, "Alpha", result.SiteName)
	assert.Equal(t, 25, result.SitePriority)
	assert.Equal(t, "session=abc", result.SiteCookie)
	assert.Equal(t, "custom-agent", result.SiteUserAgent)
	assert.True(t, result.SiteProxy)
}

func TestNormalizeResultUnmappedIndexer(t *testing.T) {
	bind := func(int) (SiteRef, bool) { return SiteRef{}, false }

	_, err := normalizeResult(SearchResult{IndexerID: 42}, bind)
	require.Error(t, err)
	assert.True(t, errors.Is(err, &MappingError{}))

	var mappingErr *MappingError
	require.True(t, errors.As(err, &mappingErr))
	assert.Equal(t, 42, mappingErr.IndexerID)
}

func TestNormalizeResultDefaults(t *testing.T) {
	bind := func(int) (SiteRef, bool) { return SiteRef{ID: 1}, true }

	result, err := normalizeResult(SearchResult{IndexerID: 1, Title: "bare"}, bind)
	require.NoError(t, err)

	assert.Zero(t, result.SizeBytes)
	assert.Zero(t, result.Seeders)
	assert.Zero(t, result.Leechers)
	assert.Zero(t, result.GrabCount)
	assert.Empty(t, result.Categories)

	// Optional fields must be omitted, not serialized as empty strings.
	encoded, err := json.Marshal(result)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "publish_date")
	assert.NotContains(t, string(encoded), "imdb_id")
	assert.NotContains(t, string(encoded), "site_cookie")
	assert.NotContains(t, string(encoded), "site_user_agent")
}

func TestStringifyCategory(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{name: "string", value: "Movies/HD", want: "Movies/HD"},
		{name: "json_number", value: float64(5070), want: "5070"},
		{name: "int", value: 2020, want: "2020"},
		{name: "object_with_name", value: map[string]any{"id": float64(2000), "name": "Movies"}, want: "Movies"},
		{name: "object_id_only", value: map[string]any{"id": float64(2000)}, want: "2000"},
		{name: "object_empty", value: map[string]any{}, want: ""},
		{name: "nil", value: nil, want: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stringifyCategory(tt.value))
		})
	}
}
