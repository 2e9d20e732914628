// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package prowlarr

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/prowlink/internal/models"
)

func writeOverridesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "overrides.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadOverrides(t *testing.T) {
	t.Run("empty_path", func(t *testing.T) {
		overrides, err := LoadOverrides("")
		require.NoError(t, err)
		assert.Empty(t, overrides.Domains)
	})

	t.Run("missing_file", func(t *testing.T) {
		_, err := LoadOverrides(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("invalid_yaml", func(t *testing.T) {
		path := writeOverridesFile(t, "domains: [not a map")
		_, err := LoadOverrides(path)
		require.Error(t, err)
	})

	t.Run("domains_normalized_lowercase", func(t *testing.T) {
		path := writeOverridesFile(t, `
domains:
  Alpha.Example.ORG:
    priority: 5
  " beta.example.org ":
    skip: true
`)
		overrides, err := LoadOverrides(path)
		require.NoError(t, err)

		alpha, ok := overrides.Domains["alpha.example.org"]
		require.True(t, ok)
		require.NotNil(t, alpha.Priority)
		assert.Equal(t, 5, *alpha.Priority)

		beta, ok := overrides.Domains["beta.example.org"]
		require.True(t, ok)
		assert.True(t, beta.Skip)
	})
}

func TestOverridesApply(t *testing.T) {
	priority := 3
	proxy := true
	resultLimit := 50
	timeout := 15

	overrides := &Overrides{Domains: map[string]DomainOverride{
		"tuned.example.org":   {Priority: &priority, Proxy: &proxy, ResultLimit: &resultLimit, Timeout: &timeout},
		"skipped.example.org": {Skip: true},
	}}

	t.Run("tuned_fields_applied", func(t *testing.T) {
		site := &models.Site{Domain: "tuned.example.org", Priority: 25, ResultLimit: 100, Timeout: 30}
		require.True(t, overrides.Apply(site))

		assert.Equal(t, 3, site.Priority)
		assert.True(t, site.Proxy)
		assert.Equal(t, 50, site.ResultLimit)
		assert.Equal(t, 15, site.Timeout)
	})

	t.Run("skip_excludes_site", func(t *testing.T) {
		site := &models.Site{Domain: "skipped.example.org"}
		assert.False(t, overrides.Apply(site))
	})

	t.Run("unlisted_domain_untouched", func(t *testing.T) {
		site := &models.Site{Domain: "other.example.org", Priority: 25}
		require.True(t, overrides.Apply(site))
		assert.Equal(t, 25, site.Priority)
	})

	t.Run("nil_overrides", func(t *testing.T) {
		var overrides *Overrides
		site := &models.Site{Domain: "any.example.org"}
		assert.True(t, overrides.Apply(site))
	})
}
