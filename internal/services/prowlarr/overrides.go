// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package prowlarr

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/autobrr/prowlink/internal/models"
)

// DomainOverride adjusts how a synced indexer is registered. Nil fields
// keep the value reported by the aggregator.
type DomainOverride struct {
	Skip        bool  `yaml:"skip"`
	Priority    *int  `yaml:"priority"`
	Proxy       *bool `yaml:"proxy"`
	ResultLimit *int  `yaml:"resultLimit"`
	Timeout     *int  `yaml:"timeout"`
}

// Overrides is an operator-supplied per-domain tuning file, applied to every
// site a sync pass registers.
type Overrides struct {
	Domains map[string]DomainOverride `yaml:"domains"`
}

// LoadOverrides reads an overrides file. An empty path yields an empty set.
func LoadOverrides(path string) (*Overrides, error) {
	overrides := &Overrides{Domains: map[string]DomainOverride{}}
	if path == "" {
		return overrides, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read overrides file %s", path)
	}

	if err := yaml.Unmarshal(data, overrides); err != nil {
		return nil, errors.Wrapf(err, "parse overrides file %s", path)
	}

	// Domains are matched lowercase.
	normalized := make(map[string]DomainOverride, len(overrides.Domains))
	for domain, override := range overrides.Domains {
		normalized[strings.ToLower(strings.TrimSpace(domain))] = override
	}
	overrides.Domains = normalized

	return overrides, nil
}

// Apply mutates site in place and reports whether it should be registered
// at all.
func (o *Overrides) Apply(site *models.Site) bool {
	if o == nil || len(o.Domains) == 0 {
		return true
	}

	override, ok := o.Domains[site.Domain]
	if !ok {
		return true
	}
	if override.Skip {
		return false
	}

	if override.Priority != nil {
		site.Priority = *override.Priority
	}
	if override.Proxy != nil {
		site.Proxy = *override.Proxy
	}
	if override.ResultLimit != nil {
		site.ResultLimit = *override.ResultLimit
	}
	if override.Timeout != nil {
		site.Timeout = *override.Timeout
	}
	return true
}
