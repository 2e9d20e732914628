// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package prowlarr

import (
	"context"
)

// StoreResolver adapts a site registry into the resolver the delegator and
// mapping cache consume. Disabled sites never resolve, so they drop out of
// the mapping on the next rebuild.
type StoreResolver struct {
	sites SiteRegistry
}

func NewStoreResolver(sites SiteRegistry) *StoreResolver {
	return &StoreResolver{sites: sites}
}

func (r *StoreResolver) ResolveByDomain(ctx context.Context, domain string) (SiteRef, bool) {
	return resolveSiteRef(ctx, r.sites, domain)
}

func resolveSiteRef(ctx context.Context, sites SiteRegistry, domain string) (SiteRef, bool) {
	site, err := sites.GetByDomain(ctx, domain)
	if err != nil {
		return SiteRef{}, false
	}
	if !site.Enabled {
		return SiteRef{}, false
	}
	return SiteRef{
		ID:        site.ID,
		Name:      site.Name,
		Domain:    site.Domain,
		Priority:  site.Priority,
		UserAgent: site.UserAgent,
		Proxy:     site.Proxy,
	}, true
}
