// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package prowlarr

import (
	"fmt"
	"net/http"
)

// ConfigError indicates the Prowlarr connection is not configured. No
// request is attempted when this is returned.
type ConfigError struct {
	Missing string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("prowlarr %s is not configured", e.Missing)
}

func (e *ConfigError) Is(target error) bool {
	_, ok := target.(*ConfigError)
	return ok
}

// StatusError represents a non-2xx response from the Prowlarr API.
// It preserves the status code so callers can distinguish auth failures
// from server-side errors.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("prowlarr request to %s returned status %d", e.URL, e.StatusCode)
}

func (e *StatusError) Is(target error) bool {
	_, ok := target.(*StatusError)
	return ok
}

// IsAuthFailure returns true when the status indicates a rejected API key.
func (e *StatusError) IsAuthFailure() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// MappingError indicates a search result or indexer that could not be
// resolved to a known local site. It is always per-record: the caller skips
// the record, logs, and continues with the rest of the batch.
type MappingError struct {
	IndexerID int
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("indexer %d is not mapped to a local site", e.IndexerID)
}

func (e *MappingError) Is(target error) bool {
	_, ok := target.(*MappingError)
	return ok
}
