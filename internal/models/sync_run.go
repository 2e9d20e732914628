// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"fmt"
	"time"

	"github.com/autobrr/prowlink/internal/dbinterface"
)

const (
	SyncStatusSuccess = "success"
	SyncStatusPartial = "partial"
	SyncStatusFailed  = "failed"
)

// SyncRun is the outcome of one synchronization pass against the aggregator.
// Signature is an order-independent hash of the indexer set; an unchanged
// signature between runs means the upstream configuration did not move.
type SyncRun struct {
	ID              int       `json:"id"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	Status          string    `json:"status"`
	IndexersSeen    int       `json:"indexers_seen"`
	SitesRegistered int       `json:"sites_registered"`
	EntriesMapped   int       `json:"entries_mapped"`
	Signature       uint64    `json:"signature"`
	Error           string    `json:"error,omitempty"`
}

type SyncRunStore struct {
	db dbinterface.Querier
}

func NewSyncRunStore(db dbinterface.Querier) *SyncRunStore {
	return &SyncRunStore{db: db}
}

func (s *SyncRunStore) Record(ctx context.Context, run *SyncRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (started_at, finished_at, status, indexers_seen, sites_registered, entries_mapped, signature, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.StartedAt, run.FinishedAt, run.Status, run.IndexersSeen,
		run.SitesRegistered, run.EntriesMapped, int64(run.Signature), run.Error,
	)
	if err != nil {
		return fmt.Errorf("record sync run: %w", err)
	}
	return nil
}

// List returns the most recent runs, newest first.
func (s *SyncRunStore) List(ctx context.Context, limit int) ([]*SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, status, indexers_seen, sites_registered, entries_mapped, signature, error
		FROM sync_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*SyncRun, 0, limit)
	for rows.Next() {
		var run SyncRun
		var signature int64
		if err := rows.Scan(
			&run.ID, &run.StartedAt, &run.FinishedAt, &run.Status,
			&run.IndexersSeen, &run.SitesRegistered, &run.EntriesMapped,
			&signature, &run.Error,
		); err != nil {
			return nil, err
		}
		run.Signature = uint64(signature)
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// Latest returns the newest run, or nil when no run has been recorded.
func (s *SyncRunStore) Latest(ctx context.Context) (*SyncRun, error) {
	runs, err := s.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return runs[0], nil
}

// Prune drops history beyond the newest keep runs.
func (s *SyncRunStore) Prune(ctx context.Context, keep int) error {
	if keep <= 0 {
		keep = 100
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_runs WHERE id NOT IN (SELECT id FROM sync_runs ORDER BY id DESC LIMIT ?)`, keep)
	if err != nil {
		return fmt.Errorf("prune sync runs: %w", err)
	}
	return nil
}
