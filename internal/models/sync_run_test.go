// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/prowlink/internal/database"
)

func newTestSyncRunStore(t *testing.T) *SyncRunStore {
	t.Helper()

	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	return NewSyncRunStore(db.Conn())
}

func recordRun(t *testing.T, store *SyncRunStore, status string) {
	t.Helper()
	started := time.Now().Add(-time.Second)
	require.NoError(t, store.Record(context.Background(), &SyncRun{
		StartedAt:       started,
		FinishedAt:      time.Now(),
		Status:          status,
		IndexersSeen:    5,
		SitesRegistered: 4,
		EntriesMapped:   3,
		Signature:       0xdeadbeef,
	}))
}

func TestSyncRunStoreRecordAndList(t *testing.T) {
	store := newTestSyncRunStore(t)
	ctx := context.Background()

	recordRun(t, store, SyncStatusSuccess)
	recordRun(t, store, SyncStatusPartial)

	runs, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// Newest first.
	assert.Equal(t, SyncStatusPartial, runs[0].Status)
	assert.Equal(t, SyncStatusSuccess, runs[1].Status)
	assert.Equal(t, 5, runs[0].IndexersSeen)
	assert.Equal(t, 4, runs[0].SitesRegistered)
	assert.Equal(t, 3, runs[0].EntriesMapped)
	assert.Equal(t, uint64(0xdeadbeef), runs[0].Signature)
}

func TestSyncRunStoreSignatureRoundTrip(t *testing.T) {
	store := newTestSyncRunStore(t)
	ctx := context.Background()

	// Signatures use the full uint64 range; the high bit must survive the
	// int64 storage round trip.
	signature := uint64(math.MaxUint64 - 42)
	require.NoError(t, store.Record(ctx, &SyncRun{
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
		Status:     SyncStatusSuccess,
		Signature:  signature,
	}))

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, signature, latest.Signature)
}

func TestSyncRunStoreLatest(t *testing.T) {
	store := newTestSyncRunStore(t)
	ctx := context.Background()

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	recordRun(t, store, SyncStatusFailed)
	recordRun(t, store, SyncStatusSuccess)

	latest, err = store.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, SyncStatusSuccess, latest.Status)
}

func TestSyncRunStoreListLimit(t *testing.T) {
	store := newTestSyncRunStore(t)
	ctx := context.Background()

	for range 25 {
		recordRun(t, store, SyncStatusSuccess)
	}

	runs, err := store.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 10)

	// Zero falls back to the default page size.
	runs, err = store.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 20)
}

func TestSyncRunStorePrune(t *testing.T) {
	store := newTestSyncRunStore(t)
	ctx := context.Background()

	for i := range 30 {
		require.NoError(t, store.Record(ctx, &SyncRun{
			StartedAt:  time.Now(),
			FinishedAt: time.Now(),
			Status:     SyncStatusSuccess,
			Error:      fmt.Sprintf("run %d", i),
		}))
	}

	require.NoError(t, store.Prune(ctx, 5))

	runs, err := store.List(ctx, 100)
	require.NoError(t, err)
	require.Len(t, runs, 5)
	assert.Equal(t, "run 29", runs[0].Error, "pruning keeps the newest runs")
	assert.Equal(t, "run 25", runs[4].Error)
}
