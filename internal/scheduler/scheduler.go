// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package scheduler runs the periodic background jobs, most importantly the
// indexer synchronization pass.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// JobProwlarrSync is the registered name of the indexer synchronization job.
const JobProwlarrSync = "ProwlarrIndexerUpdate"

// Job is a named periodic task. Run receives a context cancelled when the
// scheduler stops.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

// Scheduler wraps robfig/cron. Overlapping runs of the same job are skipped,
// not queued, whether a run fires on its interval or through Trigger;
// distinct jobs run independently.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID

	triggered sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func New() *Scheduler {
	logger := log.With().Str("module", "scheduler").Logger()
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
		log:     logger,
		entries: make(map[string]cron.EntryID),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds or replaces a job under its name. Registering an existing
// name reschedules it at the new interval.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("job needs a name and a run function")
	}
	if job.Interval <= 0 {
		return errors.Errorf("job %s has non-positive interval", job.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[job.Name]; ok {
		s.cron.Remove(existing)
	}

	spec := fmt.Sprintf("@every %s", job.Interval)
	entryID, err := s.cron.AddFunc(spec, func() {
		s.run(job)
	})
	if err != nil {
		return errors.Wrapf(err, "schedule job %s", job.Name)
	}

	s.entries[job.Name] = entryID
	s.log.Debug().Str("job", job.Name).Dur("interval", job.Interval).Msg("Job registered")
	return nil
}

// Trigger runs a registered job immediately, off schedule. It does not
// block; the job uses the scheduler's lifetime context. The run goes through
// the same wrapped entry cron invokes, so a trigger that overlaps an
// in-flight run of the same job is skipped.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	entryID, ok := s.entries[name]
	s.mu.Unlock()

	if !ok {
		return errors.Errorf("unknown job %s", name)
	}

	wrapped := s.cron.Entry(entryID).WrappedJob
	s.triggered.Add(1)
	go func() {
		defer s.triggered.Done()
		wrapped.Run()
	}()
	return nil
}

// Start begins ticking. Jobs fire at their interval measured from Start, so
// anything that should run at boot must be triggered explicitly.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop cancels the job context and waits for in-flight jobs to finish,
// including runs started through Trigger.
func (s *Scheduler) Stop() {
	s.cancel()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.triggered.Wait()
	s.log.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) run(job Job) {
	started := time.Now()
	s.log.Debug().Str("job", job.Name).Msg("Job starting")

	job.Run(s.ctx)

	s.log.Debug().Str("job", job.Name).Dur("elapsed", time.Since(started)).Msg("Job finished")
}
