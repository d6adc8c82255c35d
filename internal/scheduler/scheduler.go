// Package scheduler re-triggers sync passes on a cron cadence.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"wellsync/internal/model"
	"wellsync/internal/sync"
)

// ConnectionLister provides the active (user, provider) pairs to consider.
type ConnectionLister interface {
	AllActiveConnections(ctx context.Context) ([]model.ProviderConnection, error)
}

// Syncer starts a sync pass; the orchestrator satisfies it.
type Syncer interface {
	StartSync(ctx context.Context, userID string, p model.Provider) error
}

// Scheduler walks the active connections on each cron tick and starts a
// sync for every pair whose next sync time has passed (or that has never
// synced). The orchestrator's in-flight guard makes overlapping triggers
// harmless.
type Scheduler struct {
	logger   *slog.Logger
	cron     *cron.Cron
	lister   ConnectionLister
	syncer   Syncer
	registry *sync.StatusRegistry
	now      func() time.Time
}

// New creates a scheduler; call Start to begin ticking.
func New(logger *slog.Logger, lister ConnectionLister, syncer Syncer, registry *sync.StatusRegistry) *Scheduler {
	return &Scheduler{
		logger:   logger,
		cron:     cron.New(),
		lister:   lister,
		syncer:   syncer,
		registry: registry,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start registers the tick job on the given cron spec and starts the cron
// runner.
func (s *Scheduler) Start(ctx context.Context, spec string) error {
	_, err := s.cron.AddFunc(spec, func() { s.tick(ctx) })
	if err != nil {
		return fmt.Errorf("invalid sync cron spec %q: %w", spec, err)
	}
	s.cron.Start()
	s.logger.Info("sync scheduler started", "spec", spec)
	return nil
}

// Stop halts the cron runner and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) tick(ctx context.Context) {
	conns, err := s.lister.AllActiveConnections(ctx)
	if err != nil {
		s.logger.Error("scheduler could not list connections", "error", err)
		return
	}

	type pair struct {
		userID   string
		provider model.Provider
	}
	seen := make(map[pair]struct{})
	now := s.now()

	for _, conn := range conns {
		p := pair{userID: conn.UserID, provider: conn.Provider}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}

		if !s.due(conn.UserID, conn.Provider, now) {
			continue
		}
		go func(userID string, prov model.Provider) {
			if err := s.syncer.StartSync(ctx, userID, prov); err != nil {
				s.logger.Error("scheduled sync failed", "userID", userID, "provider", prov, "error", err)
			}
		}(conn.UserID, conn.Provider)
	}
}

// due reports whether the pair has no recorded status yet or its next sync
// time has passed. Pairs currently syncing are not due.
func (s *Scheduler) due(userID string, p model.Provider, now time.Time) bool {
	for _, st := range s.registry.Get(userID) {
		if st.Provider != p {
			continue
		}
		if st.State == model.SyncSyncing {
			return false
		}
		return st.NextSyncAt == nil || !now.Before(*st.NextSyncAt)
	}
	return true
}
