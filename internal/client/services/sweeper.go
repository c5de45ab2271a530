package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/client/models"
	"github.com/dmitrijs2005/relaypacs/internal/logging"
)

// SweepConfig holds the retention windows of the Sweeper.
type SweepConfig struct {
	// Retention is how long an unfinished study is kept before it is
	// treated as abandoned.
	Retention time.Duration
	// HistoryRetention is how long the row of a completed study is kept.
	HistoryRetention time.Duration
	// SyncRetention is how long completed sync-queue items are kept.
	SyncRetention time.Duration
	CacheMaxItems int
	Interval      time.Duration
}

func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		Retention:        24 * time.Hour,
		HistoryRetention: 30 * 24 * time.Hour,
		SyncRetention:    30 * 24 * time.Hour,
		CacheMaxItems:    1000,
		Interval:         time.Hour,
	}
}

// SweepReport counts what one Run removed.
type SweepReport struct {
	Purged    int64
	Abandoned int
	History   int
	SyncItems int64
	Evicted   int64
}

// Sweeper bounds the size of the staging store. Its steps are best effort:
// Run logs failures and carries on.
type Sweeper struct {
	store StudyStore
	cfg   SweepConfig
	log   logging.Logger
	now   func() time.Time
}

func NewSweeper(store StudyStore, cfg SweepConfig, log logging.Logger) *Sweeper {
	if log == nil {
		log = logging.NewNop()
	}
	return &Sweeper{store: store, cfg: cfg, log: log, now: time.Now}
}

// PurgeCompleted drops staged content of every complete study still
// holding some.
func (s *Sweeper) PurgeCompleted(ctx context.Context) (int64, error) {
	list, err := s.store.Studies(ctx, models.StatusComplete)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, st := range list {
		n, err := s.store.PurgeContent(ctx, st.ID)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// SweepAbandoned deletes unfinished studies older than the retention
// window, with their files and chunk markers.
func (s *Sweeper) SweepAbandoned(ctx context.Context) ([]int64, error) {
	if s.cfg.Retention <= 0 {
		return nil, nil
	}
	return s.store.DeleteStudiesCreatedBefore(ctx, s.now().Add(-s.cfg.Retention),
		models.StatusQueued, models.StatusUploading, models.StatusFailed)
}

// PruneHistory deletes completed studies older than the history window.
func (s *Sweeper) PruneHistory(ctx context.Context) ([]int64, error) {
	if s.cfg.HistoryRetention <= 0 {
		return nil, nil
	}
	return s.store.DeleteStudiesCreatedBefore(ctx, s.now().Add(-s.cfg.HistoryRetention), models.StatusComplete)
}

func (s *Sweeper) PruneSyncQueue(ctx context.Context) (int64, error) {
	if s.cfg.SyncRetention <= 0 {
		return 0, nil
	}
	return s.store.SyncQueue().DeleteCompletedBefore(ctx, s.now().Add(-s.cfg.SyncRetention))
}

// EvictCache keeps at most CacheMaxItems cache entries, dropping the least
// recently accessed ones.
func (s *Sweeper) EvictCache(ctx context.Context) (int64, error) {
	if s.cfg.CacheMaxItems <= 0 {
		return 0, nil
	}
	c := s.store.Cache()
	n, err := c.Count(ctx)
	if err != nil || n <= s.cfg.CacheMaxItems {
		return 0, err
	}
	return c.EvictLRU(ctx, s.cfg.CacheMaxItems)
}

// Run performs every sweep step once. Failures are logged, never returned.
func (s *Sweeper) Run(ctx context.Context) SweepReport {
	var rep SweepReport
	start := s.now()

	if n, err := s.PurgeCompleted(ctx); err != nil {
		s.log.Warn(ctx, "purge of completed studies failed", "error", err)
	} else {
		rep.Purged = n
	}
	if ids, err := s.SweepAbandoned(ctx); err != nil {
		s.log.Warn(ctx, "abandoned study sweep failed", "error", err)
	} else {
		rep.Abandoned = len(ids)
		for _, id := range ids {
			s.log.Info(ctx, "abandoned study deleted", "study_id", id)
		}
	}
	if ids, err := s.PruneHistory(ctx); err != nil {
		s.log.Warn(ctx, "history prune failed", "error", err)
	} else {
		rep.History = len(ids)
	}
	if n, err := s.PruneSyncQueue(ctx); err != nil {
		s.log.Warn(ctx, "sync queue prune failed", "error", err)
	} else {
		rep.SyncItems = n
	}
	if n, err := s.EvictCache(ctx); err != nil {
		s.log.Warn(ctx, "cache eviction failed", "error", err)
	} else {
		rep.Evicted = n
	}

	s.log.Info(ctx, "sweep completed", "purged", rep.Purged, "abandoned", rep.Abandoned,
		"history", rep.History, "sync_items", rep.SyncItems, "evicted", rep.Evicted,
		"took", s.now().Sub(start))
	return rep
}

// Schedule runs the sweeper every Interval in a background goroutine until
// ctx is done. The returned channel is closed when the goroutine exits.
func (s *Sweeper) Schedule(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if s.cfg.Interval <= 0 {
		s.log.Info(ctx, "scheduled sweep disabled")
		close(done)
		return done
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Run(ctx)
			case <-ctx.Done():
				s.log.Debug(ctx, "scheduled sweep stopped")
				return
			}
		}
	}()

	s.log.Info(ctx, "scheduled sweep started", "interval", s.cfg.Interval)
	return done
}
