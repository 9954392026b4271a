// internal/service/expiry/sweeper.go

package expiry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"wimbli/internal/domain/docstore"
	"wimbli/internal/domain/feed"
	"wimbli/internal/observability"
)

// Config configures the expiry sweep
type Config struct {
	Interval     time.Duration
	Retention    time.Duration
	BatchSize    int
	SweepTimeout time.Duration
}

// DefaultConfig sweeps every 6 hours for posts dated more than a day ago
func DefaultConfig() Config {
	return Config{
		Interval:     6 * time.Hour,
		Retention:    24 * time.Hour,
		BatchSize:    docstore.MaxBatchSize,
		SweepTimeout: 5 * time.Minute,
	}
}

// Result summarizes one sweep
type Result struct {
	Matched       int `json:"matched"`
	Deleted       int `json:"deleted"`
	FailedBatches int `json:"failedBatches"`
}

// Sweeper deletes posts whose event date has passed the retention window
type Sweeper struct {
	store  docstore.Store
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// NewSweeper creates a new sweeper
func NewSweeper(store docstore.Store, config Config, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if config.BatchSize <= 0 || config.BatchSize > docstore.MaxBatchSize {
		config.BatchSize = docstore.MaxBatchSize
	}
	return &Sweeper{
		store:  store,
		config: config,
		logger: logger.With("service", "expiry"),
		now:    time.Now,
	}
}

// Sweep deletes every expired post in batches. A failed batch is logged and
// the sweep moves on to the next one; it is not retried until the next sweep.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	cutoff := s.now().Add(-s.config.Retention)

	docs, err := s.store.Query(ctx, docstore.Collection(feed.PostsCollection).
		Where("date", docstore.OpLess, cutoff))
	if err != nil {
		return Result{}, fmt.Errorf("error querying expired posts: %w", err)
	}

	result := Result{Matched: len(docs)}
	if len(docs) == 0 {
		s.logger.Debug("no expired posts", "cutoff", cutoff)
		return result, nil
	}

	for start := 0; start < len(docs); start += s.config.BatchSize {
		end := start + s.config.BatchSize
		if end > len(docs) {
			end = len(docs)
		}

		ids := make([]string, 0, end-start)
		for _, d := range docs[start:end] {
			ids = append(ids, d.ID)
		}

		if err := s.store.DeleteBatch(ctx, feed.PostsCollection, ids); err != nil {
			result.FailedBatches++
			observability.ExpiryFailedBatches.Inc()
			s.logger.Error("error deleting expired posts", "batch_start", start, "batch_size", len(ids), "error", err)
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			continue
		}

		result.Deleted += len(ids)
		observability.ExpiredPostsDeleted.Add(float64(len(ids)))
	}

	s.logger.Info("expired posts swept",
		"matched", result.Matched,
		"deleted", result.Deleted,
		"failed_batches", result.FailedBatches)
	return result, nil
}

// Run sweeps once at start and then on every interval until ctx is done
func (s *Sweeper) Run(ctx context.Context) {
	s.sweepOnce(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	timeout := s.config.SweepTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().SweepTimeout
	}
	sweepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := s.Sweep(sweepCtx); err != nil {
		s.logger.Error("expiry sweep failed", "error", err)
	}
}
