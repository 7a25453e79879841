// Package orchestrator implements the Parallel Orchestrator: running many
// Partition Indexers concurrently with bounded fan-out, independent
// per-worker failure, and a single transient-class retry pass after all
// other work completes.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/antflydb/vecindex/indexer"
	"github.com/antflydb/vecindex/vectorstore"
)

// Job is one partition's indexing work.
type Job struct {
	Partition      indexer.PartitionSpec
	BaseCollection string
}

// Outcome records one job's result.
type Outcome struct {
	Partition string
	Err       error
	// Transient reports whether Err belongs to the error taxonomy's
	// transient class, and is therefore eligible for the single
	// orchestrator-level retry.
	Transient bool
}

// Config configures the Orchestrator.
type Config struct {
	// Width bounds the number of partitions indexed concurrently.
	// Sample mode and any other deterministic-sampling caller must pass
	// 1.
	Width int
}

// Indexer is the subset of *indexer.Indexer the Orchestrator depends on,
// so tests can substitute a fake.
type Indexer interface {
	IndexPartition(ctx context.Context, partition indexer.PartitionSpec, baseCollection string) error
}

// Orchestrator runs Jobs across bounded concurrent workers.
// At most one worker ever runs a given partition at a time: callers must
// not submit the same partition name twice within one Run.
type Orchestrator struct {
	ix     Indexer
	logger *zap.Logger
	cfg    Config
}

// New constructs an Orchestrator. A Width <= 0 defaults to 1.
func New(ix Indexer, logger *zap.Logger, cfg Config) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Width <= 0 {
		cfg.Width = 1
	}
	return &Orchestrator{ix: ix, logger: logger, cfg: cfg}
}

// Run indexes every job, at most cfg.Width concurrently. One partition's
// failure never cancels sibling workers: each worker's error is
// captured into its own Outcome rather than aborting the group. After the
// first pass, any outcome classified transient is retried exactly once,
// sequentially, since by then the bulk of concurrent work has drained.
// Run returns every job's final outcome, plus a non-nil error iff any job
// ultimately failed.
func (o *Orchestrator) Run(ctx context.Context, jobs []Job) ([]Outcome, error) {
	outcomes := make([]Outcome, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Width)

	var mu sync.Mutex
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			err := o.ix.IndexPartition(gctx, job.Partition, job.BaseCollection)
			mu.Lock()
			outcomes[i] = Outcome{
				Partition: job.Partition.Name,
				Err:       err,
				Transient: isTransient(err),
			}
			mu.Unlock()
			if err != nil {
				o.logger.Error("orchestrator: partition failed",
					zap.String("partition", job.Partition.Name), zap.Error(err))
			} else {
				o.logger.Info("orchestrator: partition complete", zap.String("partition", job.Partition.Name))
			}
			// Never propagate the error through the errgroup: a sibling
			// partition's failure must not cancel other workers.
			return nil
		})
	}
	// g.Wait()'s error is always nil by construction above; the context
	// cancellation path is exercised only by the caller cancelling ctx.
	_ = g.Wait()

	o.retryTransient(ctx, jobs, outcomes)

	var failed []string
	for _, out := range outcomes {
		if out.Err != nil {
			failed = append(failed, out.Partition)
		}
	}
	if len(failed) > 0 {
		return outcomes, fmt.Errorf("orchestrator: %d partition(s) failed: %v", len(failed), failed)
	}
	return outcomes, nil
}

// retryTransient re-runs, once each and sequentially, every job whose
// first-pass outcome was classified transient.
func (o *Orchestrator) retryTransient(ctx context.Context, jobs []Job, outcomes []Outcome) {
	byName := make(map[string]Job, len(jobs))
	for _, j := range jobs {
		byName[j.Partition.Name] = j
	}

	for i, out := range outcomes {
		if out.Err == nil || !out.Transient {
			continue
		}
		job := byName[out.Partition]
		o.logger.Info("orchestrator: retrying transient failure", zap.String("partition", job.Partition.Name))
		err := o.ix.IndexPartition(ctx, job.Partition, job.BaseCollection)
		outcomes[i] = Outcome{Partition: job.Partition.Name, Err: err, Transient: isTransient(err)}
		if err != nil {
			o.logger.Error("orchestrator: transient retry failed",
				zap.String("partition", job.Partition.Name), zap.Error(err))
		} else {
			o.logger.Info("orchestrator: transient retry succeeded", zap.String("partition", job.Partition.Name))
		}
	}
}

// isTransient classifies err against the vector-store error taxonomy.
// Non-store errors (validation, data-format, programmer errors) are never
// transient.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var upsertErr *vectorstore.UpsertError
	if errors.As(err, &upsertErr) {
		return upsertErr.Kind.IsTransient()
	}
	return false
}
