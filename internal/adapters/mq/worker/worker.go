package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/callscore/pkg/logger"
	"github.com/okian/callscore/pkg/metrics"
)

// Default pool configuration constants.
const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU(); tasks are I/O bound
)

// Task is one unit of work. A returned error is recorded and the lane moves
// on to its next task.
type Task func(ctx context.Context) error

// Lane is an ordered group of tasks sharing a key. Tasks of one lane never
// run concurrently with each other.
type Lane struct {
	Key   string
	Tasks []Task
}

// Stats summarizes one Run.
type Stats struct {
	Lanes     int
	Succeeded int
	Failed    int
	// Skipped counts tasks not started because the context ended.
	Skipped int
	Errors  []error
	Took    time.Duration
}

// Pool runs lanes with bounded concurrency.
type Pool struct {
	size   int
	name   string
	logger logger.Logger
}

// NewPool creates a pool running at most size lanes at once. A size below one
// selects a default derived from the CPU count.
func NewPool(size int, opts ...Option) *Pool {
	if size < 1 {
		size = runtime.NumCPU() * defaultWorkerMultiplier
	}
	p := &Pool{
		size:   size,
		name:   "worker-pool",
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Size returns the lane concurrency bound.
func (p *Pool) Size() int {
	return p.size
}

// Run executes every lane and blocks until all have finished. A failing task
// never cancels other tasks or lanes. When ctx ends, tasks not yet started
// are skipped.
func (p *Pool) Run(ctx context.Context, lanes []Lane) Stats {
	start := time.Now()

	var (
		mu    sync.Mutex
		stats = Stats{Lanes: len(lanes)}
	)

	// A plain Group: one lane's failure must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(p.size)

	for _, lane := range lanes {
		g.Go(func() error {
			metrics.AddLanesInFlight(1)
			defer metrics.AddLanesInFlight(-1)

			ok, failed, skipped := p.runLane(ctx, lane, func(err error) {
				mu.Lock()
				stats.Errors = append(stats.Errors, err)
				mu.Unlock()
			})

			mu.Lock()
			stats.Succeeded += ok
			stats.Failed += failed
			stats.Skipped += skipped
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	stats.Took = time.Since(start)
	p.logger.Debug(ctx, "lanes finished",
		logger.String("pool", p.name),
		logger.Int("lanes", stats.Lanes),
		logger.Int("succeeded", stats.Succeeded),
		logger.Int("failed", stats.Failed),
		logger.Int("skipped", stats.Skipped),
		logger.Duration("took", stats.Took))
	return stats
}

func (p *Pool) runLane(ctx context.Context, lane Lane, report func(error)) (ok, failed, skipped int) {
	for i, task := range lane.Tasks {
		if ctx.Err() != nil {
			skipped += len(lane.Tasks) - i
			p.logger.Warn(ctx, "lane interrupted",
				logger.String("lane", lane.Key),
				logger.Int("skipped", len(lane.Tasks)-i))
			return ok, failed, skipped
		}
		if err := p.runTask(ctx, task); err != nil {
			failed++
			report(err)
			continue
		}
		ok++
	}
	return ok, failed, skipped
}

func (p *Pool) runTask(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(ctx, "task panicked", logger.String("pool", p.name), logger.Any("panic", r))
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	return task(ctx)
}
