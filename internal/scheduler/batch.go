package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/hamed0406/subcheck/internal/domain"
	"github.com/hamed0406/subcheck/internal/probe"
)

const DefaultBatchSize = 10

var ErrNilCandidates = errors.New("scheduler: nil candidate list")

// CancelFlag is polled before each group starts. *atomic.Bool satisfies it.
type CancelFlag interface {
	Load() bool
}

// ProgressFunc receives the number of hosts processed so far after each
// group finishes.
type ProgressFunc func(processed, total int)

type BatchScheduler struct {
	Logger    *zap.Logger
	Prober    probe.Prober
	BatchSize int

	newPool func(size int) (*ants.Pool, error)
}

func defaultPool(size int) (*ants.Pool, error) { return ants.NewPool(size) }

func NewBatchScheduler(logger *zap.Logger, prober probe.Prober, batchSize int) *BatchScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &BatchScheduler{
		Logger:    logger,
		Prober:    prober,
		BatchSize: batchSize,
		newPool:   defaultPool,
	}
}

// Run probes hostnames in consecutive groups of limit, one goroutine per
// host, and waits for each group before starting the next. Cancellation is
// observed only between groups; hosts never reached stay StatusUnknown.
// limit < 1 uses the scheduler's BatchSize.
func (s *BatchScheduler) Run(
	ctx context.Context,
	hostnames []string,
	limit int,
	cancel CancelFlag,
	onProgress ProgressFunc,
) (domain.RunOutcome, error) {
	if hostnames == nil {
		return domain.RunOutcome{}, ErrNilCandidates
	}
	if limit < 1 {
		limit = s.BatchSize
	}
	if limit < 1 {
		limit = DefaultBatchSize
	}

	total := len(hostnames)
	out := domain.RunOutcome{
		Results:    make([]domain.ProbeResult, total),
		Completion: domain.CompletionCompleted,
	}
	for i, h := range hostnames {
		out.Results[i] = domain.ProbeResult{Host: h, Status: domain.StatusUnknown}
	}
	if total == 0 {
		return out, nil
	}

	newPool := s.newPool
	if newPool == nil {
		newPool = defaultPool
	}
	// without a pool each host gets a plain goroutine
	pool, err := newPool(limit)
	if err != nil {
		s.Logger.Warn("batch_pool_error", zap.Error(err))
		pool = nil
	} else {
		defer pool.Release()
	}

	// in-flight groups finish even if the caller's ctx is cancelled
	probeCtx := context.WithoutCancel(ctx)

	for start := 0; start < total; start += limit {
		if stopRequested(ctx, cancel) {
			out.Completion = domain.CompletionStopped
			s.Logger.Info("batch_stopped",
				zap.Int("processed", start),
				zap.Int("total", total),
			)
			break
		}
		end := min(start+limit, total)

		s.runGroup(probeCtx, pool, hostnames[start:end], out.Results[start:end])

		s.Logger.Debug("batch_group_done",
			zap.Int("group", start/limit),
			zap.Int("processed", end),
			zap.Int("total", total),
		)
		if onProgress != nil {
			onProgress(end, total)
		}
	}

	sum := out.Summary()
	s.Logger.Info("batch_run_done",
		zap.String("completion", string(out.Completion)),
		zap.Int("total", sum.Total),
		zap.Int("up", sum.Up),
		zap.Int("down", sum.Down),
		zap.Int("unknown", sum.Unknown),
	)
	return out, nil
}

func stopRequested(ctx context.Context, cancel CancelFlag) bool {
	if cancel != nil && cancel.Load() {
		return true
	}
	return ctx.Err() != nil
}

// runGroup writes each host's status into the matching results slot; slots
// are disjoint so no locking is needed beyond the WaitGroup barrier.
func (s *BatchScheduler) runGroup(ctx context.Context, pool *ants.Pool, group []string, results []domain.ProbeResult) {
	var wg sync.WaitGroup
	for i, host := range group {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			results[i].Status = s.probeOne(ctx, host)
		}
		if pool == nil {
			go task()
			continue
		}
		if err := pool.Submit(task); err != nil {
			s.Logger.Warn("batch_submit_error", zap.String("host", host), zap.Error(err))
			results[i].Status = domain.StatusDown
			wg.Done()
		}
	}
	wg.Wait()
}

func (s *BatchScheduler) probeOne(ctx context.Context, host string) (st domain.Status) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Warn("probe_panic", zap.String("host", host), zap.Any("panic", r))
			st = domain.StatusDown
		}
	}()
	if s.Prober.Probe(ctx, host) {
		return domain.StatusUp
	}
	return domain.StatusDown
}
