// Package scan runs probing scans in the background and records their
// progress and outcome.
//
// A Manager owns one stop flag per running scan. Stop only raises the flag;
// the scheduler notices it before the next group, so a group that already
// started always finishes. Hosts that were never reached are reported as
// unknown.
package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/subcheck/internal/domain"
	"github.com/hamed0406/subcheck/internal/notify"
	"github.com/hamed0406/subcheck/internal/probe"
	"github.com/hamed0406/subcheck/internal/repo"
	"github.com/hamed0406/subcheck/internal/scheduler"
)

var (
	ErrNotRunning  = errors.New("scan not running")
	ErrNoHostnames = errors.New("no usable hostnames")
)

// Classifier explains unreachable hosts; *probe.DNSClassifier implements it.
type Classifier interface {
	Classify(ctx context.Context, host string) probe.DNSStatus
}

type StartRequest struct {
	Domain      string   `json:"domain"`
	Hostnames   []string `json:"hostnames"`
	Concurrency int      `json:"concurrency"`
}

type run struct {
	stop atomic.Bool
	done chan struct{}
}

type Manager struct {
	Logger     *zap.Logger
	Store      repo.ScanStore
	Scheduler  *scheduler.BatchScheduler
	Classifier Classifier      // optional
	Notifier   notify.Notifier // optional

	mu   sync.Mutex
	runs map[domain.ScanID]*run
	wg   sync.WaitGroup
}

func NewManager(
	logger *zap.Logger,
	store repo.ScanStore,
	sched *scheduler.BatchScheduler,
	classifier Classifier,
	notifier notify.Notifier,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Manager{
		Logger:     logger,
		Store:      store,
		Scheduler:  sched,
		Classifier: classifier,
		Notifier:   notifier,
		runs:       make(map[domain.ScanID]*run),
	}
}

// Start dedupes the candidates, stores a new scan and probes it in the
// background. The returned scan reflects the state at creation.
// Concurrency is capped at the scheduler's BatchSize; 0 uses it as is.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*domain.Scan, error) {
	hosts := domain.Dedupe(req.Hostnames)
	if len(hosts) == 0 {
		return nil, ErrNoHostnames
	}
	limit := req.Concurrency
	if ceiling := m.Scheduler.BatchSize; ceiling > 0 && (limit < 1 || limit > ceiling) {
		limit = ceiling
	}

	sc := &domain.Scan{
		Domain:    domain.NormalizeHostname(req.Domain),
		Hostnames: hosts,
		CreatedAt: time.Now().UTC(),
		Progress:  domain.Progress{Total: len(hosts)},
	}
	if err := m.Store.Create(ctx, sc); err != nil {
		return nil, fmt.Errorf("create scan: %w", err)
	}

	r := &run{done: make(chan struct{})}
	m.mu.Lock()
	m.runs[sc.ID] = r
	m.mu.Unlock()

	m.Logger.Info("scan_started",
		zap.String("scan_id", string(sc.ID)),
		zap.String("domain", sc.Domain),
		zap.Int("hosts", len(hosts)),
		zap.Int("concurrency", limit),
		zap.Int("requested_concurrency", req.Concurrency),
	)

	m.wg.Add(1)
	go m.execute(sc.ID, sc.Domain, hosts, limit, r)

	out := *sc
	out.Hostnames = append([]string(nil), hosts...)
	return &out, nil
}

func (m *Manager) execute(id domain.ScanID, root string, hosts []string, limit int, r *run) {
	defer m.wg.Done()
	defer close(r.done)
	defer func() {
		m.mu.Lock()
		delete(m.runs, id)
		m.mu.Unlock()
	}()

	ctx := context.Background()
	log := m.Logger.With(zap.String("scan_id", string(id)))

	out, err := m.Scheduler.Run(ctx, hosts, limit, &r.stop, func(processed, total int) {
		if err := m.Store.UpdateProgress(ctx, id, domain.Progress{Processed: processed, Total: total}); err != nil {
			log.Warn("scan_progress_error", zap.Error(err))
		}
	})
	if err != nil {
		log.Error("scan_run_error", zap.Error(err))
		return
	}

	m.diagnose(ctx, &out)

	if err := m.Store.Finish(ctx, id, out, time.Now().UTC()); err != nil {
		log.Error("scan_finish_error", zap.Error(err))
	}

	sum := out.Summary()
	log.Info("scan_finished",
		zap.String("completion", string(out.Completion)),
		zap.Int("up", sum.Up),
		zap.Int("down", sum.Down),
		zap.Int("unknown", sum.Unknown),
		zap.Float64("live_percent", sum.LivePercent),
	)

	title, text := summaryMessage(id, root, out)
	if err := m.Notifier.Send(ctx, title, text); err != nil {
		log.Warn("scan_notify_error", zap.Error(err))
	}
}

func (m *Manager) diagnose(ctx context.Context, out *domain.RunOutcome) {
	if m.Classifier == nil {
		return
	}
	Diagnose(ctx, m.Classifier, out, m.Scheduler.BatchSize)
}

// Diagnose sets the Reason of every down host to its DNS class, running at
// most limit lookups at once.
func Diagnose(ctx context.Context, c Classifier, out *domain.RunOutcome, limit int) {
	if limit < 1 {
		limit = scheduler.DefaultBatchSize
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i := range out.Results {
		if out.Results[i].Status != domain.StatusDown {
			continue
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(r *domain.ProbeResult) {
			defer func() { <-sem }()
			defer wg.Done()
			r.Reason = "dns=" + c.Classify(ctx, r.Host).Class
		}(&out.Results[i])
	}
	wg.Wait()
}

func summaryMessage(id domain.ScanID, root string, out domain.RunOutcome) (string, string) {
	title := "Scan finished"
	if out.Completion == domain.CompletionStopped {
		title = "Scan stopped"
	}
	sum := out.Summary()
	var b strings.Builder
	fmt.Fprintf(&b, "Scan: %s\n", id)
	if root != "" {
		fmt.Fprintf(&b, "Domain: %s\n", root)
	}
	fmt.Fprintf(&b, "Total: %d\nUp: %d\nDown: %d\nUnknown: %d\nLive: %.1f%%",
		sum.Total, sum.Up, sum.Down, sum.Unknown, sum.LivePercent)
	return title, b.String()
}

// Stop asks a running scan to halt before its next group.
func (m *Manager) Stop(ctx context.Context, id domain.ScanID) error {
	m.mu.Lock()
	r := m.runs[id]
	m.mu.Unlock()
	if r == nil {
		if _, err := m.Store.Get(ctx, id); err != nil {
			return err
		}
		return ErrNotRunning
	}
	r.stop.Store(true)
	m.Logger.Info("scan_stop_requested", zap.String("scan_id", string(id)))
	return nil
}

// Wait blocks until the scan's background run ends. Scans that are not
// running return immediately.
func (m *Manager) Wait(ctx context.Context, id domain.ScanID) error {
	m.mu.Lock()
	r := m.runs[id]
	m.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) Get(ctx context.Context, id domain.ScanID) (*domain.Scan, error) {
	return m.Store.Get(ctx, id)
}

func (m *Manager) List(ctx context.Context) ([]*domain.Scan, error) {
	return m.Store.List(ctx)
}

// Shutdown stops every running scan and waits for them to record their
// outcome or for ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, r := range m.runs {
		r.stop.Store(true)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
