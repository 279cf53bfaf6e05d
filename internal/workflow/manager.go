// Package workflow owns the task queue and worker pool of the
// ingestion engine: scenarios are submitted (or picked up by the
// periodic auto-trigger), wrapped as tasks and executed by a fixed
// number of workers.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/eo-tools/eoingest/internal/dm"
	"github.com/eo-tools/eoingest/internal/ingest"
	"github.com/eo-tools/eoingest/internal/metrics"
	"github.com/eo-tools/eoingest/internal/product"
	"github.com/eo-tools/eoingest/internal/store"
)

// DefaultTriggerInterval is the pause between auto-trigger scans.
const DefaultTriggerInterval = 60 * time.Second

// Config carries the workflow knobs.
type Config struct {
	// Workers is the worker pool size.
	Workers int
	// TriggerInterval is the pause between auto-trigger scans.
	TriggerInterval time.Duration
}

// Manager runs the worker pool over a LIFO task queue plus the
// auto-trigger goroutine. One Manager exists per process, owned by the
// entry point and handed to the HTTP layer for control operations.
type Manager struct {
	store   *store.Store
	runner  *ingest.Runner
	dmc     *dm.Controller
	invoker *product.Invoker
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     Config

	queue  *taskQueue
	cancel context.CancelFunc
	done   chan struct{}
}

func New(st *store.Store, runner *ingest.Runner, dmc *dm.Controller,
	invoker *product.Invoker, m *metrics.Metrics, cfg Config,
	logger *slog.Logger) *Manager {

	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.TriggerInterval == 0 {
		cfg.TriggerInterval = DefaultTriggerInterval
	}
	if m == nil {
		m = metrics.New()
	}
	return &Manager{
		store:   st,
		runner:  runner,
		dmc:     dmc,
		invoker: invoker,
		metrics: m,
		logger:  logger,
		cfg:     cfg,
		queue:   newTaskQueue(),
	}
}

// Start launches the workers and the auto-trigger.
func (m *Manager) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	workers := make(chan struct{}, m.cfg.Workers)
	for i := 0; i < m.cfg.Workers; i++ {
		go func(id int) {
			defer func() { workers <- struct{}{} }()
			m.worker(ctx, id)
		}(i)
	}
	go m.trigger(ctx)

	go func() {
		for i := 0; i < m.cfg.Workers; i++ {
			<-workers
		}
		close(m.done)
	}()
	m.logger.Info("workflow manager started", "workers", m.cfg.Workers)
}

// Stop drains nothing: queued tasks are dropped, running tasks get
// their context cancelled, and Stop returns when every worker exited.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.queue.close()
	<-m.done
	m.logger.Info("workflow manager stopped")
}

// Submit enqueues a task. Tasks that reference a scenario flip its
// status to QUEUED with a nonzero percentage so UIs keep polling.
func (m *Manager) Submit(t Task) {
	if t.ScenarioID != 0 {
		m.store.SetScenarioStatus(t.ScenarioID, false, store.StatusQueued, 1)
	}
	if !m.queue.push(t) {
		m.logger.Warn("task rejected, workflow manager is stopped", "type", t.Type)
		return
	}
	m.metrics.QueueDepth.Set(float64(m.queue.len()))
}

// StopScenario propagates a user stop request: the status row flips to
// STOP_REQUEST (or IDLE when nothing is running), and any active DAR
// download is cancelled at the DM outside the store mutex.
func (m *Manager) StopScenario(id int64) {
	activeDAR := m.store.RequestStop(id, os.Getpid())
	if activeDAR == "" {
		return
	}
	if err := m.dmc.CancelDAR(activeDAR); err != nil {
		m.logger.Warn("cannot cancel active DAR", "darUuid", activeDAR, "error", err)
	}
}

func (m *Manager) worker(ctx context.Context, id int) {
	m.logger.Debug("worker running", "worker", id)
	for {
		t, ok := m.queue.pop()
		if !ok {
			return
		}
		m.metrics.QueueDepth.Set(float64(m.queue.len()))
		m.dispatch(ctx, id, t)
	}
}

// dispatch must never crash the worker: a panic escaping a task
// handler is logged and the worker proceeds.
func (m *Manager) dispatch(ctx context.Context, workerID int, t Task) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("recovering from internal error in task",
				"worker", workerID, "type", t.Type, "panic", r)
			m.metrics.TasksProcessed.WithLabelValues(string(t.Type), "panic").Inc()
		}
	}()
	m.logger.Debug("dispatching task", "worker", workerID, "type", t.Type)

	var err error
	switch t.Type {
	case TaskIngestScenario:
		err = m.ingestScenario(ctx, t)
	case TaskIngestLocalProduct:
		err = m.ingestLocalProduct(ctx, t, statusLocalIngest)
	case TaskAddProduct:
		err = m.ingestLocalProduct(ctx, t, statusAddProduct)
	case TaskDeleteScenario:
		err = m.deleteScenario(ctx, t)
	default:
		m.logger.Warn("no handler for task type", "type", t.Type)
		m.metrics.TasksProcessed.WithLabelValues(string(t.Type), "unknown").Inc()
		return
	}

	outcome := "ok"
	switch {
	case errors.Is(err, ingest.ErrStopRequested):
		outcome = "stopped"
	case err != nil:
		outcome = "error"
	}
	m.metrics.TasksProcessed.WithLabelValues(string(t.Type), outcome).Inc()
}
