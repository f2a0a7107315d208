// SPDX-License-Identifier: LGPL-3.0-or-later

package hyperfetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	otrace "go.opentelemetry.io/otel/trace"

	"hyperfetch/internal/checkpoint"
	"hyperfetch/internal/taskstate"
	"hyperfetch/logger"
	"hyperfetch/tracing"
)

// Engine owns the global lifecycle, the task list, a shared HTTP client,
// configuration, and the resolver/reporter collaborators. It drives the
// worker pool described in the component design: one lightweight goroutine
// per in-flight task, bounded by Options.Concurrency.
type Engine struct {
	stateMu sync.RWMutex
	state   taskstate.EngineState

	tasksMu sync.RWMutex
	tasks   map[uint32]*task
	order   []uint32

	optionsMu sync.RWMutex
	options   Options

	resolver Resolver
	reporter Reporter
	store    checkpoint.Store
	client   *http.Client
	log      logger.Logger
	tracer   otrace.Tracer

	broadcast *broadcaster

	checkpointMu   sync.Mutex
	lastCheckpoint time.Time

	batchCtx    context.Context
	batchCancel context.CancelFunc
}

// New builds an Engine in the Idle state. Resolver and reporter are
// required collaborators; a nil reporter is replaced with NopReporter.
func New(opts Options, resolver Resolver, reporter Reporter) (*Engine, error) {
	if resolver == nil {
		return nil, fmt.Errorf("engine: resolver is required")
	}
	if reporter == nil {
		reporter = NopReporter{}
	}

	opts = opts.withDefaults()
	client, err := buildHTTPClient(opts)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	return &Engine{
		state:     taskstate.Idle,
		tasks:     make(map[uint32]*task),
		options:   opts,
		resolver:  resolver,
		reporter:  reporter,
		store:     checkpoint.NewFileStore(opts.SavePath),
		client:    client,
		log:       logger.New("info"),
		tracer:    otel.Tracer("hyperfetch"),
		broadcast: newBroadcaster(),
	}, nil
}

// WithLogger overrides the default logger.
func (e *Engine) WithLogger(l logger.Logger) *Engine {
	e.log = l
	return e
}

// WithTracer overrides the default tracer, e.g. one built from a
// tracing.Provider configured against a real exporter.
func (e *Engine) WithTracer(t otrace.Tracer) *Engine {
	e.tracer = t
	return e
}

// WithStore overrides the default checkpoint store (e.g. a RedisStore).
func (e *Engine) WithStore(store checkpoint.Store) *Engine {
	e.store = store
	return e
}

func (e *Engine) getState() taskstate.EngineState {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state
}

// transitionState validates and applies a global transition, publishing the
// new state to all subscribers on success.
func (e *Engine) transitionState(to taskstate.EngineState) error {
	e.stateMu.Lock()
	next, err := taskstate.TransitionEngine(e.state, to)
	if err != nil {
		e.stateMu.Unlock()
		return err
	}
	e.state = next
	e.stateMu.Unlock()

	e.broadcast.publish(next)
	return nil
}

// forceStateFromWorker is used inside the worker's observation loop for
// the "global Idle -> transition to Running" reaction, which is not a
// caller-initiated control action and so must not surface an error to
// anyone.
func (e *Engine) forceStateFromWorker(to taskstate.EngineState) {
	_ = e.transitionState(to)
}

// Start is the idempotent batch entry point: requires the engine be Idle
// or Stopped, reconciles requests against any persisted checkpoint, moves
// to Running, and spawns the batch driver in the background.
func (e *Engine) Start(requests []Request) error {
	e.stateMu.Lock()
	if e.state == taskstate.Stopped {
		// Stopped is terminal for the prior batch; re-entering Running is
		// an explicit reinit through Idle first, clearing the task list.
		e.state = taskstate.Idle
		e.tasksMu.Lock()
		e.tasks = make(map[uint32]*task)
		e.order = nil
		e.tasksMu.Unlock()
	}
	if e.state != taskstate.Idle {
		prior := e.state
		e.stateMu.Unlock()
		return fmt.Errorf("illegal engine transition: %s -> %s", prior, taskstate.Running)
	}
	e.state = taskstate.Running
	e.stateMu.Unlock()
	e.broadcast.publish(taskstate.Running)

	resolved := e.reconcile(requests)

	opts := e.Options()
	if opts.CreateDirs {
		if err := ensureDir(opts.SavePath); err != nil {
			e.reporter.OperationResult(OpStartAll, 0, 500, err.Error())
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.batchCtx = ctx
	e.batchCancel = cancel

	go e.runBatch(ctx, resolved)

	return nil
}

type reconciledRequest struct {
	req      Request
	resolved ResolvedTarget
}

// reconcile loads any existing checkpoint and drops requests that resolve
// to a URL already marked Completed; resolver failures drop the single
// request and report an error rather than failing the whole batch.
func (e *Engine) reconcile(requests []Request) []reconciledRequest {
	snap, err := e.store.Load()
	if err != nil {
		e.log.Warn("checkpoint load failed during reconciliation", "error", err)
		snap = checkpoint.Snapshot{}
	}
	completed := snap.CompletedURLs()

	out := make([]reconciledRequest, 0, len(requests))
	for _, req := range requests {
		resolved, err := e.resolver.Resolve(req)
		if err != nil {
			e.reporter.OperationResult(OpDownload, 0, 500, err.Error())
			continue
		}
		if resolved.TaskID == 0 {
			resolved.TaskID = stableTaskID(req)
		}
		if completed[resolved.URL] {
			continue
		}
		out = append(out, reconciledRequest{req: req, resolved: resolved})
	}
	return out
}

// runBatch drives up to Options.Concurrency workers at once over the
// reconciled request list, reporting a terminal operation result and
// clearing the checkpoint file once the batch drains. When the engine was
// stopped, the in-memory task list is cleared as well.
func (e *Engine) runBatch(ctx context.Context, reqs []reconciledRequest) {
	opts := e.Options()
	sem := make(chan struct{}, opts.Concurrency)
	var wg sync.WaitGroup

	for _, r := range reqs {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
			wg.Add(1)
			go func(r reconciledRequest) {
				defer wg.Done()
				defer func() { <-sem }()
				e.runWorker(ctx, r.req, r.resolved)
			}(r)
		}
	}

	wg.Wait()

	if e.getState() == taskstate.Stopped {
		e.tasksMu.Lock()
		e.tasks = make(map[uint32]*task)
		e.order = nil
		e.tasksMu.Unlock()
	}

	if err := e.store.Remove(); err != nil {
		e.log.Warn("checkpoint removal failed after batch completion", "error", err)
	}
	e.reporter.OperationResult(OpDownload, 0, 200, "batch complete")
}

// Pause requests Running -> Suspended. Workers observe the change on their
// next chunk boundary.
func (e *Engine) Pause() error {
	if err := e.transitionState(taskstate.Suspended); err != nil {
		return err
	}
	return nil
}

// Resume requests Suspended -> Running.
func (e *Engine) Resume() error {
	return e.transitionState(taskstate.Running)
}

// Stop moves to Stopped from any state; workers observe at their next
// chunk boundary (bounded by the 1 s wait-timeout) and exit with a final
// checkpoint. In-memory tasks are cleared once every worker has returned.
func (e *Engine) Stop() error {
	// Workers observe Stopped at their own pace; the batch context is not
	// force-canceled here so each worker still gets to write its own final
	// checkpoint and Canceled report before returning.
	return e.transitionState(taskstate.Stopped)
}

var errTaskNotFound = fmt.Errorf("task not found")

func (e *Engine) findTask(id uint32) (*task, error) {
	e.tasksMu.RLock()
	defer e.tasksMu.RUnlock()
	t, ok := e.tasks[id]
	if !ok {
		return nil, errTaskNotFound
	}
	return t, nil
}

// PauseTask requests Downloading -> Paused for a single task.
func (e *Engine) PauseTask(id uint32) error {
	t, err := e.findTask(id)
	if err != nil {
		e.reporter.OperationResult(OpPauseTask, id, 404, err.Error())
		return err
	}
	if _, err := t.transition(taskstate.Paused); err != nil {
		e.reporter.OperationResult(OpPauseTask, id, 409, err.Error())
		return err
	}
	e.reporter.OperationResult(OpPauseTask, id, 200, "paused")
	return nil
}

// ResumeTask requests Paused -> Pending; the worker promotes it to
// Downloading on its next observation.
func (e *Engine) ResumeTask(id uint32) error {
	t, err := e.findTask(id)
	if err != nil {
		e.reporter.OperationResult(OpResumeTask, id, 404, err.Error())
		return err
	}
	if _, err := t.transition(taskstate.Pending); err != nil {
		e.reporter.OperationResult(OpResumeTask, id, 409, err.Error())
		return err
	}
	e.reporter.OperationResult(OpResumeTask, id, 200, "resumed")
	return nil
}

// CancelTask requests any-state -> Canceled for a single task and fires
// its cancellation token.
func (e *Engine) CancelTask(id uint32) error {
	t, err := e.findTask(id)
	if err != nil {
		e.reporter.OperationResult(OpCancelTask, id, 404, err.Error())
		return err
	}
	next, err := t.transition(taskstate.Canceled)
	if err != nil {
		e.reporter.OperationResult(OpCancelTask, id, 409, err.Error())
		return err
	}
	if next == taskstate.Canceled && t.cancel != nil {
		t.cancel()
	}
	e.reporter.OperationResult(OpCancelTask, id, 200, "canceled")
	return nil
}

// SaveState writes the current task list to the configured checkpoint
// store.
func (e *Engine) SaveState() error {
	return e.saveStateNow()
}

func (e *Engine) saveStateNow() error {
	_, span := tracing.StartCheckpoint(context.Background(), e.tracer, "save")
	defer span.End()

	e.tasksMu.RLock()
	snap := checkpoint.Snapshot{Tasks: make([]checkpoint.TaskRecord, 0, len(e.order))}
	for _, id := range e.order {
		t := e.tasks[id]
		snap.Tasks = append(snap.Tasks, checkpoint.TaskRecord{
			ID:              t.id,
			URL:             t.url,
			DownloadedBytes: t.getProgress().Downloaded,
			TotalBytes:      t.total,
			FilePath:        t.filePath,
			State:           t.getState(),
		})
	}
	e.tasksMu.RUnlock()

	if err := e.store.Save(snap); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	return nil
}

// maybeCheckpoint writes a checkpoint if at least one second has elapsed
// since the last write, the debounce described for the per-chunk loop.
func (e *Engine) maybeCheckpoint() {
	e.checkpointMu.Lock()
	due := time.Since(e.lastCheckpoint) >= time.Second
	if due {
		e.lastCheckpoint = time.Now()
	}
	e.checkpointMu.Unlock()

	if due {
		if err := e.saveStateNow(); err != nil {
			e.log.Warn("checkpoint write failed", "error", err)
		}
	}
}

// LoadState replaces the engine's checkpoint store contents with an
// explicit snapshot, for callers that manage persistence themselves.
func (e *Engine) LoadState(snap checkpoint.Snapshot) error {
	return e.store.Save(snap)
}

// LoadStateFromFile loads a checkpoint document from an arbitrary path and
// installs it as the current checkpoint.
func (e *Engine) LoadStateFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var snap checkpoint.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode checkpoint %s: %w", path, err)
	}
	return e.LoadState(snap)
}

// UpdateOptions replaces the engine's configuration; in-flight workers
// pick up HTTP client changes at their next operation is not guaranteed,
// matching that only a fresh client is built here.
//
// Rebuilding the HTTP client is an optimize_resources step: it is skipped
// when every known task has already reached Completed or Canceled, since
// no worker remains to observe the new client and rebuilding it would be
// wasted work. The new options are still stored so a subsequent Start
// picks them up.
func (e *Engine) UpdateOptions(opts Options) error {
	opts = opts.withDefaults()
	skipClientRebuild := e.allTasksTerminal()

	e.optionsMu.Lock()
	defer e.optionsMu.Unlock()
	e.options = opts
	if skipClientRebuild {
		return nil
	}

	client, err := buildHTTPClient(opts)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	e.client = client
	return nil
}

// allTasksTerminal reports whether the engine has at least one known task
// and every one of them is Completed or Canceled.
func (e *Engine) allTasksTerminal() bool {
	e.tasksMu.RLock()
	defer e.tasksMu.RUnlock()
	if len(e.tasks) == 0 {
		return false
	}
	for _, t := range e.tasks {
		s := t.getState()
		if s != taskstate.Completed && s != taskstate.Canceled {
			return false
		}
	}
	return true
}

// Options returns a copy of the engine's current configuration.
func (e *Engine) Options() Options {
	e.optionsMu.RLock()
	defer e.optionsMu.RUnlock()
	return e.options
}

// Tasks returns a snapshot of every known task.
func (e *Engine) Tasks() []TaskInfo {
	e.tasksMu.RLock()
	defer e.tasksMu.RUnlock()
	out := make([]TaskInfo, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.tasks[id].info())
	}
	return out
}

// DownloadingTasks returns only tasks currently in the Downloading state.
func (e *Engine) DownloadingTasks() []TaskInfo {
	all := e.Tasks()
	out := all[:0:0]
	for _, t := range all {
		if t.State == taskstate.Downloading {
			out = append(out, t)
		}
	}
	return out
}

func (e *Engine) registerTask(t *task) {
	e.tasksMu.Lock()
	e.tasks[t.id] = t
	e.order = append(e.order, t.id)
	e.tasksMu.Unlock()
}
