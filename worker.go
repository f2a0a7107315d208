// SPDX-License-Identifier: LGPL-3.0-or-later

package hyperfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"hyperfetch/internal/pathplan"
	"hyperfetch/internal/taskstate"
	"hyperfetch/template"
	"hyperfetch/tracing"
)

type workerAction int

const (
	actionWrite workerAction = iota
	actionCanceled
	actionBreak
)

// runWorker is the whole per-request lifecycle described in the worker
// loop: resolve (already done by the caller, via the reconciled target),
// probe, plan a path, stream the body, and react to both state machines on
// every chunk boundary.
func (e *Engine) runWorker(parentCtx context.Context, req Request, resolved ResolvedTarget) {
	id := resolved.TaskID
	if id == 0 {
		id = stableTaskID(req)
	}

	opts := e.Options()
	client := e.httpClient()

	ctx, cancel := context.WithCancel(parentCtx)

	probeResp, err := e.doRequest(ctx, client, resolved, opts, "")
	if err != nil {
		e.reporter.OperationResult(OpDownloadTask, id, 502, err.Error())
		cancel()
		return
	}
	if probeResp.StatusCode < 200 || probeResp.StatusCode >= 300 {
		probeResp.Body.Close()
		e.reporter.OperationResult(OpDownloadTask, id, probeResp.StatusCode, "probe returned non-2xx")
		cancel()
		return
	}
	meta := metadataFromResponse(probeResp)
	probeResp.Body.Close()

	tctx := templateContextFor(resolved, meta)

	candidate, err := pathplan.GeneratePath(opts.SavePath, resolved.URL, meta.toPlanMeta(), opts.PathPolicy, tctx)
	if err != nil {
		e.reporter.OperationResult(OpDownloadTask, id, 422, err.Error())
		cancel()
		return
	}
	destPath, err := pathplan.ResolveConflict(candidate, opts.PathPolicy.Conflict)
	if err != nil {
		e.reporter.OperationResult(OpDownloadTask, id, 409, err.Error())
		cancel()
		return
	}

	if fi, statErr := os.Stat(destPath); statErr == nil && meta.Total > 0 && fi.Size() == meta.Total {
		t := newTask(id, resolved.URL, destPath, meta.Total, cancel)
		e.registerTask(t)
		t.setState(taskstate.Completed)
		e.reporter.StartTask(id, meta.Total)
		e.reporter.FinishTask(id, FinishResult{Kind: FinishSuccess, Path: destPath, Size: fi.Size(), Duration: 0})
		e.maybeCheckpoint()
		return
	}

	var resumeOffset int64
	if opts.ResumeDownload && opts.EnableRange {
		if fi, statErr := os.Stat(destPath); statErr == nil {
			resumeOffset = fi.Size()
		}
	}

	rangeHeader := ""
	if resumeOffset > 0 {
		rangeHeader = fmt.Sprintf("bytes=%d-", resumeOffset)
	}

	resp, err := e.doRequest(ctx, client, resolved, opts, rangeHeader)
	if err != nil {
		e.reporter.OperationResult(OpDownloadTask, id, 502, err.Error())
		cancel()
		return
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		e.reporter.OperationResult(OpDownloadTask, id, resp.StatusCode, "unexpected status")
		cancel()
		return
	}
	defer resp.Body.Close()

	streamCtx, streamSpan := tracing.StartStream(ctx, e.tracer, id, resolved.URL)
	defer streamSpan.End()

	total := meta.Total
	if total == 0 && resp.ContentLength > 0 {
		total = resp.ContentLength + resumeOffset
	}

	flags := os.O_CREATE | os.O_WRONLY
	if resumeOffset > 0 && resp.StatusCode == http.StatusPartialContent {
		flags |= os.O_APPEND
	} else {
		resumeOffset = 0
	}

	t := newTask(id, resolved.URL, destPath, total, cancel)
	e.registerTask(t)

	f, err := os.OpenFile(destPath, flags, 0o644)
	if err != nil {
		t.transition(taskstate.Failed)
		e.reporter.FinishTask(id, FinishResult{Kind: FinishFailed, Error: err.Error(), Retryable: true})
		e.maybeCheckpoint()
		return
	}
	defer f.Close()

	e.reporter.StartTask(id, total)

	sub, unsubscribe := e.broadcast.subscribe()
	defer unsubscribe()

	downloaded := resumeOffset
	startTime := time.Now()

	bufSize := opts.BufferSize
	if opts.ChunkSize > 0 {
		bufSize = opts.ChunkSize
	}
	buf := make([]byte, bufSize)

chunkLoop:
	for {
		switch e.observe(t, sub) {
		case actionCanceled:
			e.reporter.FinishTask(id, FinishResult{Kind: FinishCanceled})
			e.maybeCheckpoint()
			return
		case actionBreak:
			break chunkLoop
		}

		nr, er := resp.Body.Read(buf)
		if nr > 0 {
			if err := e.paceChunk(streamCtx, opts, nr); err != nil {
				t.transition(taskstate.Failed)
				tracing.RecordError(streamSpan, err)
				e.reporter.FinishTask(id, FinishResult{Kind: FinishFailed, Error: err.Error(), Retryable: true})
				e.maybeCheckpoint()
				return
			}

			nw, ew := f.Write(buf[:nr])
			if ew == nil && nw != nr {
				ew = fmt.Errorf("short write: wrote %d of %d bytes", nw, nr)
			}
			if ew != nil {
				t.transition(taskstate.Failed)
				tracing.RecordError(streamSpan, ew)
				e.reporter.FinishTask(id, FinishResult{Kind: FinishFailed, Error: ew.Error(), Retryable: true})
				e.maybeCheckpoint()
				return
			}

			downloaded += int64(nw)
			progress := computeProgress(downloaded, total, time.Since(startTime))
			t.setProgress(progress)
			e.reporter.UpdateProgress(id, progress)
			e.maybeCheckpoint()
		}
		if er != nil {
			if er == io.EOF {
				break chunkLoop
			}
			t.transition(taskstate.Failed)
			tracing.RecordError(streamSpan, er)
			e.reporter.FinishTask(id, FinishResult{Kind: FinishFailed, Error: er.Error(), Retryable: true})
			e.maybeCheckpoint()
			return
		}
	}

	_ = f.Sync()
	fi, statErr := os.Stat(destPath)
	if statErr == nil && total > 0 && fi.Size() == total {
		t.transition(taskstate.Completed)
		streamSpan.SetAttributes(tracing.AttrBytesTotal.Int64(fi.Size()))
		e.reporter.FinishTask(id, FinishResult{Kind: FinishSuccess, Path: destPath, Size: fi.Size(), Duration: time.Since(startTime)})
	} else {
		f.Close()
		os.Remove(destPath)
		t.transition(taskstate.Failed)
		tracing.RecordError(streamSpan, fmt.Errorf("final size does not match declared total"))
		e.reporter.FinishTask(id, FinishResult{Kind: FinishFailed, Error: "final size does not match declared total", Retryable: true})
	}
	if err := e.saveStateNow(); err != nil {
		e.log.Warn("final checkpoint write failed", "error", err)
	}
}

// observe is the chunk loop's single join point for both state machines,
// reacting exactly as the observation table dictates before any chunk is
// written.
func (e *Engine) observe(t *task, sub <-chan taskstate.EngineState) workerAction {
	for {
		global := e.getState()
		ts := t.getState()

		switch {
		case ts == taskstate.Canceled:
			return actionCanceled
		case ts == taskstate.Failed || ts == taskstate.Completed:
			return actionBreak
		case global == taskstate.Stopped:
			if t.cancel != nil {
				t.cancel()
			}
			t.setState(taskstate.Canceled)
			return actionCanceled
		case global == taskstate.Idle:
			e.forceStateFromWorker(taskstate.Running)
		case global == taskstate.Suspended:
			t.setState(taskstate.Paused)
			e.waitWhileSuspended(sub)
			t.transition(taskstate.Downloading)
		case global == taskstate.Running && ts == taskstate.Pending:
			t.setState(taskstate.Downloading)
			return actionWrite
		case global == taskstate.Running && ts == taskstate.Paused:
			waitTick(sub)
		case ts == taskstate.Downloading:
			return actionWrite
		default:
			return actionWrite
		}
	}
}

// waitWhileSuspended blocks until global state leaves Suspended, polling
// on a bounded timeout so a missed broadcast can never deadlock a worker.
func (e *Engine) waitWhileSuspended(sub <-chan taskstate.EngineState) {
	for e.getState() == taskstate.Suspended {
		waitTick(sub)
	}
}

func waitTick(sub <-chan taskstate.EngineState) {
	select {
	case <-sub:
	case <-time.After(time.Second):
	}
}

func (e *Engine) httpClient() *http.Client {
	e.optionsMu.RLock()
	defer e.optionsMu.RUnlock()
	return e.client
}

// doRequest issues a GET against the resolved target with the resolved
// and configured headers, user agent, and auth applied; an empty
// rangeHeader omits the Range header entirely (the probe request).
func (e *Engine) doRequest(ctx context.Context, client *http.Client, resolved ResolvedTarget, opts Options, rangeHeader string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	applyHeaders(req, opts.Headers)
	applyHeaders(req, resolved.Headers)
	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}
	applyAuth(req, resolved.Auth)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	return client.Do(req)
}

// paceChunk applies the optional, disabled-by-default rate limiting pass:
// when a limiter is configured it blocks until nr bytes' worth of tokens
// are available, otherwise it is a no-op. This never runs unless the
// caller explicitly sets Options.RateLimiter/PerConnectionRateLimiter.
func (e *Engine) paceChunk(ctx context.Context, opts Options, nr int) error {
	if opts.RateLimiter != nil {
		if err := opts.RateLimiter.WaitN(ctx, nr); err != nil {
			return err
		}
	}
	if opts.PerConnectionRateLimiter != nil {
		if err := opts.PerConnectionRateLimiter.WaitN(ctx, nr); err != nil {
			return err
		}
	}
	return nil
}

// templateContextFor builds the typed template context the path planner
// renders custom naming/organization templates against.
func templateContextFor(resolved ResolvedTarget, meta ResponseMetadata) template.Context {
	domain := ""
	if u, err := url.Parse(resolved.URL); err == nil {
		domain = u.Host
	}

	filename := meta.SuggestedFilename
	ext := filepath.Ext(filename)

	custom := map[string]string{}
	for _, h := range resolved.Headers {
		if h.Key == "X-Resource-Id" {
			custom["resource_id"] = h.Value
		}
	}

	return template.Context{
		URL:         resolved.URL,
		Domain:      domain,
		Filename:    filename,
		Ext:         ext,
		Size:        meta.Total,
		ContentType: meta.ContentType,
		Date:        time.Now(),
		Custom:      custom,
	}
}
