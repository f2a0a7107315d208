// SPDX-License-Identifier: LGPL-3.0-or-later

package hyperfetch

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hyperfetch/internal/pathplan"
	"hyperfetch/internal/taskstate"
)

type recordingReporter struct {
	mu       sync.Mutex
	starts   []uint32
	updates  []uint32
	finishes map[uint32]FinishResult
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{finishes: make(map[uint32]FinishResult)}
}

func (r *recordingReporter) StartTask(taskID uint32, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, taskID)
}

func (r *recordingReporter) UpdateProgress(taskID uint32, _ Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, taskID)
}

func (r *recordingReporter) FinishTask(taskID uint32, result FinishResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishes[taskID] = result
}

func (r *recordingReporter) OperationResult(Operation, uint32, int, string) {}

func (r *recordingReporter) finishCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.finishes)
}

func (r *recordingReporter) finishOf(id uint32) (FinishResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.finishes[id]
	return res, ok
}

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Fail(t, "condition not met before timeout")
}

func TestEngine_HappyPath(t *testing.T) {
	body := make([]byte, 1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(body)))
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}))
	defer srv.Close()

	dir := t.TempDir()
	opts := DefaultOptions()
	opts.SavePath = dir
	opts.Concurrency = 3

	reporter := newRecordingReporter()
	eng, err := New(opts, ResolveFunc(func(req Request) (ResolvedTarget, error) {
		return ResolvedTarget{URL: req.URL}, nil
	}), reporter)
	require.NoError(t, err)

	reqs := []Request{
		NewURLRequest(srv.URL + "/a.bin"),
		NewURLRequest(srv.URL + "/b.bin"),
		NewURLRequest(srv.URL + "/c.bin"),
	}
	require.NoError(t, eng.Start(reqs))

	waitForCondition(t, 5*time.Second, func() bool { return reporter.finishCount() == 3 })

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	count := 0
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".bin" {
			count++
			fi, err := entry.Info()
			require.NoError(t, err)
			assert.EqualValues(t, 1024, fi.Size())
		}
	}
	assert.Equal(t, 3, count)

	for _, ti := range eng.Tasks() {
		res, ok := reporter.finishOf(ti.ID)
		require.True(t, ok)
		assert.Equal(t, FinishSuccess, res.Kind)
	}
}

func TestEngine_ConflictRename(t *testing.T) {
	body := []byte("hello world")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(body)))
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}))
	defer srv.Close()

	dir := t.TempDir()
	existing := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(existing, []byte("pre-existing"), 0o644))

	opts := DefaultOptions()
	opts.SavePath = dir
	opts.PathPolicy.Conflict = pathplan.ConflictRename

	reporter := newRecordingReporter()
	eng, err := New(opts, ResolveFunc(func(req Request) (ResolvedTarget, error) {
		return ResolvedTarget{URL: req.URL}, nil
	}), reporter)
	require.NoError(t, err)

	require.NoError(t, eng.Start([]Request{NewURLRequest(srv.URL + "/a.bin")}))

	waitForCondition(t, 5*time.Second, func() bool { return reporter.finishCount() == 1 })

	renamed := filepath.Join(dir, "a_1.bin")
	data, err := os.ReadFile(renamed)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	original, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "pre-existing", string(original))
}

func TestEngine_PauseResume(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.SavePath = dir

	eng, err := New(opts, ResolveFunc(func(req Request) (ResolvedTarget, error) {
		return ResolvedTarget{URL: req.URL}, nil
	}), NopReporter{})
	require.NoError(t, err)

	require.NoError(t, eng.Start(nil))
	assert.Equal(t, "running", eng.getState().String())

	require.NoError(t, eng.Pause())
	assert.Equal(t, "suspended", eng.getState().String())

	err = eng.Pause()
	require.Error(t, err)
	assert.Equal(t, "suspended", eng.getState().String())

	require.NoError(t, eng.Resume())
	assert.Equal(t, "running", eng.getState().String())
}

func TestEngine_StopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.SavePath = dir

	eng, err := New(opts, ResolveFunc(func(req Request) (ResolvedTarget, error) {
		return ResolvedTarget{URL: req.URL}, nil
	}), NopReporter{})
	require.NoError(t, err)

	require.NoError(t, eng.Stop())
	assert.Equal(t, "stopped", eng.getState().String())

	require.NoError(t, eng.Stop())
	assert.Equal(t, "stopped", eng.getState().String())
}

func TestEngine_StartRequiresIdleOrStopped(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.SavePath = dir

	eng, err := New(opts, ResolveFunc(func(req Request) (ResolvedTarget, error) {
		return ResolvedTarget{URL: req.URL}, nil
	}), NopReporter{})
	require.NoError(t, err)

	require.NoError(t, eng.Start(nil))
	err = eng.Start(nil)
	require.Error(t, err)
}

func TestEngine_CancelTaskNotFound(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.SavePath = dir

	eng, err := New(opts, ResolveFunc(func(req Request) (ResolvedTarget, error) {
		return ResolvedTarget{URL: req.URL}, nil
	}), NopReporter{})
	require.NoError(t, err)

	err = eng.CancelTask(999)
	require.Error(t, err)
}

func TestEngine_ResolverFailureSkipsRequest(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.SavePath = dir

	reporter := newRecordingReporter()
	eng, err := New(opts, ResolveFunc(func(req Request) (ResolvedTarget, error) {
		return ResolvedTarget{}, fmt.Errorf("cannot resolve")
	}), reporter)
	require.NoError(t, err)

	require.NoError(t, eng.Start([]Request{NewURLRequest("https://example.invalid/x")}))

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, eng.Tasks())
}

func TestEngine_UpdateOptionsSkipsClientRebuildWhenAllTasksTerminal(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.SavePath = dir

	eng, err := New(opts, ResolveFunc(func(req Request) (ResolvedTarget, error) {
		return ResolvedTarget{URL: req.URL}, nil
	}), NopReporter{})
	require.NoError(t, err)

	eng.tasksMu.Lock()
	t1 := newTask(1, "https://example.invalid/a", filepath.Join(dir, "a"), 10, nil)
	t1.setState(taskstate.Completed)
	t2 := newTask(2, "https://example.invalid/b", filepath.Join(dir, "b"), 10, nil)
	t2.setState(taskstate.Canceled)
	eng.tasks[t1.id] = t1
	eng.tasks[t2.id] = t2
	eng.order = []uint32{t1.id, t2.id}
	eng.tasksMu.Unlock()

	before := eng.client
	require.NoError(t, eng.UpdateOptions(opts))
	assert.Same(t, before, eng.client, "client should not be rebuilt once every task is terminal")

	eng.tasksMu.Lock()
	t2.setState(taskstate.Downloading)
	eng.tasksMu.Unlock()

	require.NoError(t, eng.UpdateOptions(opts))
	assert.NotSame(t, before, eng.client, "client should be rebuilt once a task is still active")
}
