// SPDX-License-Identifier: LGPL-3.0-or-later

package hyperfetch

import (
	"context"
	"sync"
	"time"

	"hyperfetch/internal/taskstate"
)

// task is the engine's internal task record: identity and path are
// immutable after creation; state and progress are independently locked so
// one worker's writes never block another task's reads, per the ownership
// rules in the spec's data model.
type task struct {
	id       uint32
	url      string
	filePath string
	total    int64
	start    time.Time

	stateMu sync.RWMutex
	state   taskstate.TaskState

	progressMu sync.Mutex
	progress   Progress

	cancel context.CancelFunc
}

func newTask(id uint32, url, filePath string, total int64, cancel context.CancelFunc) *task {
	return &task{
		id:       id,
		url:      url,
		filePath: filePath,
		total:    total,
		start:    time.Now(),
		state:    taskstate.Pending,
		cancel:   cancel,
	}
}

func (t *task) getState() taskstate.TaskState {
	t.stateMu.RLock()
	defer t.stateMu.RUnlock()
	return t.state
}

// setState unconditionally writes the state, used for externally observed
// transitions (e.g. reacting to global Stopped) where the caller has
// already decided the target is valid.
func (t *task) setState(s taskstate.TaskState) {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	t.state = s
}

// transition validates and applies a task-state transition, returning the
// resulting state. Leaving Canceled is a no-op that returns Canceled and
// no error; any other disallowed transition leaves the state unchanged and
// returns it with an error.
func (t *task) transition(to taskstate.TaskState) (taskstate.TaskState, error) {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	next, err := taskstate.TransitionTask(t.state, to)
	if err != nil {
		return t.state, err
	}
	t.state = next
	return next, nil
}

func (t *task) getProgress() Progress {
	t.progressMu.Lock()
	defer t.progressMu.Unlock()
	return t.progress
}

func (t *task) setProgress(p Progress) {
	t.progressMu.Lock()
	defer t.progressMu.Unlock()
	t.progress = p
}

// TaskInfo is the read-only, externally visible view of a task returned by
// get_tasks / get_downloading_tasks.
type TaskInfo struct {
	ID       uint32
	URL      string
	FilePath string
	Total    int64
	State    taskstate.TaskState
	Progress Progress
}

func (t *task) info() TaskInfo {
	return TaskInfo{
		ID:       t.id,
		URL:      t.url,
		FilePath: t.filePath,
		Total:    t.total,
		State:    t.getState(),
		Progress: t.getProgress(),
	}
}
