// SPDX-License-Identifier: LGPL-3.0-or-later

// Package reporter implements hyperfetch.Reporter against a terminal
// progress bar, a full-screen TUI, and a Prometheus metrics registry, so
// a caller can plug in whichever surface fits its deployment.
package reporter

import (
	"fmt"
	"io"
	"os"

	"hyperfetch"
	"hyperfetch/progress"
)

// BarReporter renders one progress.BarProgress per in-flight task, using
// the teacher's MultiProgress to track the set of live bars keyed by task
// ID instead of export filename.
type BarReporter struct {
	writer io.Writer
	multi  *progress.MultiProgress
}

// NewBarReporter writes bars to w; a nil w defaults to os.Stdout.
func NewBarReporter(w io.Writer) *BarReporter {
	if w == nil {
		w = os.Stdout
	}
	return &BarReporter{writer: w, multi: progress.NewMultiProgress()}
}

func (r *BarReporter) StartTask(taskID uint32, total int64) {
	bar := progress.NewDownloadProgress(r.writer, fmt.Sprintf("task %d", taskID), total)
	r.multi.AddBar(taskID, bar)
}

func (r *BarReporter) UpdateProgress(taskID uint32, progress hyperfetch.Progress) {
	bar, ok := r.multi.Get(taskID)
	if !ok {
		return
	}
	bar.Update(progress.Downloaded)
}

func (r *BarReporter) FinishTask(taskID uint32, result hyperfetch.FinishResult) {
	bar, ok := r.multi.Get(taskID)
	if !ok {
		return
	}

	switch result.Kind {
	case hyperfetch.FinishSuccess:
		bar.Finish()
		r.multi.Remove(taskID)
	default:
		r.multi.Remove(taskID)
		fmt.Fprintf(r.writer, "task %d: %s\n", taskID, result.Error)
	}
}

func (r *BarReporter) OperationResult(op hyperfetch.Operation, taskID uint32, code int, message string) {
	if code >= 400 {
		fmt.Fprintf(r.writer, "operation %d failed for task %d (%d): %s\n", op, taskID, code, message)
	}
}
