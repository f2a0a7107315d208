// SPDX-License-Identifier: LGPL-3.0-or-later

package reporter

import "hyperfetch"

// Multi fans a single event stream out to several reporters, e.g. a
// BarReporter for terminal output alongside a MetricsReporter for
// Prometheus scraping.
type Multi struct {
	reporters []hyperfetch.Reporter
}

// NewMulti returns a Reporter that forwards every event to each of rs in
// order.
func NewMulti(rs ...hyperfetch.Reporter) Multi {
	return Multi{reporters: rs}
}

func (m Multi) StartTask(taskID uint32, total int64) {
	for _, r := range m.reporters {
		r.StartTask(taskID, total)
	}
}

func (m Multi) UpdateProgress(taskID uint32, progress hyperfetch.Progress) {
	for _, r := range m.reporters {
		r.UpdateProgress(taskID, progress)
	}
}

func (m Multi) FinishTask(taskID uint32, result hyperfetch.FinishResult) {
	for _, r := range m.reporters {
		r.FinishTask(taskID, result)
	}
}

func (m Multi) OperationResult(op hyperfetch.Operation, taskID uint32, code int, message string) {
	for _, r := range m.reporters {
		r.OperationResult(op, taskID, code, message)
	}
}
