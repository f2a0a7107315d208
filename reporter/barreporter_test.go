// SPDX-License-Identifier: LGPL-3.0-or-later

package reporter

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"hyperfetch"
)

func TestBarReporter_StartUpdateFinish(t *testing.T) {
	var buf bytes.Buffer
	r := NewBarReporter(&buf)

	r.StartTask(1, 100)
	r.UpdateProgress(1, hyperfetch.Progress{Downloaded: 50, Total: 100})
	r.FinishTask(1, hyperfetch.FinishResult{Kind: hyperfetch.FinishSuccess})

	_, tracked := r.multi.Get(1)
	assert.False(t, tracked, "finished task should be removed from the tracked set")
}

func TestBarReporter_FinishFailedReportsError(t *testing.T) {
	var buf bytes.Buffer
	r := NewBarReporter(&buf)

	r.StartTask(2, 100)
	r.FinishTask(2, hyperfetch.FinishResult{Kind: hyperfetch.FinishFailed, Error: "connection reset"})

	assert.Contains(t, buf.String(), "connection reset")
}

func TestBarReporter_UpdateUnknownTaskIsNoop(t *testing.T) {
	var buf bytes.Buffer
	r := NewBarReporter(&buf)
	r.UpdateProgress(99, hyperfetch.Progress{Downloaded: 1, Total: 2})
	r.FinishTask(99, hyperfetch.FinishResult{Kind: hyperfetch.FinishSuccess})
}

func TestMulti_ForwardsToAll(t *testing.T) {
	var a, b bytes.Buffer
	m := NewMulti(NewBarReporter(&a), NewBarReporter(&b))

	m.StartTask(1, 10)
	m.UpdateProgress(1, hyperfetch.Progress{Downloaded: 5, Total: 10})
	m.FinishTask(1, hyperfetch.FinishResult{Kind: hyperfetch.FinishSuccess})

	assert.NotPanics(t, func() {
		m.OperationResult(hyperfetch.OpStartTask, 1, 200, "ok")
	})
}
