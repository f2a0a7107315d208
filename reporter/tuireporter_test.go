// SPDX-License-Identifier: LGPL-3.0-or-later

package reporter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBarFill(t *testing.T) {
	assert.Equal(t, "                    ", barFill(0))
	assert.Equal(t, "==========          ", barFill(50))
	assert.Len(t, barFill(200), 20, "fill never exceeds the bar width even past 100%")
}

func TestFormatRate(t *testing.T) {
	assert.Equal(t, "512B", formatRate(512))
	assert.Equal(t, "2.0KB", formatRate(2<<10))
	assert.Equal(t, "3.0MB", formatRate(3<<20))
}

func TestRenderRow(t *testing.T) {
	done := renderRow(tuiRow{label: "task 1", total: 100, downloaded: 100, done: true})
	assert.Contains(t, done, "done")

	failed := renderRow(tuiRow{label: "task 2", total: 100, downloaded: 40, failed: true})
	assert.Contains(t, failed, "failed")

	running := renderRow(tuiRow{label: "task 3", total: 100, downloaded: 50})
	assert.NotContains(t, running, "done")
	assert.NotContains(t, running, "failed")
}

func TestTUIReportModel_UpdateTracksRows(t *testing.T) {
	m := tuiReportModel{}
	next, cmd := m.Update(tuiRowMsg{taskID: 1, total: 10, downloaded: 5})
	assert.Nil(t, cmd)

	updated, ok := next.(tuiReportModel)
	assert.True(t, ok)
	assert.Equal(t, int64(5), updated.rows[1].downloaded)
}

func TestTUIReportModel_ViewRendersAllRows(t *testing.T) {
	m := tuiReportModel{rows: map[uint32]tuiRow{
		1: {label: "task 1", total: 10, downloaded: 10, done: true},
		2: {label: "task 2", total: 10, downloaded: 3},
	}}
	view := m.View()
	assert.Contains(t, view, "task 1")
	assert.Contains(t, view, "task 2")
}
