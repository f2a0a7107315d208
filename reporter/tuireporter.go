// SPDX-License-Identifier: LGPL-3.0-or-later

package reporter

import (
	"fmt"
	"sort"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"hyperfetch"
)

var (
	tuiHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	tuiBarStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	tuiDoneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	tuiFailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type tuiRow struct {
	taskID     uint32
	downloaded int64
	total      int64
	rateBPS    float64
	done       bool
	failed     bool
	label      string
}

type tuiRowMsg tuiRow

// TUIReporter renders every in-flight task as a row in a single
// bubbletea full-screen program, the way the teacher's interactive
// export TUI drives one tea.Program for the whole session.
type TUIReporter struct {
	mu      sync.Mutex
	rows    map[uint32]tuiRow
	program *tea.Program
}

// NewTUIReporter starts the bubbletea program in the background;
// callers should arrange to call Stop when the engine finishes.
func NewTUIReporter() *TUIReporter {
	r := &TUIReporter{rows: make(map[uint32]tuiRow)}
	model := tuiReportModel{reporter: r}
	r.program = tea.NewProgram(model)
	go func() {
		_, _ = r.program.Run()
	}()
	return r
}

// Stop quits the bubbletea program.
func (r *TUIReporter) Stop() {
	if r.program != nil {
		r.program.Quit()
	}
}

func (r *TUIReporter) StartTask(taskID uint32, total int64) {
	r.mu.Lock()
	r.rows[taskID] = tuiRow{taskID: taskID, total: total, label: fmt.Sprintf("task %d", taskID)}
	r.mu.Unlock()
	r.send(taskID)
}

func (r *TUIReporter) UpdateProgress(taskID uint32, progress hyperfetch.Progress) {
	r.mu.Lock()
	row := r.rows[taskID]
	row.taskID = taskID
	row.downloaded = progress.Downloaded
	row.total = progress.Total
	row.rateBPS = progress.RateBPS
	r.rows[taskID] = row
	r.mu.Unlock()
	r.send(taskID)
}

func (r *TUIReporter) FinishTask(taskID uint32, result hyperfetch.FinishResult) {
	r.mu.Lock()
	row := r.rows[taskID]
	row.done = result.Kind == hyperfetch.FinishSuccess
	row.failed = result.Kind != hyperfetch.FinishSuccess
	r.rows[taskID] = row
	r.mu.Unlock()
	r.send(taskID)
}

func (r *TUIReporter) OperationResult(hyperfetch.Operation, uint32, int, string) {}

func (r *TUIReporter) send(taskID uint32) {
	r.mu.Lock()
	row := r.rows[taskID]
	r.mu.Unlock()
	if r.program != nil {
		r.program.Send(tuiRowMsg(row))
	}
}

type tuiReportModel struct {
	reporter *TUIReporter
	rows     map[uint32]tuiRow
}

func (m tuiReportModel) Init() tea.Cmd {
	return nil
}

func (m tuiReportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tuiRowMsg:
		if m.rows == nil {
			m.rows = make(map[uint32]tuiRow)
		}
		m.rows[msg.taskID] = tuiRow(msg)
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m tuiReportModel) View() string {
	ids := make([]uint32, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := tuiHeaderStyle.Render("hyperfetch") + "\n\n"
	for _, id := range ids {
		row := m.rows[id]
		out += renderRow(row) + "\n"
	}
	return out
}

func renderRow(row tuiRow) string {
	pct := 0.0
	if row.total > 0 {
		pct = float64(row.downloaded) / float64(row.total) * 100
	}

	bar := tuiBarStyle.Render(fmt.Sprintf("[%-20s]", barFill(pct)))
	line := fmt.Sprintf("%s %s %5.1f%%  %s/s", row.label, bar, pct, formatRate(row.rateBPS))

	switch {
	case row.done:
		return tuiDoneStyle.Render(line + "  done")
	case row.failed:
		return tuiFailStyle.Render(line + "  failed")
	default:
		return line
	}
}

func barFill(pct float64) string {
	filled := int(pct / 5)
	if filled > 20 {
		filled = 20
	}
	out := make([]byte, 20)
	for i := range out {
		if i < filled {
			out[i] = '='
		} else {
			out[i] = ' '
		}
	}
	return string(out)
}

func formatRate(bps float64) string {
	switch {
	case bps >= 1<<20:
		return fmt.Sprintf("%.1fMB", bps/(1<<20))
	case bps >= 1<<10:
		return fmt.Sprintf("%.1fKB", bps/(1<<10))
	default:
		return fmt.Sprintf("%.0fB", bps)
	}
}
