// SPDX-License-Identifier: LGPL-3.0-or-later

// Package taskstate holds the two independent state machines driven by the
// engine: the global lifecycle (EngineState) and the per-task lifecycle
// (TaskState). Transitions are centralized here as small lookup tables so
// the worker's chunk loop stays the single place that invokes them.
package taskstate

import "fmt"

// EngineState is the global lifecycle of a downloader engine.
type EngineState int

const (
	Idle EngineState = iota
	Running
	Suspended
	Stopped
)

func (s EngineState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Suspended:
		return "suspended"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// engineTransitions is the allowed From -> {To...} table for the global
// lifecycle. The most permissive consistent reading of the source's three
// disagreeing revisions is adopted here: Idle->Idle, Idle->Running,
// Idle->Stopped, Running->Suspended, Running->Stopped, Suspended->Running,
// Suspended->Stopped, Stopped->Idle, Stopped->Stopped.
var engineTransitions = map[EngineState]map[EngineState]bool{
	Idle:      {Idle: true, Running: true, Stopped: true},
	Running:   {Suspended: true, Stopped: true},
	Suspended: {Running: true, Stopped: true},
	Stopped:   {Idle: true, Stopped: true},
}

// CanTransitionEngine reports whether from -> to is an allowed global
// transition.
func CanTransitionEngine(from, to EngineState) bool {
	return engineTransitions[from][to]
}

// TransitionEngine validates and returns the target state, or an error
// naming the illegal pair. Callers must treat the error as non-fatal.
func TransitionEngine(from, to EngineState) (EngineState, error) {
	if !CanTransitionEngine(from, to) {
		return from, fmt.Errorf("illegal engine transition: %s -> %s", from, to)
	}
	return to, nil
}

// TaskState is the per-task lifecycle.
type TaskState int

const (
	Pending TaskState = iota
	Downloading
	Paused
	Completed
	Failed
	Canceled
)

func (s TaskState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Downloading:
		return "downloading"
	case Paused:
		return "paused"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transitions are permitted from s.
// Completed and Canceled never transition again; Failed is terminal except
// for the explicit escape hatch to Canceled (the stricter of the two source
// revisions, per spec).
func IsTerminal(s TaskState) bool {
	return s == Completed || s == Canceled
}

var taskTransitions = map[TaskState]map[TaskState]bool{
	Pending:     {Downloading: true, Canceled: true},
	Downloading: {Paused: true, Completed: true, Failed: true, Canceled: true},
	Paused:      {Pending: true, Downloading: true, Canceled: true},
	Failed:      {Canceled: true},
	Completed:   {},
	Canceled:    {},
}

// CanTransitionTask reports whether from -> to is an allowed per-task
// transition. Canceled -> anything is always false; an attempt to leave it
// must be treated by the caller as a no-op success, not an error.
func CanTransitionTask(from, to TaskState) bool {
	return taskTransitions[from][to]
}

// TransitionTask validates and returns the target state. Transitioning out
// of Canceled is a no-op success: it returns (Canceled, nil) rather than an
// error, matching "any attempt is a no-op success" in the spec.
func TransitionTask(from, to TaskState) (TaskState, error) {
	if from == Canceled {
		return Canceled, nil
	}
	if !CanTransitionTask(from, to) {
		return from, fmt.Errorf("illegal task transition: %s -> %s", from, to)
	}
	return to, nil
}
