// Package progress provides the stage-task vocabulary used to report
// multi-stage pipeline work.
package progress

import (
	"math"
	"sync"
)

// Status is the lifecycle state of a stage task.
type Status string

const (
	Pending   Status = "pending"
	Running   Status = "running"
	Completed Status = "completed"
	Error     Status = "error"
)

// Terminal reports whether s is completed or error.
func (s Status) Terminal() bool {
	return s == Completed || s == Error
}

// StageTask is one pipeline stage's progress.
type StageTask struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Progress *int   `json:"progress,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Sink receives ordered snapshots of a task list. Snapshots are copies and
// may be retained.
type Sink func([]StageTask)

// Stage declares a task up front. Measured stages start with progress 0.
type Stage struct {
	ID       string
	Name     string
	Measured bool
}

// Tracker owns an ordered task list and enforces monotonic status
// transitions: pending→running→{completed,error}, with pending→completed and
// pending→error allowed for skipped or cancelled stages. Terminal tasks never
// change again.
type Tracker struct {
	mu    sync.Mutex
	tasks []StageTask
	index map[string]int
	sink  Sink
}

// NewTracker creates a tracker with every stage pending.
func NewTracker(sink Sink, stages ...Stage) *Tracker {
	t := &Tracker{
		tasks: make([]StageTask, len(stages)),
		index: make(map[string]int, len(stages)),
		sink:  sink,
	}
	for i, s := range stages {
		t.tasks[i] = StageTask{ID: s.ID, Name: s.Name, Status: Pending}
		if s.Measured {
			t.tasks[i].Progress = intPtr(0)
		}
		t.index[s.ID] = i
	}
	return t
}

// Start moves a pending task to running.
func (t *Tracker) Start(id, message string) bool {
	return t.mutate(id, func(task *StageTask) bool {
		if task.Status != Pending {
			return false
		}
		task.Status = Running
		task.Message = message
		return true
	})
}

// Update changes the message and, when pct >= 0, the progress of a running task.
func (t *Tracker) Update(id, message string, pct int) bool {
	return t.mutate(id, func(task *StageTask) bool {
		if task.Status != Running {
			return false
		}
		task.Message = message
		if pct >= 0 {
			task.Progress = intPtr(clamp(pct))
		}
		return true
	})
}

// Note records a non-fatal error on a running task without changing its status.
func (t *Tracker) Note(id, message, errText string) bool {
	return t.mutate(id, func(task *StageTask) bool {
		if task.Status != Running {
			return false
		}
		task.Message = message
		task.Error = errText
		return true
	})
}

// Complete marks a pending or running task completed.
func (t *Tracker) Complete(id, message string) bool {
	return t.mutate(id, func(task *StageTask) bool {
		if task.Status.Terminal() {
			return false
		}
		task.Status = Completed
		task.Message = message
		if task.Progress != nil {
			task.Progress = intPtr(100)
		}
		return true
	})
}

// Fail marks a pending or running task as error.
func (t *Tracker) Fail(id, message string, err error) bool {
	return t.mutate(id, func(task *StageTask) bool {
		if task.Status.Terminal() {
			return false
		}
		task.Status = Error
		task.Message = message
		if err != nil {
			task.Error = err.Error()
		}
		return true
	})
}

// CompleteRemaining marks every non-terminal task completed with message.
func (t *Tracker) CompleteRemaining(message string) {
	t.mutateAll(func(task *StageTask) {
		task.Status = Completed
		task.Message = message
		if task.Progress != nil {
			task.Progress = intPtr(100)
		}
	})
}

// FailRemaining marks every non-terminal task as error with reason.
func (t *Tracker) FailRemaining(reason string) {
	t.mutateAll(func(task *StageTask) {
		task.Status = Error
		task.Error = reason
	})
}

// Publish emits the current task list without changing it.
func (t *Tracker) Publish() {
	t.emit(t.Snapshot())
}

// Snapshot returns a copy of the current task list.
func (t *Tracker) Snapshot() []StageTask {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Clone(t.tasks)
}

func (t *Tracker) mutate(id string, fn func(*StageTask) bool) bool {
	t.mu.Lock()
	i, ok := t.index[id]
	if !ok || !fn(&t.tasks[i]) {
		t.mu.Unlock()
		return false
	}
	snap := Clone(t.tasks)
	t.mu.Unlock()
	t.emit(snap)
	return true
}

func (t *Tracker) mutateAll(fn func(*StageTask)) {
	t.mu.Lock()
	changed := false
	for i := range t.tasks {
		if t.tasks[i].Status.Terminal() {
			continue
		}
		fn(&t.tasks[i])
		changed = true
	}
	snap := Clone(t.tasks)
	t.mu.Unlock()
	if changed {
		t.emit(snap)
	}
}

func (t *Tracker) emit(snap []StageTask) {
	if t.sink != nil {
		t.sink(snap)
	}
}

// Clone deep-copies a task list.
func Clone(tasks []StageTask) []StageTask {
	if tasks == nil {
		return nil
	}
	out := make([]StageTask, len(tasks))
	for i, task := range tasks {
		out[i] = task
		if task.Progress != nil {
			out[i].Progress = intPtr(*task.Progress)
		}
	}
	return out
}

// Percent returns done/total as a rounded integer percentage.
func Percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return clamp(int(math.Round(float64(done) / float64(total) * 100)))
}

func clamp(pct int) int {
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

func intPtr(v int) *int { return &v }
