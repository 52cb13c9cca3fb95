package progress

import "sync"

// Board merges the task lists of several pipeline phases into one ordered
// snapshot stream. Phases appear in the order they were registered.
type Board struct {
	mu     sync.Mutex
	phases [][]StageTask
	sink   Sink
}

// NewBoard creates a board forwarding merged snapshots to sink.
func NewBoard(sink Sink) *Board {
	return &Board{sink: sink}
}

// Phase registers a new phase and returns the sink its tracker reports to.
func (b *Board) Phase() Sink {
	b.mu.Lock()
	i := len(b.phases)
	b.phases = append(b.phases, nil)
	b.mu.Unlock()

	return func(tasks []StageTask) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.phases[i] = Clone(tasks)
		if b.sink != nil {
			b.sink(b.snapshotLocked())
		}
	}
}

// Snapshot returns the merged task list.
func (b *Board) Snapshot() []StageTask {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Board) snapshotLocked() []StageTask {
	var out []StageTask
	for _, p := range b.phases {
		out = append(out, Clone(p)...)
	}
	return out
}
