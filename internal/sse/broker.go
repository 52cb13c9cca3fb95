// Package sse implements a Server-Sent Events broker for ingestion progress
// and vault change notifications.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/laguz/internal/progress"
)

// Event types.
const (
	EventProgress     = "progress"
	EventFileChanged  = "file.changed"
	EventVaultChanged = "vault.changed"
)

// DefaultKeepAlive is the interval between comment frames on idle streams.
const DefaultKeepAlive = 15 * time.Second

const clientBuffer = 64

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// FileChange is the payload of a file.changed event.
type FileChange struct {
	Op   string `json:"op"`
	Path string `json:"path"`
}

// Option configures a Broker.
type Option func(*Broker)

// WithKeepAlive sets the keepalive interval. Zero disables keepalives.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Broker) {
		b.keepAlive = d
	}
}

// Broker fans events out to SSE clients.
//
// A single event loop owns the client set, the frame sequence, the last
// progress frame and the vault.changed throttle. Public methods talk to it
// over channels. Clients that subscribe mid-run first receive the latest
// progress snapshot.
type Broker struct {
	changeMin time.Duration
	keepAlive time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	fileCh        chan FileChange
	countCh       chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker emitting at most one vault.changed event per
// changeThrottle.
func NewBroker(changeThrottle time.Duration, opts ...Option) *Broker {
	if changeThrottle <= 0 {
		changeThrottle = 2 * time.Second
	}

	b := &Broker{
		changeMin:     changeThrottle,
		keepAlive:     DefaultKeepAlive,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		fileCh:        make(chan FileChange, 256),
		countCh:       make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		seq          uint64
		lastProgress []byte
		lastChange   time.Time
	)

	encode := func(e Event) []byte {
		payload, err := json.Marshal(e.Data)
		if err != nil {
			return nil
		}
		seq++
		return fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", seq, e.Type, payload)
	}

	send := func(ch chan []byte, frame []byte) {
		select {
		case ch <- frame:
		default:
			// Slow client; drop rather than stall the loop.
		}
	}

	broadcast := func(e Event) {
		frame := encode(e)
		if frame == nil {
			return
		}
		if e.Type == EventProgress {
			lastProgress = frame
		}
		for ch := range clients {
			send(ch, frame)
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}
			if lastProgress != nil {
				send(ch, lastProgress)
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case e := <-b.publishCh:
			broadcast(e)

		case fc := <-b.fileCh:
			broadcast(Event{Type: EventFileChanged, Data: fc})
			if now := time.Now(); now.Sub(lastChange) >= b.changeMin {
				lastChange = now
				broadcast(Event{Type: EventVaultChanged, Data: struct{}{}})
			}

		case resp := <-b.countCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(e Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- e:
	case <-b.stopped:
	}
}

// PublishProgress broadcasts a progress snapshot. It has the progress.Sink
// signature so a pipeline can report to it directly.
func (b *Broker) PublishProgress(tasks []progress.StageTask) {
	b.Publish(Event{Type: EventProgress, Data: tasks})
}

// PublishFileEvent broadcasts a file change and a throttled vault.changed.
// It has the watch.EventCallback signature.
func (b *Broker) PublishFileEvent(op, path string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.fileCh <- FileChange{Op: op, Path: path}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	var ping <-chan time.Time
	if b.keepAlive > 0 {
		ticker := time.NewTicker(b.keepAlive)
		defer ticker.Stop()
		ping = ticker.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping:
			_, _ = w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		case frame, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(frame)
			flusher.Flush()
		}
	}
}
