// Package pool parses raw files on a bounded set of worker goroutines that
// communicate with a single dispatcher purely through messages.
package pool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/parser"
)

// MaxWorkers caps the default worker count.
const MaxWorkers = 8

// ErrClosed is returned for tasks submitted to, or pending in, a closed pool.
var ErrClosed = errors.New("pool: closed")

// ParseFunc turns one raw file into a note.
type ParseFunc func(models.RawFile) (*models.Note, error)

// DefaultWorkers returns min(NumCPU, MaxWorkers).
func DefaultWorkers() int {
	return min(runtime.NumCPU(), MaxWorkers)
}

type outcome struct {
	note *models.Note
	err  error
}

type task struct {
	id   string
	data []byte
	done chan outcome // buffered; abandoned results are dropped
}

type worker struct {
	id   int
	in   chan []byte
	task *task // owned by the dispatcher
}

type reply struct {
	w       *worker
	data    []byte
	crashed bool
	cause   any
}

// Pool is a fixed set of parse workers. Workers that crash are evicted and
// not replaced.
type Pool struct {
	parse ParseFunc
	log   *slog.Logger

	submitCh chan *task
	replyCh  chan reply
	aliveReq chan chan int
	stopCh   chan struct{}
	stopped  chan struct{}
	closed   atomic.Bool

	// dispatcher state
	idle  []*worker
	alive map[*worker]bool
	queue []*task
}

// New starts a pool of n workers (n <= 0 selects DefaultWorkers). A nil parse
// uses parser.ParseFile.
func New(n int, parse ParseFunc, log *slog.Logger) *Pool {
	if n <= 0 {
		n = DefaultWorkers()
	}
	if parse == nil {
		parse = parser.ParseFile
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Pool{
		parse:    parse,
		log:      log,
		submitCh: make(chan *task),
		replyCh:  make(chan reply),
		aliveReq: make(chan chan int),
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
		alive:    make(map[*worker]bool, n),
	}
	for i := 0; i < n; i++ {
		w := &worker{id: i, in: make(chan []byte, 1)}
		p.alive[w] = true
		p.idle = append(p.idle, w)
		go p.work(w)
	}
	go p.loop()
	return p
}

// Parse submits file and waits for its note. The task keeps running if ctx
// ends first; its result is then discarded.
func (p *Pool) Parse(ctx context.Context, file models.RawFile) (*models.Note, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	id := uuid.NewString()
	data, err := encodeRequest(id, file)
	if err != nil {
		return nil, fmt.Errorf("pool: encode request: %w", err)
	}
	t := &task{id: id, data: data, done: make(chan outcome, 1)}

	select {
	case p.submitCh <- t:
	case <-p.stopped:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case out := <-t.done:
		return out.note, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Alive returns the number of live workers.
func (p *Pool) Alive() int {
	ch := make(chan int, 1)
	select {
	case p.aliveReq <- ch:
		return <-ch
	case <-p.stopped:
		return 0
	}
}

// Close stops the dispatcher and every worker. Pending tasks fail with
// ErrClosed.
func (p *Pool) Close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.stopCh)
	<-p.stopped
}

func (p *Pool) loop() {
	defer close(p.stopped)
	for {
		select {
		case t := <-p.submitCh:
			if len(p.alive) == 0 {
				t.done <- outcome{err: fmt.Errorf("pool: %w", apperr.ErrPoolExhausted)}
				continue
			}
			p.queue = append(p.queue, t)
			p.dispatch()

		case r := <-p.replyCh:
			t := r.w.task
			r.w.task = nil
			if r.crashed {
				p.evict(r.w, t, r.cause)
				continue
			}
			t.done <- decodeOutcome(r.data)
			p.idle = append(p.idle, r.w)
			p.dispatch()

		case ch := <-p.aliveReq:
			ch <- len(p.alive)

		case <-p.stopCh:
			p.shutdown()
			return
		}
	}
}

// dispatch hands queued tasks to idle workers in FIFO order.
func (p *Pool) dispatch() {
	for len(p.idle) > 0 && len(p.queue) > 0 {
		w := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		t := p.queue[0]
		p.queue = p.queue[1:]
		w.task = t
		w.in <- t.data
	}
}

func (p *Pool) evict(w *worker, t *task, cause any) {
	delete(p.alive, w)
	close(w.in)
	p.log.Error("pool: worker crashed",
		slog.Int("worker", w.id),
		slog.Any("cause", cause),
		slog.Int("alive", len(p.alive)))

	if t != nil {
		t.done <- outcome{err: fmt.Errorf("pool: worker %d crashed: %v: %w", w.id, cause, apperr.ErrParseFailure)}
	}
	if len(p.alive) == 0 {
		for _, q := range p.queue {
			q.done <- outcome{err: fmt.Errorf("pool: %w", apperr.ErrPoolExhausted)}
		}
		p.queue = nil
	}
}

func (p *Pool) shutdown() {
	for w := range p.alive {
		close(w.in)
		if w.task != nil {
			w.task.done <- outcome{err: ErrClosed}
			w.task = nil
		}
	}
	for _, q := range p.queue {
		q.done <- outcome{err: ErrClosed}
	}
	p.queue = nil
	p.idle = nil
	clear(p.alive)
}

// work is the worker goroutine: it answers each request message with a
// response message until its input closes or it crashes.
func (p *Pool) work(w *worker) {
	for data := range w.in {
		out, cause, crashed := p.handle(data)
		select {
		case p.replyCh <- reply{w: w, data: out, crashed: crashed, cause: cause}:
		case <-p.stopped:
			return
		}
		if crashed {
			return
		}
	}
}

func (p *Pool) handle(data []byte) (out []byte, cause any, crashed bool) {
	defer func() {
		if r := recover(); r != nil {
			out, cause, crashed = nil, r, true
		}
	}()
	return handleMessage(data, p.parse), nil, false
}

// handleMessage parses one request message and returns the encoded response.
// Invalid messages yield a structured error response.
func handleMessage(data []byte, parse ParseFunc) []byte {
	id, file, err := decodeRequest(data)
	resp := response{TaskID: id}
	if err == nil {
		var note *models.Note
		note, err = parse(file)
		resp.Note = note
	}
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Success = true
	}
	out, merr := json.Marshal(resp)
	if merr != nil {
		out, _ = json.Marshal(response{TaskID: id, Error: "encode response: " + merr.Error()})
	}
	return out
}

func decodeOutcome(data []byte) outcome {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return outcome{err: fmt.Errorf("pool: decode response: %w: %w", apperr.ErrParseFailure, err)}
	}
	if !resp.Success {
		return outcome{err: fmt.Errorf("pool: %w: %s", apperr.ErrParseFailure, resp.Error)}
	}
	return outcome{note: resp.Note}
}
