package ingest

import (
	"sync"
	"time"
)

// fileOp is a filesystem operation on a spool entry.
type fileOp int

const (
	opWrite fileOp = iota
	opRemove
)

// fileEvent is one raw filesystem event from the spool watcher.
type fileEvent struct {
	Path string
	Op   fileOp
}

// Debouncer coalesces rapid filesystem events so a spool file written in
// several chunks is processed once. Within the window:
//   - repeated writes to the same path merge into one
//   - a write followed by a remove cancels out (the producer withdrew it)
type Debouncer struct {
	window  time.Duration
	output  chan []string
	stopCh  chan struct{}
	timer   *time.Timer

	mu      sync.Mutex
	pending map[string]time.Time
	stopped bool
}

// NewDebouncer creates a debouncer emitting batches of settled paths.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]time.Time),
		output:  make(chan []string, 10),
		stopCh:  make(chan struct{}),
	}
}

// Add records an event for coalescing.
func (d *Debouncer) Add(event fileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	switch event.Op {
	case opWrite:
		d.pending[event.Path] = time.Now()
	case opRemove:
		delete(d.pending, event.Path)
	}
	d.scheduleFlushLocked()
}

func (d *Debouncer) scheduleFlushLocked() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	if d.stopped || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	batch := make([]string, 0, len(d.pending))
	for path := range d.pending {
		batch = append(batch, path)
	}
	d.pending = make(map[string]time.Time)
	d.mu.Unlock()

	select {
	case d.output <- batch:
	case <-d.stopCh:
	}
}

// Events returns the channel of settled path batches.
func (d *Debouncer) Events() <-chan []string {
	return d.output
}

// Done is closed when the debouncer stops.
func (d *Debouncer) Done() <-chan struct{} {
	return d.stopCh
}

// Stop shuts the debouncer down; pending events are discarded.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	close(d.stopCh)
}
