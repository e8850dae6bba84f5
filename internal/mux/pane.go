package mux

import (
	"fmt"
	"sync"
	"time"
)

// minChunkBufferCapacity is the compile-time lower bound on a per-receiver
// chunk buffer (spec.md §4.2, §9: "at least ~4096 chunks" so transient
// bursts don't cause drops in practice).
const minChunkBufferCapacity = 4096

// chunk is one decoded slice of pane output, delivered to every subscriber
// of that pane.
type chunk struct {
	data []byte
}

// paneRegistry demultiplexes %output notifications to per-pane subscriber
// sets. A pane may have zero or more subscribers (spec.md §4.2); the
// control reader must never block here, so broadcast uses try-send and
// drops the chunk for any receiver whose buffer is full.
type paneRegistry struct {
	mu   sync.Mutex
	subs map[string]map[*paneSubscriber]struct{}

	lastOutput map[string]time.Time
}

type paneSubscriber struct {
	ch chan chunk
}

func newPaneRegistry() *paneRegistry {
	return &paneRegistry{
		subs:       make(map[string]map[*paneSubscriber]struct{}),
		lastOutput: make(map[string]time.Time),
	}
}

// subscribe registers a new receiver for paneID and returns it. Capacity is
// clamped to at least minChunkBufferCapacity.
func (r *paneRegistry) subscribe(paneID string, capacity int) *paneSubscriber {
	if capacity < minChunkBufferCapacity {
		capacity = minChunkBufferCapacity
	}
	sub := &paneSubscriber{ch: make(chan chunk, capacity)}

	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subs[paneID]
	if !ok {
		set = make(map[*paneSubscriber]struct{})
		r.subs[paneID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// unsubscribe removes sub from paneID's receiver set. Safe to call more
// than once.
func (r *paneRegistry) unsubscribe(paneID string, sub *paneSubscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.subs[paneID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(r.subs, paneID)
		}
	}
}

// broadcast delivers data to every current subscriber of paneID. A full
// receiver buffer drops this chunk for that receiver only — it never
// blocks the caller, which is always the control reader goroutine
// (spec.md §4.2, §9: a blocking send here would deadlock against a pause
// notification whose `continue` command this same goroutine must send).
func (r *paneRegistry) broadcast(paneID string, data []byte) {
	r.mu.Lock()
	r.lastOutput[paneID] = time.Now()
	set := r.subs[paneID]
	subs := make([]*paneSubscriber, 0, len(set))
	for s := range set {
		subs = append(subs, s)
	}
	r.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- chunk{data: data}:
		default:
			// Drop for this receiver only; forward progress is mandatory.
		}
	}
}

// lastOutputTime returns the last time paneID produced output.
func (r *paneRegistry) lastOutputTime(paneID string) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastOutput[paneID]
}

// PaneReader adapts one pane's broadcast subscription to io.Reader.
type PaneReader struct {
	registry *paneRegistry
	sub      *paneSubscriber
	paneID   string
	closed   chan struct{}
	closeOne sync.Once

	pending []byte
}

// newPaneReader subscribes to paneID with the given receiver capacity.
func newPaneReader(registry *paneRegistry, paneID string, capacity int) *PaneReader {
	return &PaneReader{
		registry: registry,
		sub:      registry.subscribe(paneID, capacity),
		paneID:   paneID,
		closed:   make(chan struct{}),
	}
}

// Read implements io.Reader, blocking until a chunk arrives, the reader is
// closed, or EOF (registry torn down) is signaled via Close.
func (p *PaneReader) Read(buf []byte) (int, error) {
	if len(p.pending) > 0 {
		n := copy(buf, p.pending)
		p.pending = p.pending[n:]
		return n, nil
	}

	select {
	case c, ok := <-p.sub.ch:
		if !ok {
			return 0, fmt.Errorf("mux: pane %s reader closed", p.paneID)
		}
		n := copy(buf, c.data)
		if n < len(c.data) {
			p.pending = append(p.pending, c.data[n:]...)
		}
		return n, nil
	case <-p.closed:
		return 0, fmt.Errorf("mux: pane %s reader closed", p.paneID)
	}
}

// Close unsubscribes from the pane. Safe to call more than once.
func (p *PaneReader) Close() error {
	p.closeOne.Do(func() {
		p.registry.unsubscribe(p.paneID, p.sub)
		close(p.closed)
	})
	return nil
}

// PaneWriter adapts a pane to io.Writer by issuing send-keys commands.
type PaneWriter struct {
	client *Client
	paneID string
}

// Write translates b into a `send-keys -t <pane> -H <hex>` command and
// flushes it under the client's stdin lock (spec.md §4.2).
func (w *PaneWriter) Write(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if err := w.client.writeRaw(FormatSendKeys(w.paneID, b)); err != nil {
		return 0, err
	}
	return len(b), nil
}
