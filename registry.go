package scriptrate

import (
	"context"
	"sync"
)

// StreamRegistry enforces at most one live analysis stream per document.
// Starting a stream for a document cancels any stream already running for
// it; stale goroutines releasing after a restart are ignored via a
// generation counter.
type StreamRegistry struct {
	mu      sync.Mutex
	streams map[string]registryEntry
}

type registryEntry struct {
	cancel context.CancelFunc
	gen    uint64
}

// NewStreamRegistry returns an empty registry.
func NewStreamRegistry() *StreamRegistry {
	return &StreamRegistry{streams: map[string]registryEntry{}}
}

// Start derives a cancellable context for a new stream on docID, cancelling
// any previous stream for the same document first. The returned release
// function removes the registration; it is safe to call after a newer
// stream has replaced this one.
func (r *StreamRegistry) Start(ctx context.Context, docID string) (context.Context, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.streams[docID]; ok {
		prev.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	gen := uint64(1)
	if prev, ok := r.streams[docID]; ok {
		gen = prev.gen + 1
	}
	r.streams[docID] = registryEntry{cancel: cancel, gen: gen}
	release := func() {
		cancel()
		r.mu.Lock()
		defer r.mu.Unlock()
		if cur, ok := r.streams[docID]; ok && cur.gen == gen {
			delete(r.streams, docID)
		}
	}
	return ctx, release
}

// Cancel stops the live stream for a document, if any.
func (r *StreamRegistry) Cancel(docID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.streams[docID]; ok {
		entry.cancel()
		delete(r.streams, docID)
	}
}

// CancelAll stops every live stream.
func (r *StreamRegistry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for docID, entry := range r.streams {
		entry.cancel()
		delete(r.streams, docID)
	}
}

// Active reports whether a stream is registered for the document.
func (r *StreamRegistry) Active(docID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.streams[docID]
	return ok
}
