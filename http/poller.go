package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vportnov/scriptrate"
)

// Poller recovers analysis results when the event stream dies before
// delivering them: it polls the stored final stage until it appears,
// emitting synthetic events that the progress tracker understands. At most
// one poll loop runs per document.
type Poller struct {
	client      *Client
	interval    time.Duration
	maxAttempts int
	maxErrors   int

	mu      sync.Mutex
	running map[string]struct{}
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithPollInterval sets the delay between poll attempts.
func WithPollInterval(d time.Duration) PollerOption {
	return func(p *Poller) { p.interval = d }
}

// WithPollCeilings bounds the loop by attempts and consecutive errors.
func WithPollCeilings(maxAttempts, maxErrors int) PollerOption {
	return func(p *Poller) {
		p.maxAttempts = maxAttempts
		p.maxErrors = maxErrors
	}
}

// NewPoller creates a poller over an existing client.
func NewPoller(client *Client, opts ...PollerOption) *Poller {
	p := &Poller{
		client:      client,
		interval:    5 * time.Second,
		maxAttempts: 360,
		maxErrors:   5,
		running:     map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll starts the fallback loop for a document. The returned channel closes
// when the loop ends; a nil channel means a loop is already running for the
// document.
func (p *Poller) Poll(ctx context.Context, docID string) <-chan scriptrate.StreamEvent {
	p.mu.Lock()
	if _, active := p.running[docID]; active {
		p.mu.Unlock()
		return nil
	}
	p.running[docID] = struct{}{}
	p.mu.Unlock()

	out := make(chan scriptrate.StreamEvent)
	go func() {
		defer close(out)
		defer func() {
			p.mu.Lock()
			delete(p.running, docID)
			p.mu.Unlock()
		}()
		p.run(ctx, docID, out)
	}()
	return out
}

func (p *Poller) run(ctx context.Context, docID string, out chan<- scriptrate.StreamEvent) {
	limiter := rate.NewLimiter(rate.Every(p.interval), 1)
	consecutiveErrors := 0

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		analysis, err := p.client.StageResult(ctx, docID, "final")
		switch {
		case err == nil:
			raw, marshalErr := json.Marshal(analysis)
			if marshalErr != nil {
				raw = nil
			}
			emit(ctx, out, scriptrate.StreamEvent{
				Kind:    scriptrate.EventFinal,
				Message: "recovered stored result",
				Data:    raw,
			})
			return
		case errors.Is(err, scriptrate.ErrStageNotReady):
			consecutiveErrors = 0
			emit(ctx, out, scriptrate.StreamEvent{
				Kind:    scriptrate.EventLog,
				Message: fmt.Sprintf("waiting for backend result (attempt %d)", attempt),
			})
		case ctx.Err() != nil:
			return
		default:
			consecutiveErrors++
			p.client.logger.Warn("poll attempt failed", "doc", docID, "attempt", attempt, "err", err)
			if consecutiveErrors >= p.maxErrors {
				emit(ctx, out, scriptrate.StreamEvent{
					Kind:    scriptrate.EventError,
					Message: fmt.Sprintf("gave up polling after %d consecutive failures: %v", consecutiveErrors, err),
				})
				return
			}
		}
	}

	emit(ctx, out, scriptrate.StreamEvent{
		Kind:    scriptrate.EventError,
		Message: fmt.Sprintf("no result after %d poll attempts", p.maxAttempts),
	})
}

func emit(ctx context.Context, out chan<- scriptrate.StreamEvent, ev scriptrate.StreamEvent) {
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}
