package http

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vportnov/scriptrate"
)

// Stream is a live analysis run. Events arrive on Events until the stream
// ends; Err reports how it ended once the channel is closed.
type Stream struct {
	events chan scriptrate.StreamEvent
	done   chan struct{}
	err    error

	meaningful atomic.Bool
}

// Events returns the event channel. It is closed when the stream ends.
func (s *Stream) Events() <-chan scriptrate.StreamEvent { return s.events }

// Err reports the stream's terminal error, nil for a clean end. Valid only
// after Events has been closed.
func (s *Stream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// SawMeaningful reports whether any pipeline-state event arrived. A stream
// that closed without one likely never started server-side, which is the
// cue to fall back to polling.
func (s *Stream) SawMeaningful() bool { return s.meaningful.Load() }

// Analyze starts the analysis pipeline for a document and streams its
// events. The connection is supervised by a watchdog: silence longer than
// the configured interval ends the stream with scriptrate.ErrStreamStalled.
func (c *Client) Analyze(ctx context.Context, docID string) (*Stream, error) {
	u := c.baseURL + "/api/analyze/run?" + url.Values{"doc_id": {docID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// The stream outlives any sane request timeout; rely on the context
	// and the watchdog instead.
	httpc := &http.Client{Transport: c.httpc.Transport}
	resp, err := httpc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}

	s := &Stream{
		events: make(chan scriptrate.StreamEvent),
		done:   make(chan struct{}),
	}

	frames := make(chan scriptrate.StreamEvent)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(frames)
		defer resp.Body.Close()
		return c.readFrames(gctx, resp.Body, frames)
	})

	g.Go(func() error {
		watchdog := time.NewTimer(c.watchdogInterval)
		defer watchdog.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-watchdog.C:
				c.logger.Warn("analysis stream stalled", "doc", docID, "silence", c.watchdogInterval)
				return scriptrate.ErrStreamStalled
			case ev, ok := <-frames:
				if !ok {
					return nil
				}
				if !watchdog.Stop() {
					<-watchdog.C
				}
				watchdog.Reset(c.watchdogInterval)
				if ev.Meaningful() {
					s.meaningful.Store(true)
				}
				select {
				case s.events <- ev:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		}
	})

	go func() {
		s.err = g.Wait()
		close(s.events)
		close(s.done)
	}()

	return s, nil
}

// readFrames parses server-sent-event frames: "data:" lines accumulate
// until a blank line terminates the frame, then the payload is decoded as
// one event. Comment lines and unknown fields are skipped.
func (c *Client) readFrames(ctx context.Context, body io.Reader, out chan<- scriptrate.StreamEvent) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var data strings.Builder
	flush := func() error {
		if data.Len() == 0 {
			return nil
		}
		payload := data.String()
		data.Reset()
		var ev scriptrate.StreamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			c.logger.Debug("skipping malformed stream frame", "err", err)
			return nil
		}
		select {
		case out <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, ":"):
			// keep-alive comment
		}
	}
	if err := flush(); err != nil {
		return err
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return ctx.Err()
}
