package http_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vportnov/scriptrate"
	scripthttp "github.com/vportnov/scriptrate/http"
)

func sseServer(t *testing.T, frames []string, delay time.Duration) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/analyze/run", r.URL.Path)
		require.Equal(t, "doc-1", r.URL.Query().Get("doc_id"))
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		for _, frame := range frames {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(delay):
			}
			fmt.Fprintf(w, "data: %s\n\n", frame)
			flusher.Flush()
		}
	}))
}

func collect(t *testing.T, s *scripthttp.Stream) []scriptrate.StreamEvent {
	t.Helper()
	var events []scriptrate.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("stream did not finish in time")
		}
	}
}

func TestClient_Analyze(t *testing.T) {
	t.Parallel()

	t.Run("delivers parsed events in order", func(t *testing.T) {
		t.Parallel()

		srv := sseServer(t, []string{
			`{"event":"preflight","warnings":[]}`,
			`{"event":"progress","stage":"stage1","progress":null,"raw":"Batch classification"}`,
			`{"event":"progress","stage":"stage1","progress":0.5,"raw":"50/100"}`,
			`{"event":"final","output":{"final_rating":"16+"}}`,
		}, 0)
		defer srv.Close()

		client := scripthttp.NewClient(srv.URL)
		stream, err := client.Analyze(context.Background(), "doc-1")
		require.NoError(t, err)

		events := collect(t, stream)

		require.Len(t, events, 4)
		assert.Equal(t, scriptrate.EventPreflight, events[0].Kind)
		assert.Equal(t, 1, events[1].Stage.Stage())
		assert.Nil(t, events[1].Percent)
		require.NotNil(t, events[2].Percent)
		assert.Equal(t, 50.0, *events[2].Percent)
		assert.Equal(t, scriptrate.EventFinal, events[3].Kind)
		assert.JSONEq(t, `{"final_rating":"16+"}`, string(events[3].Data))
		assert.NoError(t, stream.Err())
		assert.True(t, stream.SawMeaningful())
	})

	t.Run("log-only stream is not meaningful", func(t *testing.T) {
		t.Parallel()

		srv := sseServer(t, []string{
			`{"event":"log","line":"warming up"}`,
		}, 0)
		defer srv.Close()

		client := scripthttp.NewClient(srv.URL)
		stream, err := client.Analyze(context.Background(), "doc-1")
		require.NoError(t, err)

		collect(t, stream)

		assert.False(t, stream.SawMeaningful())
	})

	t.Run("malformed frames are skipped", func(t *testing.T) {
		t.Parallel()

		srv := sseServer(t, []string{
			`{not json`,
			`{"event":"stage2_done","output":{}}`,
		}, 0)
		defer srv.Close()

		client := scripthttp.NewClient(srv.URL)
		stream, err := client.Analyze(context.Background(), "doc-1")
		require.NoError(t, err)

		events := collect(t, stream)

		require.Len(t, events, 1)
		assert.Equal(t, scriptrate.EventStageTwoDone, events[0].Kind)
	})

	t.Run("silence trips the watchdog", func(t *testing.T) {
		t.Parallel()

		srv := sseServer(t, []string{
			`{"event":"progress","stage":"stage1","progress":0.0}`,
			`{"event":"progress","stage":"stage1","progress":0.1}`,
		}, 300*time.Millisecond)
		defer srv.Close()

		client := scripthttp.NewClient(srv.URL, scripthttp.WithWatchdogInterval(50*time.Millisecond))
		stream, err := client.Analyze(context.Background(), "doc-1")
		require.NoError(t, err)

		collect(t, stream)

		assert.ErrorIs(t, stream.Err(), scriptrate.ErrStreamStalled)
	})

	t.Run("cancellation ends the stream", func(t *testing.T) {
		t.Parallel()

		srv := sseServer(t, []string{
			`{"event":"progress","stage":"stage1","progress":0.0}`,
			`{"event":"progress","stage":"stage1","progress":0.1}`,
			`{"event":"progress","stage":"stage1","progress":0.2}`,
		}, 100*time.Millisecond)
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		client := scripthttp.NewClient(srv.URL)
		stream, err := client.Analyze(ctx, "doc-1")
		require.NoError(t, err)

		go func() {
			time.Sleep(150 * time.Millisecond)
			cancel()
		}()

		collect(t, stream)

		assert.ErrorIs(t, stream.Err(), context.Canceled)
	})

	t.Run("non-200 start fails immediately", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"detail":"document not found"}`, http.StatusNotFound)
		}))
		defer srv.Close()

		client := scripthttp.NewClient(srv.URL)
		_, err := client.Analyze(context.Background(), "doc-1")

		var apiErr *scripthttp.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	})
}
