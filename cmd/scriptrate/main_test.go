package main_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vportnov/scriptrate"
	main "github.com/vportnov/scriptrate/cmd/scriptrate"
	gindemo "github.com/vportnov/scriptrate/gin"
	scripthttp "github.com/vportnov/scriptrate/http"
	"github.com/vportnov/scriptrate/sqlite"
)

func demoBackend(t *testing.T) *scripthttp.Client {
	t.Helper()
	srv := gindemo.NewServer()
	srv.SeedDocument("doc-1", []scriptrate.Scene{
		{
			Number:  1,
			Heading: "INT. KITCHEN - DAY",
			Content: "He pours coffee.\nBlood drips from his knuckles.",
		},
		{
			Number:  2,
			Heading: "EXT. STREET - NIGHT",
			Content: "A cat watches.",
		},
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return scripthttp.NewClient(ts.URL)
}

// drainWatch consumes a stream without a UI, keeping only the final result.
func drainWatch(events <-chan scriptrate.StreamEvent) (*scriptrate.Analysis, error) {
	var result *scriptrate.Analysis
	for ev := range events {
		switch ev.Kind {
		case scriptrate.EventFinal:
			var a scriptrate.Analysis
			if err := json.Unmarshal(ev.Data, &a); err == nil {
				result = &a
			}
		case scriptrate.EventError:
			return nil, errors.New(ev.Message)
		}
	}
	if result == nil {
		return nil, errors.New("stream ended without a result")
	}
	return result, nil
}

func TestApp_LoadAnalysis_RunsStreamingAnalysis(t *testing.T) {
	t.Parallel()

	app := &main.App{Client: demoBackend(t)}

	analysis, err := app.LoadAnalysis(context.Background(), "doc-1", drainWatch)

	require.NoError(t, err)
	assert.Equal(t, "18+", analysis.FinalRating)
	require.Len(t, analysis.ProblemFragments, 1)
	assert.Equal(t, "Blood drips from his knuckles.", analysis.ProblemFragments[0].Text)
}

func TestApp_LoadAnalysis_PrefersStoredResult(t *testing.T) {
	t.Parallel()

	app := &main.App{Client: demoBackend(t)}

	first, err := app.LoadAnalysis(context.Background(), "doc-1", drainWatch)
	require.NoError(t, err)

	second, err := app.LoadAnalysis(context.Background(), "doc-1", func(<-chan scriptrate.StreamEvent) (*scriptrate.Analysis, error) {
		t.Fatal("watch should not run when a stored result exists")
		return nil, nil
	})

	require.NoError(t, err)
	assert.Equal(t, first.FinalRating, second.FinalRating)
}

func TestApp_LoadAnalysis_UnknownDocument(t *testing.T) {
	t.Parallel()

	app := &main.App{Client: demoBackend(t)}

	_, err := app.LoadAnalysis(context.Background(), "missing", drainWatch)

	require.Error(t, err)
}

func TestApp_LoadAnalysis_NewRunCancelsPriorStream(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	firstConnected := make(chan struct{})
	mux := nethttp.NewServeMux()
	mux.HandleFunc("/api/stage/doc-1/final", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		nethttp.Error(w, `{"detail":"stage not ready"}`, nethttp.StatusNotFound)
	})
	mux.HandleFunc("/api/analyze/run", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(nethttp.Flusher)
		if runs.Add(1) == 1 {
			fmt.Fprint(w, "data: {\"event\":\"progress\",\"stage\":\"stage1\",\"progress\":0.1}\n\n")
			flusher.Flush()
			close(firstConnected)
			<-r.Context().Done()
			return
		}
		fmt.Fprint(w, "data: {\"event\":\"final\",\"output\":{\"final_rating\":\"12+\"}}\n\n")
		flusher.Flush()
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	app := &main.App{
		Client:   scripthttp.NewClient(ts.URL),
		Registry: scriptrate.NewStreamRegistry(),
	}

	firstDone := make(chan error, 1)
	go func() {
		_, err := app.LoadAnalysis(context.Background(), "doc-1", drainWatch)
		firstDone <- err
	}()

	select {
	case <-firstConnected:
	case <-time.After(5 * time.Second):
		t.Fatal("first stream never connected")
	}

	analysis, err := app.LoadAnalysis(context.Background(), "doc-1", drainWatch)
	require.NoError(t, err)
	assert.Equal(t, "12+", analysis.FinalRating)

	select {
	case err := <-firstDone:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("superseded stream was not cancelled")
	}
}

func TestApp_OpenSession_RestoresState(t *testing.T) {
	t.Parallel()

	client := demoBackend(t)
	app := &main.App{Client: client}

	analysis, err := app.LoadAnalysis(context.Background(), "doc-1", drainWatch)
	require.NoError(t, err)
	fragmentID := analysis.ProblemFragments[0].ID

	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Save("doc-1", &scriptrate.SessionState{Dismissed: []string{fragmentID}}))

	app.Store = store
	session, err := app.OpenSession(context.Background(), "doc-1", analysis)

	require.NoError(t, err)
	assert.True(t, session.Dismissed(fragmentID))
	assert.Empty(t, session.FragmentsForScene(1))
	assert.Len(t, session.Scenes(), 2)
}

func TestApp_OpenSession_UnknownDocument(t *testing.T) {
	t.Parallel()

	app := &main.App{Client: demoBackend(t)}

	_, err := app.OpenSession(context.Background(), "missing", &scriptrate.Analysis{})

	require.Error(t, err)
}
