package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	nethttp "net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/vportnov/scriptrate"
	"github.com/vportnov/scriptrate/bubbletea"
	"github.com/vportnov/scriptrate/chroma"
	"github.com/vportnov/scriptrate/gemini"
	gindemo "github.com/vportnov/scriptrate/gin"
	scripthttp "github.com/vportnov/scriptrate/http"
	uilipgloss "github.com/vportnov/scriptrate/lipgloss"
	"github.com/vportnov/scriptrate/sqlite"
	"github.com/vportnov/scriptrate/worddiff"
)

// demoDocID is the document seeded into the embedded demo backend.
const demoDocID = "demo"

// WatchFunc consumes an analysis event stream and returns the final
// analysis. The TUI progress screen is the production implementation.
type WatchFunc func(events <-chan scriptrate.StreamEvent) (*scriptrate.Analysis, error)

// App encapsulates the application logic for testing.
type App struct {
	Client   *scripthttp.Client
	Store    scriptrate.SessionStore
	Poller   *scripthttp.Poller
	Registry *scriptrate.StreamRegistry
	Logger   *log.Logger
}

// LoadAnalysis returns the analysis for a document: a stored backend result
// when one exists, otherwise a fresh streaming run. When the stream dies
// before producing anything meaningful, the poller takes over and recovers
// the result the backend finished without us.
func (a *App) LoadAnalysis(ctx context.Context, docID string, watch WatchFunc) (*scriptrate.Analysis, error) {
	stored, err := a.Client.StageResult(ctx, docID, "final")
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, scriptrate.ErrStageNotReady) {
		return nil, err
	}

	if a.Registry != nil {
		var release func()
		ctx, release = a.Registry.Start(ctx, docID)
		defer release()
	}

	stream, err := a.Client.Analyze(ctx, docID)
	if err != nil {
		return nil, err
	}
	analysis, watchErr := watch(stream.Events())
	if watchErr == nil {
		return analysis, nil
	}

	if stream.Err() != nil && !stream.SawMeaningful() && a.Poller != nil {
		if a.Logger != nil {
			a.Logger.Warn("stream died before any results, falling back to polling", "err", stream.Err())
		}
		if ch := a.Poller.Poll(ctx, docID); ch != nil {
			return watch(ch)
		}
	}
	return nil, watchErr
}

// OpenSession fetches the document's scenes, builds a review session over
// the analysis, and restores any persisted local state.
func (a *App) OpenSession(ctx context.Context, docID string, analysis *scriptrate.Analysis) (*scriptrate.Session, error) {
	scenes, err := a.Client.Scenario(ctx, docID)
	if err != nil {
		return nil, err
	}
	session := scriptrate.NewSession(docID, scenes, analysis)
	if a.Store != nil {
		state, err := a.Store.Load(docID)
		if err != nil {
			if a.Logger != nil {
				a.Logger.Warn("could not restore session state", "doc", docID, "err", err)
			}
		} else if state != nil {
			session.Restore(state)
		}
	}
	return session, nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := scriptrate.LoadConfig()
	if err != nil {
		return err
	}

	logFile, err := os.OpenFile(cfg.LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	logger := log.NewWithOptions(logFile, log.Options{ReportTimestamp: true})

	var docID string
	if len(os.Args) >= 2 {
		docID = os.Args[1]
	}

	var rewriter scriptrate.SceneRewriter
	if cfg.GeminiAPIKey != "" {
		gclient, err := gemini.NewClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return fmt.Errorf("create Gemini client: %w", err)
		}
		defer gclient.Close()
		rewriter = gemini.NewRewriter(gclient, cfg.GeminiModel)
	}

	client := scripthttp.NewClient(cfg.BackendURL,
		scripthttp.WithLogger(logger),
		scripthttp.WithWatchdogInterval(cfg.WatchdogInterval),
	)

	if err := client.Ping(ctx); err != nil {
		logger.Warn("backend unreachable, starting embedded demo backend", "url", cfg.BackendURL, "err", err)
		baseURL, stop, err := startDemoServer(logger, rewriter)
		if err != nil {
			return fmt.Errorf("start demo backend: %w", err)
		}
		defer stop()
		client = scripthttp.NewClient(baseURL,
			scripthttp.WithLogger(logger),
			scripthttp.WithWatchdogInterval(cfg.WatchdogInterval),
		)
		if docID == "" {
			docID = demoDocID
		}
	}
	if docID == "" {
		return errors.New("usage: scriptrate <doc-id>")
	}

	store, err := sqlite.NewStore(cfg.SessionDBPath())
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()

	highlighter, err := chroma.NewHighlighter(chroma.DefaultStyle)
	if err != nil {
		return fmt.Errorf("create highlighter: %w", err)
	}

	reportPath := filepath.Join(cfg.DataDir, "report-"+docID+".json")
	viewerOpts := []bubbletea.ViewerOption{
		bubbletea.WithViewerTheme(uilipgloss.DefaultTheme()),
		bubbletea.WithViewerStore(store),
		bubbletea.WithViewerReporter(client, reportPath),
		bubbletea.WithViewerWordDiffer(worddiff.NewDiffer()),
		bubbletea.WithViewerHighlighter(highlighter),
	}
	if rewriter != nil {
		viewerOpts = append(viewerOpts, bubbletea.WithViewerRewriter(rewriter))
	}
	viewer := bubbletea.NewViewer(viewerOpts...)

	app := &App{
		Client: client,
		Store:  store,
		Poller: scripthttp.NewPoller(client,
			scripthttp.WithPollInterval(cfg.PollInterval),
			scripthttp.WithPollCeilings(cfg.PollMaxAttempts, cfg.PollMaxErrors),
		),
		Registry: scriptrate.NewStreamRegistry(),
		Logger:   logger,
	}

	analysisCtx, cancelAnalysis := context.WithTimeout(ctx, cfg.StreamTimeout)
	analysis, err := app.LoadAnalysis(analysisCtx, docID, func(events <-chan scriptrate.StreamEvent) (*scriptrate.Analysis, error) {
		return viewer.WatchAnalysis(analysisCtx, events)
	})
	cancelAnalysis()
	if err != nil {
		return err
	}

	session, err := app.OpenSession(ctx, docID, analysis)
	if err != nil {
		return err
	}

	return viewer.Review(ctx, session, client)
}

// startDemoServer runs the in-process demo backend on a loopback port and
// seeds it with a short sample screenplay.
func startDemoServer(logger *log.Logger, rewriter scriptrate.SceneRewriter) (string, func(), error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, err
	}

	opts := []gindemo.ServerOption{gindemo.WithLogger(logger)}
	if rewriter != nil {
		opts = append(opts, gindemo.WithRewriter(rewriter))
	}
	srv := gindemo.NewServer(opts...)
	srv.SeedDocument(demoDocID, demoScenes())

	httpSrv := &nethttp.Server{Handler: srv.Handler()}
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			logger.Error("demo backend stopped", "err", err)
		}
	}()

	stop := func() { _ = httpSrv.Close() }
	return "http://" + ln.Addr().String(), stop, nil
}

func demoScenes() []scriptrate.Scene {
	return []scriptrate.Scene{
		{
			Number:  1,
			Heading: "INT. ROADSIDE BAR - NIGHT",
			Content: "TOMMY nurses a glass of whiskey at the counter.\nThe bartender wipes down a cracked cigarette machine.\nA stranger in a rain-soaked coat takes the next stool.",
		},
		{
			Number:  2,
			Heading: "EXT. PARKING LOT - CONTINUOUS",
			Content: "The stranger shoves Tommy against a pickup truck.\nTommy swings first and the two men fight in the gravel.\nA gun clatters out of the stranger's coat.",
		},
		{
			Number:  3,
			Heading: "INT. MOTEL ROOM - LATER",
			Content: "Tommy dabs at the blood on his split knuckles.\nHe stares at the stolen pistol on the nightstand.\nOutside, a siren wails past without stopping.",
		},
	}
}
