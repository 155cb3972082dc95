// Package bubbletea provides the terminal UI for reviewing screenplay
// content ratings using the Bubble Tea framework.
package bubbletea

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/vportnov/scriptrate"
)

// Viewer runs the terminal UI: a progress screen while an analysis streams
// in, then an interactive review of the results.
type Viewer struct {
	theme       scriptrate.Theme
	store       scriptrate.SessionStore
	rewriter    scriptrate.SceneRewriter
	reporter    Reporter
	reportPath  string
	differ      scriptrate.WordDiffer
	highlighter scriptrate.Highlighter
}

// ViewerOption configures a Viewer.
type ViewerOption func(*Viewer)

// WithViewerTheme sets the color theme for both screens.
func WithViewerTheme(t scriptrate.Theme) ViewerOption {
	return func(v *Viewer) {
		v.theme = t
	}
}

// WithViewerStore persists session state across runs.
func WithViewerStore(s scriptrate.SessionStore) ViewerOption {
	return func(v *Viewer) {
		v.store = s
	}
}

// WithViewerRewriter enables AI rewrite suggestions.
func WithViewerRewriter(r scriptrate.SceneRewriter) ViewerOption {
	return func(v *Viewer) {
		v.rewriter = r
	}
}

// WithViewerReporter enables report export to the given path.
func WithViewerReporter(r Reporter, path string) ViewerOption {
	return func(v *Viewer) {
		v.reporter = r
		v.reportPath = path
	}
}

// WithViewerWordDiffer sets the differ used for rewrite previews.
func WithViewerWordDiffer(d scriptrate.WordDiffer) ViewerOption {
	return func(v *Viewer) {
		v.differ = d
	}
}

// WithViewerHighlighter sets the highlighter for the report inspector.
func WithViewerHighlighter(h scriptrate.Highlighter) ViewerOption {
	return func(v *Viewer) {
		v.highlighter = h
	}
}

// NewViewer creates a new Viewer.
func NewViewer(opts ...ViewerOption) *Viewer {
	v := &Viewer{}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// WatchAnalysis displays analysis progress and blocks until the run
// completes, fails, or the user cancels. On success it returns the final
// analysis.
func (v *Viewer) WatchAnalysis(_ context.Context, events <-chan scriptrate.StreamEvent) (*scriptrate.Analysis, error) {
	var opts []AnalyzeModelOption
	if v.theme != nil {
		opts = append(opts, WithAnalyzeTheme(v.theme))
	}
	m := NewAnalyzeModel(events, opts...)

	p := tea.NewProgram(m, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	am, ok := final.(AnalyzeModel)
	if !ok {
		return nil, fmt.Errorf("unexpected final model %T", final)
	}
	return am.Result()
}

// Review displays the interactive review screen and blocks until the user
// exits.
func (v *Viewer) Review(_ context.Context, session *scriptrate.Session, service scriptrate.AnalysisService) error {
	opts := []ReviewModelOption{}
	if v.theme != nil {
		opts = append(opts, WithReviewTheme(v.theme))
	}
	if v.store != nil {
		opts = append(opts, WithSessionStore(v.store))
	}
	if v.rewriter != nil {
		opts = append(opts, WithRewriter(v.rewriter))
	}
	if v.reporter != nil {
		opts = append(opts, WithReporter(v.reporter, v.reportPath))
	}
	if v.differ != nil {
		opts = append(opts, WithWordDiffer(v.differ))
	}
	if v.highlighter != nil {
		opts = append(opts, WithReviewHighlighter(v.highlighter))
	}
	m := NewReviewModel(session, service, opts...)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	return err
}
