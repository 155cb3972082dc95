package bubbletea

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/vportnov/scriptrate"
)

// stageNames labels the three analysis stages in display order.
var stageNames = [scriptrate.StageCount]string{
	"Classifying sentences",
	"Aggregating scenes",
	"Final report",
}

// AnalyzeModel is the Bubble Tea model for watching an analysis run. It
// consumes stream events, tracks per-stage progress, and captures the final
// analysis when the run completes.
type AnalyzeModel struct {
	events  <-chan scriptrate.StreamEvent
	tracker *scriptrate.Progress
	bar     progress.Model

	result *scriptrate.Analysis
	err    error

	keymap   AnalyzeKeyMap
	styles   scriptrate.Styles
	renderer *lipgloss.Renderer
	width    int
	done     bool
	canceled bool
}

// AnalyzeModelOption configures an AnalyzeModel.
type AnalyzeModelOption func(*AnalyzeModel)

// WithAnalyzeTheme sets the theme for the progress screen.
func WithAnalyzeTheme(t scriptrate.Theme) AnalyzeModelOption {
	return func(m *AnalyzeModel) {
		m.styles = t.Styles()
	}
}

// WithAnalyzeRenderer sets a custom lipgloss renderer for the model.
func WithAnalyzeRenderer(r *lipgloss.Renderer) AnalyzeModelOption {
	return func(m *AnalyzeModel) {
		m.renderer = r
	}
}

// NewAnalyzeModel creates a model consuming the given event stream.
func NewAnalyzeModel(events <-chan scriptrate.StreamEvent, opts ...AnalyzeModelOption) AnalyzeModel {
	m := AnalyzeModel{
		events:  events,
		tracker: scriptrate.NewProgress(),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		keymap:  DefaultAnalyzeKeyMap(),
		width:   80,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Init implements tea.Model.
func (m AnalyzeModel) Init() tea.Cmd {
	return waitForStreamEvent(m.events)
}

// Update implements tea.Model.
func (m AnalyzeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keymap.Quit) {
			m.canceled = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = msg.Width - 30
		if m.bar.Width < 10 {
			m.bar.Width = 10
		}

	case streamEventMsg:
		m.tracker.ApplyEvent(msg.event)
		switch msg.event.Kind {
		case scriptrate.EventFinal:
			if a, err := decodeAnalysis(msg.event.Data); err == nil {
				m.result = a
			}
		case scriptrate.EventError:
			m.err = fmt.Errorf("analysis failed: %s", msg.event.Message)
		}
		if m.tracker.Done() && m.result != nil {
			m.done = true
			return m, tea.Quit
		}
		if m.tracker.Failed() {
			m.done = true
			return m, tea.Quit
		}
		return m, waitForStreamEvent(m.events)

	case streamClosedMsg:
		m.done = true
		return m, tea.Quit
	}

	return m, nil
}

// View implements tea.Model.
func (m AnalyzeModel) View() string {
	var sb strings.Builder
	sb.WriteString("Analyzing screenplay\n\n")

	for stage := 1; stage <= scriptrate.StageCount; stage++ {
		pct := m.tracker.StagePercent(stage)
		marker := " "
		if stage == m.tracker.ActiveStage() && !m.tracker.Done() {
			marker = ">"
		}
		fmt.Fprintf(&sb, "%s %-22s %s %3.0f%%\n", marker, stageNames[stage-1], m.bar.ViewAs(pct/100), pct)
	}

	if msg := m.tracker.Message(); msg != "" {
		sb.WriteString("\n")
		sb.WriteString(truncate(msg, m.width-2))
		sb.WriteString("\n")
	}

	if m.result != nil {
		sb.WriteString("\nRating: ")
		sb.WriteString(renderRatingBadge(m.result.FinalRating, m.styles, m.renderer))
		sb.WriteString("\n")
	}
	if m.err != nil {
		sb.WriteString("\n")
		sb.WriteString(m.err.Error())
		sb.WriteString("\n")
	}

	sb.WriteString("\n[q] cancel\n")
	return sb.String()
}

// Result returns the final analysis once the run has completed. It returns
// an error if the run failed or was canceled before a result arrived.
func (m AnalyzeModel) Result() (*scriptrate.Analysis, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		if m.canceled {
			return nil, fmt.Errorf("analysis canceled")
		}
		return nil, fmt.Errorf("analysis ended without a result")
	}
	return m.result, nil
}
