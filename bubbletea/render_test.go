package bubbletea_test

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vportnov/scriptrate/bubbletea"
	uilipgloss "github.com/vportnov/scriptrate/lipgloss"
	"github.com/vportnov/scriptrate/mock"
)

func TestReviewModel_ThemedViewCarriesColor(t *testing.T) {
	t.Parallel()

	renderer := lipgloss.NewRenderer(nil, termenv.WithProfile(termenv.TrueColor))
	renderer.SetColorProfile(termenv.TrueColor)

	m := bubbletea.NewReviewModel(reviewSession(t), &mock.AnalysisService{},
		bubbletea.WithReviewTheme(uilipgloss.DarkTheme()),
		bubbletea.WithReviewRenderer(renderer),
	)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	rm, ok := updated.(bubbletea.ReviewModel)
	require.True(t, ok)

	view := rm.View()

	assert.Contains(t, view, "\x1b[", "themed view should carry ANSI styling")
	assert.Contains(t, view, "INT. KITCHEN - DAY")
}

func TestReviewModel_AsciiRendererStripsColor(t *testing.T) {
	t.Parallel()

	renderer := lipgloss.NewRenderer(nil, termenv.WithProfile(termenv.Ascii))

	m := bubbletea.NewReviewModel(reviewSession(t), &mock.AnalysisService{},
		bubbletea.WithReviewTheme(uilipgloss.DarkTheme()),
		bubbletea.WithReviewRenderer(renderer),
	)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	rm, ok := updated.(bubbletea.ReviewModel)
	require.True(t, ok)

	view := rm.View()

	assert.False(t, strings.Contains(view, "\x1b[38;"), "ascii profile should not emit color sequences")
	assert.Contains(t, view, "INT. KITCHEN - DAY")
}
