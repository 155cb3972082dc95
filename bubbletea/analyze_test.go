package bubbletea_test

import (
	"bytes"
	"encoding/json"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vportnov/scriptrate"
	"github.com/vportnov/scriptrate/bubbletea"
)

func floatPtr(f float64) *float64 { return &f }

func finalEvent(t *testing.T, rating string) scriptrate.StreamEvent {
	t.Helper()
	data, err := json.Marshal(scriptrate.Analysis{FinalRating: rating})
	require.NoError(t, err)
	return scriptrate.StreamEvent{Kind: scriptrate.EventFinal, Data: data}
}

func TestAnalyzeModel_Init(t *testing.T) {
	t.Parallel()

	events := make(chan scriptrate.StreamEvent)
	m := bubbletea.NewAnalyzeModel(events)

	cmd := m.Init()

	assert.NotNil(t, cmd, "Init should start reading the stream")
}

func TestAnalyzeModel_ViewShowsStages(t *testing.T) {
	t.Parallel()

	events := make(chan scriptrate.StreamEvent)
	m := bubbletea.NewAnalyzeModel(events)

	view := m.View()

	assert.Contains(t, view, "Classifying sentences")
	assert.Contains(t, view, "Aggregating scenes")
	assert.Contains(t, view, "Final report")
}

func TestAnalyzeModel_CompletesOnFinalEvent(t *testing.T) {
	t.Parallel()

	events := make(chan scriptrate.StreamEvent, 8)
	events <- scriptrate.StreamEvent{Kind: scriptrate.EventPreflight}
	events <- scriptrate.StreamEvent{Kind: scriptrate.EventStageStart, Stage: "1"}
	events <- scriptrate.StreamEvent{Kind: scriptrate.EventProgress, Stage: "1", Percent: floatPtr(50)}
	events <- scriptrate.StreamEvent{Kind: scriptrate.EventStageResult, Stage: "1"}
	events <- scriptrate.StreamEvent{Kind: scriptrate.EventStageTwoDone}
	events <- finalEvent(t, "16+")

	m := bubbletea.NewAnalyzeModel(events)
	tm := teatest.NewTestModel(t, m,
		teatest.WithInitialTermSize(80, 24),
	)

	tm.WaitFinished(t)

	final, ok := tm.FinalModel(t).(bubbletea.AnalyzeModel)
	require.True(t, ok)

	result, err := final.Result()
	require.NoError(t, err)
	assert.Equal(t, "16+", result.FinalRating)
}

func TestAnalyzeModel_FailsOnErrorEvent(t *testing.T) {
	t.Parallel()

	events := make(chan scriptrate.StreamEvent, 2)
	events <- scriptrate.StreamEvent{Kind: scriptrate.EventStageStart, Stage: "1"}
	events <- scriptrate.StreamEvent{Kind: scriptrate.EventError, Message: "model overloaded"}

	m := bubbletea.NewAnalyzeModel(events)
	tm := teatest.NewTestModel(t, m,
		teatest.WithInitialTermSize(80, 24),
	)

	tm.WaitFinished(t)

	final, ok := tm.FinalModel(t).(bubbletea.AnalyzeModel)
	require.True(t, ok)

	_, err := final.Result()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestAnalyzeModel_StreamClosedWithoutResult(t *testing.T) {
	t.Parallel()

	events := make(chan scriptrate.StreamEvent)
	close(events)

	m := bubbletea.NewAnalyzeModel(events)
	tm := teatest.NewTestModel(t, m,
		teatest.WithInitialTermSize(80, 24),
	)

	tm.WaitFinished(t)

	final, ok := tm.FinalModel(t).(bubbletea.AnalyzeModel)
	require.True(t, ok)

	_, err := final.Result()
	require.Error(t, err)
}

func TestAnalyzeModel_QuitOnQ(t *testing.T) {
	t.Parallel()

	events := make(chan scriptrate.StreamEvent)
	m := bubbletea.NewAnalyzeModel(events)
	tm := teatest.NewTestModel(t, m,
		teatest.WithInitialTermSize(80, 24),
	)

	teatest.WaitFor(t, tm.Output(), func(out []byte) bool {
		return bytes.Contains(out, []byte("Classifying"))
	})

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	tm.WaitFinished(t, teatest.WithFinalTimeout(0))
}
