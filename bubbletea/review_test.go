package bubbletea_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vportnov/scriptrate"
	"github.com/vportnov/scriptrate/bubbletea"
	"github.com/vportnov/scriptrate/mock"
	"github.com/vportnov/scriptrate/worddiff"
)

func intPtr(n int) *int { return &n }

func reviewScenes() []scriptrate.Scene {
	return []scriptrate.Scene{
		{
			Number:  1,
			Heading: "INT. KITCHEN - DAY",
			Sentences: []scriptrate.Sentence{
				{ID: 100, Text: "He pours coffee."},
				{ID: 101, Text: "He slams the cup down."},
			},
		},
		{
			Number:  2,
			Heading: "EXT. STREET - NIGHT",
			Sentences: []scriptrate.Sentence{
				{ID: 200, Text: "A car screeches past."},
			},
		},
	}
}

func reviewSession(t *testing.T) *scriptrate.Session {
	t.Helper()
	return scriptrate.NewSession("doc-1", reviewScenes(), &scriptrate.Analysis{
		FinalRating: "16+",
		ScenesTotal: 2,
		ProblemFragments: []scriptrate.Fragment{
			{
				SceneIndex:    1,
				SentenceIndex: intPtr(1),
				Text:          "He slams the cup down.",
				Labels:        []string{"VIOLENCE_NON_GRAPHIC"},
				SeverityLocal: scriptrate.SeverityMild,
			},
			{
				SceneIndex:    2,
				Text:          "A car screeches past.",
				Labels:        []string{"HORROR_FEAR"},
				SeverityLocal: scriptrate.SeverityMild,
			},
		},
	})
}

// readyModel builds a ReviewModel and delivers the initial window size.
func readyModel(t *testing.T, session *scriptrate.Session, svc scriptrate.AnalysisService, opts ...bubbletea.ReviewModelOption) bubbletea.ReviewModel {
	t.Helper()
	m := bubbletea.NewReviewModel(session, svc, opts...)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	rm, ok := updated.(bubbletea.ReviewModel)
	require.True(t, ok)
	return rm
}

func pressKey(t *testing.T, m bubbletea.ReviewModel, msg tea.Msg) (bubbletea.ReviewModel, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	rm, ok := updated.(bubbletea.ReviewModel)
	require.True(t, ok)
	return rm, cmd
}

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func typeText(t *testing.T, m bubbletea.ReviewModel, text string) bubbletea.ReviewModel {
	t.Helper()
	for _, r := range text {
		m, _ = pressKey(t, m, runeKey(r))
	}
	return m
}

func TestReviewModel_ViewBeforeReady(t *testing.T) {
	t.Parallel()

	m := bubbletea.NewReviewModel(reviewSession(t), &mock.AnalysisService{})

	assert.Contains(t, m.View(), "Loading")
}

func TestReviewModel_ViewAfterReady(t *testing.T) {
	t.Parallel()

	m := readyModel(t, reviewSession(t), &mock.AnalysisService{})

	view := m.View()

	assert.Contains(t, view, "INT. KITCHEN - DAY")
	assert.Contains(t, view, "16+")
	assert.Contains(t, view, "VIOLENCE_NON_GRAPHIC")
	assert.Contains(t, view, "export ready")
}

func TestReviewModel_SceneNavigation(t *testing.T) {
	t.Parallel()

	m := readyModel(t, reviewSession(t), &mock.AnalysisService{})

	m, _ = pressKey(t, m, runeKey('n'))
	assert.Contains(t, m.View(), "A car screeches past.")

	m, _ = pressKey(t, m, runeKey('N'))
	assert.Contains(t, m.View(), "He pours coffee.")
}

func TestReviewModel_Dismiss(t *testing.T) {
	t.Parallel()

	session := reviewSession(t)
	m := readyModel(t, session, &mock.AnalysisService{})

	m, _ = pressKey(t, m, runeKey('d'))

	assert.Empty(t, session.FragmentsForScene(1))
	assert.Contains(t, m.View(), "dismissed:")
	// Dismissing is not a content edit, so export stays available.
	assert.NoError(t, session.ExportAllowed())
}

func TestReviewModel_RevertSyncsCancel(t *testing.T) {
	t.Parallel()

	session := reviewSession(t)
	var gotScene, gotSentence int
	svc := &mock.AnalysisService{
		CancelViolationFn: func(_ context.Context, docID string, sceneIndex, sentenceIndex int) (*scriptrate.Analysis, error) {
			require.Equal(t, "doc-1", docID)
			gotScene, gotSentence = sceneIndex, sentenceIndex
			return &scriptrate.Analysis{
				FinalRating: "12+",
				ScenesTotal: 2,
				ProblemFragments: []scriptrate.Fragment{
					{
						SceneIndex:    2,
						Text:          "A car screeches past.",
						Labels:        []string{"HORROR_FEAR"},
						SeverityLocal: scriptrate.SeverityMild,
					},
				},
			}, nil
		},
	}
	m := readyModel(t, session, svc)

	m, cmd := pressKey(t, m, runeKey('u'))
	require.NotNil(t, cmd)
	m, _ = pressKey(t, m, cmd())

	assert.Equal(t, 1, gotScene)
	assert.Equal(t, 1, gotSentence)
	assert.Equal(t, "12+", session.Analysis().FinalRating)
	assert.Empty(t, session.FragmentsForScene(1))
	assert.Contains(t, m.View(), "finding reverted")
}

func TestReviewModel_RevertWithoutAnchorStaysLocal(t *testing.T) {
	t.Parallel()

	session := reviewSession(t)
	m := readyModel(t, session, &mock.AnalysisService{})

	// The scene 2 fragment has no sentence index, so there is nothing to
	// address on the backend; the revert is local only.
	m, _ = pressKey(t, m, runeKey('n'))
	m, cmd := pressKey(t, m, runeKey('u'))

	assert.Nil(t, cmd)
	assert.Empty(t, session.FragmentsForScene(2))
	_ = m
}

func TestReviewModel_SyncFailureKeepsLocalChange(t *testing.T) {
	t.Parallel()

	session := reviewSession(t)
	svc := &mock.AnalysisService{
		CancelViolationFn: func(_ context.Context, docID string, sceneIndex, sentenceIndex int) (*scriptrate.Analysis, error) {
			return nil, context.DeadlineExceeded
		},
	}
	m := readyModel(t, session, svc)

	m, cmd := pressKey(t, m, runeKey('u'))
	require.NotNil(t, cmd)
	m, _ = pressKey(t, m, cmd())

	assert.Empty(t, session.FragmentsForScene(1))
	assert.Contains(t, m.View(), "sync failed")
}

func TestReviewModel_CycleSeveritySyncsUpdate(t *testing.T) {
	t.Parallel()

	session := reviewSession(t)
	var gotChange scriptrate.ViolationChange
	svc := &mock.AnalysisService{
		UpdateViolationFn: func(_ context.Context, docID string, change scriptrate.ViolationChange) (*scriptrate.Analysis, error) {
			require.Equal(t, "doc-1", docID)
			gotChange = change
			return session.Analysis(), nil
		},
	}
	m := readyModel(t, session, svc)

	m, cmd := pressKey(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	require.NotNil(t, cmd)
	m, _ = pressKey(t, m, cmd())

	assert.Equal(t, 1, gotChange.SceneIndex)
	assert.Equal(t, 1, gotChange.SentenceIndex)
	assert.Equal(t, scriptrate.SeverityModerate, gotChange.Severity)
	require.Len(t, gotChange.Labels, 1)
	assert.Equal(t, "VIOLENCE_NON_GRAPHIC", gotChange.Labels[0].Label)
	assert.Equal(t, scriptrate.SeverityModerate, gotChange.Labels[0].LocalSeverity)

	f, ok := session.Fragment("pf-1-1")
	require.True(t, ok)
	assert.Equal(t, scriptrate.SeverityModerate, f.Severity)
	assert.Contains(t, m.View(), "finding reclassified")
}

func TestReviewModel_EditSceneFlow(t *testing.T) {
	t.Parallel()

	session := reviewSession(t)
	m := readyModel(t, session, &mock.AnalysisService{})

	m, _ = pressKey(t, m, runeKey('e'))
	assert.Contains(t, m.View(), "Editing INT. KITCHEN - DAY")

	m = typeText(t, m, " Boom.")
	m, _ = pressKey(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	scene, ok := session.Scene(1)
	require.True(t, ok)
	assert.Contains(t, scene.Text(), "Boom.")
	assert.Equal(t, []int{1}, session.ChangedScenes())
	assert.Error(t, session.ExportAllowed())
	assert.Contains(t, m.View(), "export blocked")
}

func TestReviewModel_EditSceneDiscard(t *testing.T) {
	t.Parallel()

	session := reviewSession(t)
	m := readyModel(t, session, &mock.AnalysisService{})

	m, _ = pressKey(t, m, runeKey('e'))
	m = typeText(t, m, " Boom.")
	m, _ = pressKey(t, m, tea.KeyMsg{Type: tea.KeyCtrlX})

	scene, ok := session.Scene(1)
	require.True(t, ok)
	assert.NotContains(t, scene.Text(), "Boom.")
	assert.Empty(t, session.ChangedScenes())
}

func TestReviewModel_AddFragmentFlow(t *testing.T) {
	t.Parallel()

	session := reviewSession(t)
	m := readyModel(t, session, &mock.AnalysisService{})

	m, _ = pressKey(t, m, runeKey('a'))
	assert.Contains(t, m.View(), "New finding in INT. KITCHEN - DAY")

	m = typeText(t, m, "He pours coffee.")
	m, _ = pressKey(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	m, _ = pressKey(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	manual := session.ManualFragments()
	require.Len(t, manual, 1)
	assert.Equal(t, "He pours coffee.", manual[0].Text)
	assert.Equal(t, scriptrate.SeverityModerate, manual[0].Severity)
	assert.Equal(t, 1, manual[0].SceneIndex)
	assert.True(t, manual[0].Manual)

	assert.Len(t, session.FragmentsForScene(1), 2)
	assert.Error(t, session.ExportAllowed())
	_ = m
}

func TestReviewModel_AddFragmentSyncs(t *testing.T) {
	t.Parallel()

	session := reviewSession(t)
	var gotChange scriptrate.ViolationChange
	svc := &mock.AnalysisService{
		AddViolationFn: func(_ context.Context, docID string, change scriptrate.ViolationChange) (*scriptrate.Analysis, error) {
			require.Equal(t, "doc-1", docID)
			gotChange = change
			analysis := session.Analysis()
			fragments := append([]scriptrate.Fragment(nil), analysis.ProblemFragments...)
			fragments = append(fragments, scriptrate.Fragment{
				SceneIndex:    1,
				SentenceIndex: intPtr(0),
				Text:          change.Text,
				Labels:        []string{change.Labels[0].Label},
				SeverityLocal: change.Severity,
			})
			return &scriptrate.Analysis{
				FinalRating:      analysis.FinalRating,
				ScenesTotal:      analysis.ScenesTotal,
				ProblemFragments: fragments,
			}, nil
		},
	}
	m := readyModel(t, session, svc)

	m, _ = pressKey(t, m, runeKey('a'))
	m = typeText(t, m, "He pours coffee.")
	m, cmd := pressKey(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	m, _ = pressKey(t, m, cmd())

	assert.Equal(t, 1, gotChange.SceneIndex)
	assert.Equal(t, 0, gotChange.SentenceIndex)
	assert.Equal(t, "He pours coffee.", gotChange.Text)
	require.Len(t, gotChange.Labels, 1)

	// The server now owns the finding; the local manual copy is dropped.
	assert.Empty(t, session.ManualFragments())
	assert.Len(t, session.FragmentsForScene(1), 2)
	assert.Contains(t, m.View(), "finding added")
}

func TestReviewModel_AddFragmentEmptyTextCancels(t *testing.T) {
	t.Parallel()

	session := reviewSession(t)
	m := readyModel(t, session, &mock.AnalysisService{})

	m, _ = pressKey(t, m, runeKey('a'))
	m, _ = pressKey(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	assert.Empty(t, session.ManualFragments())
	assert.NoError(t, session.ExportAllowed())
	_ = m
}

func TestReviewModel_RecalcScene(t *testing.T) {
	t.Parallel()

	session := reviewSession(t)
	session.ApplySceneEdit(1, "He pours coffee.\nHe sets the cup down.")
	require.Error(t, session.ExportAllowed())

	var gotReq scriptrate.SceneRecalc
	svc := &mock.AnalysisService{
		RecalcSceneFn: func(_ context.Context, docID string, req scriptrate.SceneRecalc) (*scriptrate.Analysis, error) {
			gotReq = req
			return &scriptrate.Analysis{
				FinalRating: "12+",
				ScenesTotal: 2,
				ProblemFragments: []scriptrate.Fragment{
					{
						SceneIndex:    2,
						Text:          "A car screeches past.",
						Labels:        []string{"HORROR_FEAR"},
						SeverityLocal: scriptrate.SeverityMild,
					},
				},
			}, nil
		},
	}
	m := readyModel(t, session, svc)

	m, cmd := pressKey(t, m, runeKey('c'))
	require.NotNil(t, cmd)
	m, _ = pressKey(t, m, cmd())

	assert.Equal(t, 1, gotReq.SceneIndex)
	assert.Equal(t, []string{"He pours coffee.", "He sets the cup down."}, gotReq.Sentences)
	assert.Equal(t, []int{1}, session.RecalculatedScenes())
	assert.NoError(t, session.ExportAllowed())
	assert.Contains(t, m.View(), "scene 1 recalculated")
}

func TestReviewModel_RecalcRating(t *testing.T) {
	t.Parallel()

	session := reviewSession(t)
	session.ApplySceneEdit(1, "He pours coffee.")

	svc := &mock.AnalysisService{
		RecalcRatingFn: func(_ context.Context, docID string) (*scriptrate.Analysis, error) {
			return &scriptrate.Analysis{FinalRating: "6+", ScenesTotal: 2}, nil
		},
	}
	m := readyModel(t, session, svc)

	m, cmd := pressKey(t, m, runeKey('C'))
	require.NotNil(t, cmd)
	m, _ = pressKey(t, m, cmd())

	assert.Equal(t, "6+", session.Analysis().FinalRating)
	assert.Empty(t, session.ChangedScenes())
	assert.NoError(t, session.ExportAllowed())
	assert.Contains(t, m.View(), "6+")
}

func TestReviewModel_RewriteFlow(t *testing.T) {
	t.Parallel()

	session := reviewSession(t)
	rewriter := &mock.SceneRewriter{
		RewriteFn: func(_ context.Context, req scriptrate.RewriteRequest) (*scriptrate.RewriteResult, error) {
			require.Len(t, req.Scenes, 1)
			assert.Equal(t, []int{101}, req.Scenes[0].ReplaceIDs)
			assert.Equal(t, "16+", req.Scenes[0].AgeRating)
			return &scriptrate.RewriteResult{
				Mode: "llm",
				Results: []scriptrate.SceneReplacements{
					{
						Heading: "INT. KITCHEN - DAY",
						Replacements: []scriptrate.Replacement{
							{SentenceID: 101, NewSentence: "He sets the cup down gently."},
						},
					},
				},
			}, nil
		},
	}
	var gotText string
	svc := &mock.AnalysisService{
		EditSentenceFn: func(_ context.Context, docID string, sceneIndex, sentenceIndex int, text string) (*scriptrate.Analysis, error) {
			require.Equal(t, "doc-1", docID)
			assert.Equal(t, 1, sceneIndex)
			assert.Equal(t, 1, sentenceIndex)
			gotText = text
			return session.Analysis(), nil
		},
	}
	m := readyModel(t, session, svc,
		bubbletea.WithRewriter(rewriter),
		bubbletea.WithWordDiffer(worddiff.NewDiffer()),
	)

	m, cmd := pressKey(t, m, runeKey('r'))
	require.NotNil(t, cmd)
	m, _ = pressKey(t, m, cmd())

	assert.Contains(t, m.View(), "Suggested rewrite")
	assert.Contains(t, m.View(), "gently")

	m, cmd = pressKey(t, m, runeKey('y'))

	f, ok := session.Fragment("pf-1-1")
	require.True(t, ok)
	assert.Equal(t, "He sets the cup down gently.", f.Text)
	assert.Equal(t, []int{1}, session.ChangedScenes())

	// Accepting also submits the edited sentence to the backend.
	require.NotNil(t, cmd)
	m, _ = pressKey(t, m, cmd())
	assert.Equal(t, "He sets the cup down gently.", gotText)
	_ = m
}

func TestReviewModel_RewriteDiscard(t *testing.T) {
	t.Parallel()

	session := reviewSession(t)
	rewriter := &mock.SceneRewriter{
		RewriteFn: func(_ context.Context, req scriptrate.RewriteRequest) (*scriptrate.RewriteResult, error) {
			return &scriptrate.RewriteResult{
				Mode: "llm",
				Results: []scriptrate.SceneReplacements{
					{Replacements: []scriptrate.Replacement{{SentenceID: 101, NewSentence: "He sets the cup down."}}},
				},
			}, nil
		},
	}
	m := readyModel(t, session, &mock.AnalysisService{}, bubbletea.WithRewriter(rewriter))

	m, cmd := pressKey(t, m, runeKey('r'))
	require.NotNil(t, cmd)
	m, _ = pressKey(t, m, cmd())
	m, _ = pressKey(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	f, ok := session.Fragment("pf-1-1")
	require.True(t, ok)
	assert.Equal(t, "He slams the cup down.", f.Text)
	assert.Empty(t, session.ChangedScenes())
	_ = m
}

func TestReviewModel_RewriteWithoutRewriter(t *testing.T) {
	t.Parallel()

	m := readyModel(t, reviewSession(t), &mock.AnalysisService{})

	m, cmd := pressKey(t, m, runeKey('r'))

	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "rewrites unavailable")
}

func TestReviewModel_RewriteNeedsSentenceAnchor(t *testing.T) {
	t.Parallel()

	session := reviewSession(t)
	rewriter := &mock.SceneRewriter{}
	m := readyModel(t, session, &mock.AnalysisService{}, bubbletea.WithRewriter(rewriter))

	// The scene 2 fragment has no sentence index, so it cannot be addressed.
	m, _ = pressKey(t, m, runeKey('n'))
	m, cmd := pressKey(t, m, runeKey('r'))

	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "no sentence anchor")
}

type stubReporter struct {
	data  []byte
	calls int
}

func (r *stubReporter) Report(_ context.Context, docID string) ([]byte, error) {
	r.calls++
	return r.data, nil
}

func TestReviewModel_ExportBlockedUntilRecalculated(t *testing.T) {
	t.Parallel()

	session := reviewSession(t)
	session.ApplySceneEdit(1, "He pours coffee.")

	reporter := &stubReporter{data: []byte(`{"final_rating":"16+"}`)}
	path := filepath.Join(t.TempDir(), "report.json")
	m := readyModel(t, session, &mock.AnalysisService{}, bubbletea.WithReporter(reporter, path))

	m, cmd := pressKey(t, m, runeKey('x'))

	assert.Nil(t, cmd)
	assert.Zero(t, reporter.calls)
	assert.Contains(t, m.View(), "recalculate scenes 1")
}

func TestReviewModel_StatusBarCountsOnlyPendingScenes(t *testing.T) {
	t.Parallel()

	session := reviewSession(t)
	session.ApplySceneEdit(1, "He pours coffee.\nHe sets the cup down.")
	session.ApplySceneEdit(2, "A car rolls past.")
	session.MarkSceneRecalculated(2)

	m := readyModel(t, session, &mock.AnalysisService{})

	// Scene 2 was recalculated, so only scene 1 still blocks the export.
	assert.Contains(t, m.View(), "export blocked: 1 pending")
}

func TestReviewModel_ExportWritesReport(t *testing.T) {
	t.Parallel()

	session := reviewSession(t)
	reporter := &stubReporter{data: []byte(`{"final_rating":"16+"}`)}
	path := filepath.Join(t.TempDir(), "report.json")
	m := readyModel(t, session, &mock.AnalysisService{}, bubbletea.WithReporter(reporter, path))

	m, cmd := pressKey(t, m, runeKey('x'))
	require.NotNil(t, cmd)
	m, _ = pressKey(t, m, cmd())

	assert.Equal(t, 1, reporter.calls)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"final_rating":"16+"}`, string(data))
	assert.Contains(t, m.View(), "report saved")
}

func TestReviewModel_Inspect(t *testing.T) {
	t.Parallel()

	highlighter := &mock.Highlighter{
		HighlightFn: func(source string) (string, error) { return source, nil },
	}
	m := readyModel(t, reviewSession(t), &mock.AnalysisService{},
		bubbletea.WithReviewHighlighter(highlighter),
	)

	m, _ = pressKey(t, m, runeKey('i'))
	assert.Contains(t, m.View(), "final_rating")

	m, _ = pressKey(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Contains(t, m.View(), "INT. KITCHEN - DAY")
}

func TestReviewModel_PersistsAfterChanges(t *testing.T) {
	t.Parallel()

	session := reviewSession(t)
	var saved *scriptrate.SessionState
	store := &mock.SessionStore{
		SaveFn: func(docID string, state *scriptrate.SessionState) error {
			require.Equal(t, "doc-1", docID)
			saved = state
			return nil
		},
	}
	m := readyModel(t, session, &mock.AnalysisService{}, bubbletea.WithSessionStore(store))

	m, _ = pressKey(t, m, runeKey('d'))

	require.NotNil(t, saved)
	assert.Equal(t, []string{"pf-1-1"}, saved.Dismissed)
	_ = m
}

func TestReviewModel_QuitOnQ(t *testing.T) {
	t.Parallel()

	m := bubbletea.NewReviewModel(reviewSession(t), &mock.AnalysisService{})
	tm := teatest.NewTestModel(t, m,
		teatest.WithInitialTermSize(100, 30),
	)

	teatest.WaitFor(t, tm.Output(), func(out []byte) bool {
		return bytes.Contains(out, []byte("INT. KITCHEN"))
	})

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	tm.WaitFinished(t, teatest.WithFinalTimeout(0))
}
