package gin_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vportnov/scriptrate"
	scriptgin "github.com/vportnov/scriptrate/gin"
	scripthttp "github.com/vportnov/scriptrate/http"
	"github.com/vportnov/scriptrate/mock"
)

func demoScenes() []scriptrate.Scene {
	return []scriptrate.Scene{
		{Number: 1, Heading: "INT. KITCHEN - DAY", Sentences: []scriptrate.Sentence{
			{Text: "He pours coffee."},
			{Text: "Blood drips from his knuckles."},
		}},
		{Number: 2, Heading: "EXT. ALLEY - NIGHT", Sentences: []scriptrate.Sentence{
			{Text: "Two men fight over a gun."},
			{Text: "A cat watches."},
		}},
	}
}

func demoClient(t *testing.T, opts ...scriptgin.ServerOption) (*scripthttp.Client, *scriptgin.Server) {
	t.Helper()
	server := scriptgin.NewServer(opts...)
	server.SeedDocument("doc-1", demoScenes())
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return scripthttp.NewClient(srv.URL), server
}

func runAnalysis(t *testing.T, client *scripthttp.Client) *scriptrate.Analysis {
	t.Helper()
	stream, err := client.Analyze(context.Background(), "doc-1")
	require.NoError(t, err)
	for range stream.Events() {
	}
	require.NoError(t, stream.Err())

	analysis, err := client.StageResult(context.Background(), "doc-1", "final")
	require.NoError(t, err)
	return analysis
}

func TestServer_Scenario(t *testing.T) {
	t.Parallel()

	client, _ := demoClient(t)
	scenes, err := client.Scenario(context.Background(), "doc-1")

	require.NoError(t, err)
	require.Len(t, scenes, 2)
	assert.Equal(t, "INT. KITCHEN - DAY", scenes[0].Heading)
	// seeded sentence ids are sequential and stable
	assert.Equal(t, 1, scenes[0].Sentences[0].ID)
	assert.Equal(t, 3, scenes[1].Sentences[0].ID)
}

func TestServer_UnknownDocument(t *testing.T) {
	t.Parallel()

	client, _ := demoClient(t)
	_, err := client.Scenario(context.Background(), "missing")

	var apiErr *scripthttp.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.StatusCode)
}

func TestServer_Analyze(t *testing.T) {
	t.Parallel()

	client, _ := demoClient(t)
	stream, err := client.Analyze(context.Background(), "doc-1")
	require.NoError(t, err)

	progress := scriptrate.NewProgress()
	var kinds []string
	for ev := range stream.Events() {
		kinds = append(kinds, ev.Kind)
		progress.ApplyEvent(ev)
	}
	require.NoError(t, stream.Err())

	assert.True(t, progress.Done())
	assert.Equal(t, 100.0, progress.Overall())
	assert.Contains(t, kinds, scriptrate.EventPreflight)
	assert.Contains(t, kinds, scriptrate.EventProgress)
	assert.Contains(t, kinds, scriptrate.EventPartialOne)
	assert.Contains(t, kinds, scriptrate.EventStageTwoDone)
	assert.Contains(t, kinds, scriptrate.EventFinal)
}

func TestServer_DetectedFragments(t *testing.T) {
	t.Parallel()

	client, _ := demoClient(t)
	analysis := runAnalysis(t, client)

	// "blood", "fight", "gun" keywords across two scenes
	require.Len(t, analysis.ProblemFragments, 2)
	assert.Equal(t, "18+", analysis.FinalRating)

	byScene := map[int]scriptrate.Fragment{}
	for _, f := range analysis.ProblemFragments {
		byScene[f.SceneIndex] = f
	}
	assert.Contains(t, byScene[1].Labels, "VIOLENCE_GRAPHIC")
	assert.Contains(t, byScene[2].Labels, "VIOLENCE_NON_GRAPHIC")
	assert.Contains(t, byScene[2].Labels, "WEAPONS_USAGE")
	require.NotNil(t, byScene[1].SentenceIndex)
	assert.Equal(t, 1, *byScene[1].SentenceIndex)
	require.NotNil(t, byScene[1].SentenceID)
	assert.Equal(t, 2, *byScene[1].SentenceID)
}

func TestServer_EditSentence(t *testing.T) {
	t.Parallel()

	client, _ := demoClient(t)
	runAnalysis(t, client)

	// Softening the flagged sentence removes its finding.
	analysis, err := client.EditSentence(context.Background(), "doc-1", 1, 1, "Water drips from the faucet.")
	require.NoError(t, err)

	for _, f := range analysis.ProblemFragments {
		assert.NotEqual(t, 1, f.SceneIndex)
	}

	// Introducing a new keyword brings a finding back.
	analysis, err = client.EditSentence(context.Background(), "doc-1", 1, 0, "He pours whiskey.")
	require.NoError(t, err)

	found := false
	for _, f := range analysis.ProblemFragments {
		if f.SceneIndex == 1 {
			found = true
			assert.Contains(t, f.Labels, "ALCOHOL_USE")
		}
	}
	assert.True(t, found)
}

func TestServer_ViolationLifecycle(t *testing.T) {
	t.Parallel()

	client, _ := demoClient(t)
	runAnalysis(t, client)

	// Add a manual violation on a clean sentence.
	analysis, err := client.AddViolation(context.Background(), "doc-1", scriptrate.ViolationChange{
		SceneIndex:    2,
		SentenceIndex: 1,
		Labels: []scriptrate.LabelSpec{{
			Label:         "HORROR_FEAR",
			LocalSeverity: scriptrate.SeverityMild,
			Reason:        "menacing atmosphere",
		}},
	})
	require.NoError(t, err)
	require.Len(t, analysis.ProblemFragments, 3)

	// Update its classification.
	analysis, err = client.UpdateViolation(context.Background(), "doc-1", scriptrate.ViolationChange{
		SceneIndex:    2,
		SentenceIndex: 1,
		Labels: []scriptrate.LabelSpec{{
			Label:         "HORROR_FEAR",
			LocalSeverity: scriptrate.SeveritySevere,
		}},
	})
	require.NoError(t, err)

	var updated *scriptrate.Fragment
	for i, f := range analysis.ProblemFragments {
		if f.SceneIndex == 2 && f.SentenceIndex != nil && *f.SentenceIndex == 1 {
			updated = &analysis.ProblemFragments[i]
		}
	}
	require.NotNil(t, updated)
	assert.Equal(t, scriptrate.SeveritySevere, updated.SeverityLocal)

	// Cancel it again.
	analysis, err = client.CancelViolation(context.Background(), "doc-1", 2, 1)
	require.NoError(t, err)
	assert.Len(t, analysis.ProblemFragments, 2)
}

func TestServer_RecalcScene(t *testing.T) {
	t.Parallel()

	client, _ := demoClient(t)
	runAnalysis(t, client)

	analysis, err := client.RecalcScene(context.Background(), "doc-1", scriptrate.SceneRecalc{
		SceneIndex: 2,
		Heading:    "EXT. ALLEY - NIGHT",
		Sentences:  []string{"Two men talk quietly.", "A cat watches."},
	})
	require.NoError(t, err)

	for _, f := range analysis.ProblemFragments {
		assert.NotEqual(t, 2, f.SceneIndex)
	}
	assert.Equal(t, "18+", analysis.FinalRating) // scene 1's blood still stands
}

func TestServer_RecalcRating(t *testing.T) {
	t.Parallel()

	client, _ := demoClient(t)
	runAnalysis(t, client)

	// Clear both flagged sentences, then ask for a fresh rating.
	_, err := client.EditSentence(context.Background(), "doc-1", 1, 1, "Water drips.")
	require.NoError(t, err)
	_, err = client.EditSentence(context.Background(), "doc-1", 2, 0, "Two men talk.")
	require.NoError(t, err)

	analysis, err := client.RecalcRating(context.Background(), "doc-1")
	require.NoError(t, err)

	assert.Empty(t, analysis.ProblemFragments)
	assert.Equal(t, "0+", analysis.FinalRating)
}

func TestServer_StageNotReady(t *testing.T) {
	t.Parallel()

	client, _ := demoClient(t)
	_, err := client.StageResult(context.Background(), "doc-1", "final")

	assert.ErrorIs(t, err, scriptrate.ErrStageNotReady)
}

func TestServer_Replace(t *testing.T) {
	t.Parallel()

	t.Run("without a rewriter answers noop", func(t *testing.T) {
		t.Parallel()

		client, _ := demoClient(t)
		result, err := client.Replace(context.Background(), "doc-1", scriptrate.RewriteRequest{})

		require.NoError(t, err)
		assert.Equal(t, scriptrate.RewriteModeNoop, result.Mode)
	})

	t.Run("delegates to the wired rewriter", func(t *testing.T) {
		t.Parallel()

		rewriter := &mock.SceneRewriter{
			RewriteFn: func(ctx context.Context, req scriptrate.RewriteRequest) (*scriptrate.RewriteResult, error) {
				return &scriptrate.RewriteResult{
					Mode: "rewrite",
					Results: []scriptrate.SceneReplacements{{
						Replacements: []scriptrate.Replacement{{SentenceID: 2, NewSentence: "Water drips."}},
					}},
				}, nil
			},
		}
		client, _ := demoClient(t, scriptgin.WithRewriter(rewriter))

		result, err := client.Replace(context.Background(), "doc-1", scriptrate.RewriteRequest{})

		require.NoError(t, err)
		require.Len(t, result.Results, 1)
		assert.Equal(t, "Water drips.", result.Results[0].Replacements[0].NewSentence)
	})
}

func TestServer_Upload(t *testing.T) {
	t.Parallel()

	t.Run("parses scenes and seeds the document", func(t *testing.T) {
		t.Parallel()

		client, _ := demoClient(t)
		script := "INT. KITCHEN - DAY\nHe pours coffee.\nBlood drips from his knuckles.\n\nEXT. ALLEY - NIGHT\nA cat watches.\n"

		docID, scenes, err := client.Upload(context.Background(), "myscript.txt", strings.NewReader(script))

		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(docID, "myscript_"))
		assert.Len(t, docID, len("myscript_")+8)
		require.Len(t, scenes, 2)
		assert.Equal(t, "INT. KITCHEN - DAY", scenes[0].Heading)
		require.Len(t, scenes[0].Sentences, 2)
		assert.Equal(t, 1, scenes[0].Sentences[0].ID)
		assert.Equal(t, "Blood drips from his knuckles.", scenes[0].Sentences[1].Text)

		// The uploaded document is immediately analyzable.
		fetched, err := client.Scenario(context.Background(), docID)
		require.NoError(t, err)
		assert.Len(t, fetched, 2)
	})

	t.Run("rejects text without scenes", func(t *testing.T) {
		t.Parallel()

		client, _ := demoClient(t)
		_, _, err := client.Upload(context.Background(), "empty.txt", strings.NewReader("   \n"))

		var apiErr *scripthttp.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 400, apiErr.StatusCode)
	})
}

func TestServer_Report(t *testing.T) {
	t.Parallel()

	client, _ := demoClient(t)
	runAnalysis(t, client)

	raw, err := client.Report(context.Background(), "doc-1")

	require.NoError(t, err)
	assert.Contains(t, string(raw), "final_rating")
}
