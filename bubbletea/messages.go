package bubbletea

import (
	"context"
	"encoding/json"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/vportnov/scriptrate"
)

// streamEventMsg carries one event from an analysis stream.
type streamEventMsg struct {
	event scriptrate.StreamEvent
}

// streamClosedMsg signals that the analysis stream has no more events.
type streamClosedMsg struct{}

// analysisMsg carries a refreshed analysis from the backend. scene is the
// scene number the refresh covers, or 0 for a full recalculation.
type analysisMsg struct {
	analysis *scriptrate.Analysis
	scene    int
}

// rewriteMsg carries an accepted-or-rejectable rewrite proposal for one
// fragment.
type rewriteMsg struct {
	fragmentID string
	original   string
	proposed   string
}

// reportMsg carries the exported report bytes.
type reportMsg struct {
	data []byte
}

// syncMsg carries the backend's confirmation of a violation edit that was
// already applied locally. The returned analysis replaces the session's copy
// without touching change tracking. dropManual names a manual fragment the
// server now owns.
type syncMsg struct {
	analysis   *scriptrate.Analysis
	note       string
	dropManual string
}

// syncErrMsg reports a failed confirmation. The local change stays.
type syncErrMsg struct {
	err error
}

// errMsg surfaces a failed backend call without terminating the program.
type errMsg struct {
	err error
}

const callTimeout = 30 * time.Second

// waitForStreamEvent blocks on the next stream event.
func waitForStreamEvent(ch <-chan scriptrate.StreamEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return streamEventMsg{event: ev}
	}
}

func recalcSceneCmd(service scriptrate.AnalysisService, docID string, req scriptrate.SceneRecalc) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		a, err := service.RecalcScene(ctx, docID, req)
		if err != nil {
			return errMsg{err: err}
		}
		return analysisMsg{analysis: a, scene: req.SceneIndex}
	}
}

func recalcRatingCmd(service scriptrate.AnalysisService, docID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		a, err := service.RecalcRating(ctx, docID)
		if err != nil {
			return errMsg{err: err}
		}
		return analysisMsg{analysis: a}
	}
}

func editSentenceCmd(service scriptrate.AnalysisService, docID string, sceneIndex, sentenceIndex int, text, note string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		a, err := service.EditSentence(ctx, docID, sceneIndex, sentenceIndex, text)
		if err != nil {
			return syncErrMsg{err: err}
		}
		return syncMsg{analysis: a, note: note}
	}
}

func addViolationCmd(service scriptrate.AnalysisService, docID string, change scriptrate.ViolationChange, manualID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		a, err := service.AddViolation(ctx, docID, change)
		if err != nil {
			return syncErrMsg{err: err}
		}
		return syncMsg{analysis: a, note: "finding added", dropManual: manualID}
	}
}

func updateViolationCmd(service scriptrate.AnalysisService, docID string, change scriptrate.ViolationChange) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		a, err := service.UpdateViolation(ctx, docID, change)
		if err != nil {
			return syncErrMsg{err: err}
		}
		return syncMsg{analysis: a, note: "finding reclassified"}
	}
}

func cancelViolationCmd(service scriptrate.AnalysisService, docID string, sceneIndex, sentenceIndex int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		a, err := service.CancelViolation(ctx, docID, sceneIndex, sentenceIndex)
		if err != nil {
			return syncErrMsg{err: err}
		}
		return syncMsg{analysis: a, note: "finding reverted"}
	}
}

func rewriteCmd(rewriter scriptrate.SceneRewriter, req scriptrate.RewriteRequest, f scriptrate.Fragment, original string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*callTimeout)
		defer cancel()
		result, err := rewriter.Rewrite(ctx, req)
		if err != nil {
			return errMsg{err: err}
		}
		proposed, err := scriptrate.ProposedReplacement(result, *f.SentenceID, original)
		if err != nil {
			return errMsg{err: err}
		}
		return rewriteMsg{fragmentID: f.ID, original: original, proposed: proposed}
	}
}

func exportReportCmd(reporter Reporter, docID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		data, err := reporter.Report(ctx, docID)
		if err != nil {
			return errMsg{err: err}
		}
		return reportMsg{data: data}
	}
}

// decodeAnalysis unmarshals an analysis payload from a final stream event.
func decodeAnalysis(data json.RawMessage) (*scriptrate.Analysis, error) {
	var a scriptrate.Analysis
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
