// Package scriptrate provides domain types for reviewing screenplay
// content-rating analyses: scenes, flagged fragments, override layers, and
// the interfaces implemented by the backend client and the TUI.
package scriptrate

import "context"

// AnalysisService is the backend surface used during a review session.
// Every mutation returns the full recomputed analysis payload; callers fold
// it in wholesale rather than patching local state.
type AnalysisService interface {
	// Scenario returns the parsed scenes for a document.
	Scenario(ctx context.Context, docID string) ([]Scene, error)

	// EditSentence updates the text of a flagged sentence.
	EditSentence(ctx context.Context, docID string, sceneIndex, sentenceIndex int, text string) (*Analysis, error)

	// AddViolation records a user-flagged fragment.
	AddViolation(ctx context.Context, docID string, change ViolationChange) (*Analysis, error)

	// UpdateViolation replaces the labels and severity of an existing fragment.
	UpdateViolation(ctx context.Context, docID string, change ViolationChange) (*Analysis, error)

	// CancelViolation removes a fragment addressed by scene and sentence index.
	CancelViolation(ctx context.Context, docID string, sceneIndex, sentenceIndex int) (*Analysis, error)

	// RecalcRating recomputes the full-script rating.
	RecalcRating(ctx context.Context, docID string) (*Analysis, error)

	// RecalcScene re-analyzes a single edited scene and merges the result.
	RecalcScene(ctx context.Context, docID string, req SceneRecalc) (*Analysis, error)

	// StageResult polls one pipeline stage's output. Returns ErrStageNotReady
	// while the stage has not produced data yet; that is a normal transient
	// state, not a failure.
	StageResult(ctx context.Context, docID, stage string) (*Analysis, error)
}

// ViolationChange is the payload for adding or updating a flagged fragment.
type ViolationChange struct {
	SceneIndex    int         `json:"scene_index"`
	SentenceIndex int         `json:"sentence_index"`
	Text          string      `json:"text"`
	Severity      Severity    `json:"fragment_severity"`
	Labels        []LabelSpec `json:"labels"`
}

// LabelSpec is one label with its local severity and guidance text.
type LabelSpec struct {
	Label         string   `json:"label"`
	LocalSeverity Severity `json:"local_severity"`
	Reason        string   `json:"reason"`
	Advice        string   `json:"advice"`
}

// SceneRecalc is the payload for re-analyzing a single scene.
type SceneRecalc struct {
	SceneIndex int      `json:"scene_index"`
	Heading    string   `json:"heading"`
	Page       *int     `json:"page,omitempty"`
	Sentences  []string `json:"sentences"`
}

// SceneRewriter proposes replacement sentences that fit a target age rating.
// Implementations may decline: a result with Mode "noop" means no replacement
// was produced, which callers must surface rather than treat as success.
type SceneRewriter interface {
	Rewrite(ctx context.Context, req RewriteRequest) (*RewriteResult, error)
}

// SessionStore persists review-session state between runs.
type SessionStore interface {
	Load(docID string) (*SessionState, error)
	Save(docID string, state *SessionState) error
	Delete(docID string) error
}

// Segment is a portion of sentence text marked as changed or unchanged,
// used to highlight edits against the original wording.
type Segment struct {
	Text    string
	Changed bool
}

// WordDiffer computes word-level differences between two sentences.
type WordDiffer interface {
	// Diff returns segments for both the old and new strings,
	// marking which portions changed between them.
	Diff(old, new string) (oldSegs, newSegs []Segment)
}

// Highlighter renders a raw payload as styled terminal text for the
// inspector pane.
type Highlighter interface {
	Highlight(source string) (string, error)
}
