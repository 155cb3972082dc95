// Package mock provides function-field mock implementations of the
// scriptrate interfaces for testing.
package mock

import (
	"context"

	"github.com/vportnov/scriptrate"
)

// Compile-time interface verification.
var _ scriptrate.AnalysisService = (*AnalysisService)(nil)
var _ scriptrate.SceneRewriter = (*SceneRewriter)(nil)
var _ scriptrate.SessionStore = (*SessionStore)(nil)
var _ scriptrate.WordDiffer = (*WordDiffer)(nil)
var _ scriptrate.Highlighter = (*Highlighter)(nil)

// AnalysisService is a mock implementation of scriptrate.AnalysisService.
type AnalysisService struct {
	ScenarioFn        func(ctx context.Context, docID string) ([]scriptrate.Scene, error)
	EditSentenceFn    func(ctx context.Context, docID string, sceneIndex, sentenceIndex int, text string) (*scriptrate.Analysis, error)
	AddViolationFn    func(ctx context.Context, docID string, change scriptrate.ViolationChange) (*scriptrate.Analysis, error)
	UpdateViolationFn func(ctx context.Context, docID string, change scriptrate.ViolationChange) (*scriptrate.Analysis, error)
	CancelViolationFn func(ctx context.Context, docID string, sceneIndex, sentenceIndex int) (*scriptrate.Analysis, error)
	RecalcRatingFn    func(ctx context.Context, docID string) (*scriptrate.Analysis, error)
	RecalcSceneFn     func(ctx context.Context, docID string, req scriptrate.SceneRecalc) (*scriptrate.Analysis, error)
	StageResultFn     func(ctx context.Context, docID, stage string) (*scriptrate.Analysis, error)
}

func (s *AnalysisService) Scenario(ctx context.Context, docID string) ([]scriptrate.Scene, error) {
	return s.ScenarioFn(ctx, docID)
}

func (s *AnalysisService) EditSentence(ctx context.Context, docID string, sceneIndex, sentenceIndex int, text string) (*scriptrate.Analysis, error) {
	return s.EditSentenceFn(ctx, docID, sceneIndex, sentenceIndex, text)
}

func (s *AnalysisService) AddViolation(ctx context.Context, docID string, change scriptrate.ViolationChange) (*scriptrate.Analysis, error) {
	return s.AddViolationFn(ctx, docID, change)
}

func (s *AnalysisService) UpdateViolation(ctx context.Context, docID string, change scriptrate.ViolationChange) (*scriptrate.Analysis, error) {
	return s.UpdateViolationFn(ctx, docID, change)
}

func (s *AnalysisService) CancelViolation(ctx context.Context, docID string, sceneIndex, sentenceIndex int) (*scriptrate.Analysis, error) {
	return s.CancelViolationFn(ctx, docID, sceneIndex, sentenceIndex)
}

func (s *AnalysisService) RecalcRating(ctx context.Context, docID string) (*scriptrate.Analysis, error) {
	return s.RecalcRatingFn(ctx, docID)
}

func (s *AnalysisService) RecalcScene(ctx context.Context, docID string, req scriptrate.SceneRecalc) (*scriptrate.Analysis, error) {
	return s.RecalcSceneFn(ctx, docID, req)
}

func (s *AnalysisService) StageResult(ctx context.Context, docID, stage string) (*scriptrate.Analysis, error) {
	return s.StageResultFn(ctx, docID, stage)
}

// SceneRewriter is a mock implementation of scriptrate.SceneRewriter.
type SceneRewriter struct {
	RewriteFn func(ctx context.Context, req scriptrate.RewriteRequest) (*scriptrate.RewriteResult, error)
}

func (r *SceneRewriter) Rewrite(ctx context.Context, req scriptrate.RewriteRequest) (*scriptrate.RewriteResult, error) {
	return r.RewriteFn(ctx, req)
}

// SessionStore is a mock implementation of scriptrate.SessionStore.
type SessionStore struct {
	LoadFn   func(docID string) (*scriptrate.SessionState, error)
	SaveFn   func(docID string, state *scriptrate.SessionState) error
	DeleteFn func(docID string) error
}

func (s *SessionStore) Load(docID string) (*scriptrate.SessionState, error) {
	return s.LoadFn(docID)
}

func (s *SessionStore) Save(docID string, state *scriptrate.SessionState) error {
	return s.SaveFn(docID, state)
}

func (s *SessionStore) Delete(docID string) error {
	return s.DeleteFn(docID)
}

// WordDiffer is a mock implementation of scriptrate.WordDiffer.
type WordDiffer struct {
	DiffFn func(old, new string) (oldSegs, newSegs []scriptrate.Segment)
}

func (d *WordDiffer) Diff(old, new string) (oldSegs, newSegs []scriptrate.Segment) {
	return d.DiffFn(old, new)
}

// Highlighter is a mock implementation of scriptrate.Highlighter.
type Highlighter struct {
	HighlightFn func(source string) (string, error)
}

func (h *Highlighter) Highlight(source string) (string, error) {
	return h.HighlightFn(source)
}
