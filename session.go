package scriptrate

import (
	"sort"
	"strings"
)

// MetaOverride is a client-local replacement for a fragment's classification
// metadata. A nil Labels slice means no label override; an empty non-nil
// slice means the labels were cleared.
type MetaOverride struct {
	Labels   []string                `json:"labels"`
	Severity *Severity               `json:"severity,omitempty"`
	Evidence map[string]EvidenceSpan `json:"evidence,omitempty"`
}

// SessionState is the serializable snapshot of a session's override layers
// and change tracking, used for persistence between runs.
type SessionState struct {
	TextOverrides map[string]string       `json:"text_overrides"`
	MetaOverrides map[string]MetaOverride `json:"meta_overrides"`
	Dismissed     []string                `json:"dismissed"`
	Manual        []Fragment              `json:"manual"`
	Changed       []int                   `json:"changed"`
	Recalculated  []int                   `json:"recalculated"`
}

// Session holds the client-side review state for one document: the scenes,
// the last server-confirmed analysis, and the override layers applied on top
// of it. The original backend payload is never mutated; the effective
// fragment list is derived from scratch on every read.
type Session struct {
	docID    string
	scenes   []Scene
	sceneIdx map[int]int // scene number -> position in scenes
	analysis *Analysis

	text      map[string]string       // fragment id -> edited text
	meta      map[string]MetaOverride // fragment id -> metadata override
	dismissed map[string]bool
	manual    []Fragment

	changed      map[int]bool // scene numbers edited since last recalc
	recalculated map[int]bool // scene numbers confirmed recalculated
}

// NewSession creates a session over the given scenes and analysis. The
// analysis is normalized; a nil analysis yields an empty one.
func NewSession(docID string, scenes []Scene, analysis *Analysis) *Session {
	s := &Session{
		docID:        docID,
		scenes:       append([]Scene(nil), scenes...),
		sceneIdx:     make(map[int]int, len(scenes)),
		text:         map[string]string{},
		meta:         map[string]MetaOverride{},
		dismissed:    map[string]bool{},
		changed:      map[int]bool{},
		recalculated: map[int]bool{},
	}
	for i, sc := range s.scenes {
		s.sceneIdx[sc.Number] = i
	}
	s.analysis = NormalizeAnalysis(analysis, s.scenes)
	return s
}

// DocID returns the backend document id, empty in local-only sessions.
func (s *Session) DocID() string { return s.docID }

// Scenes returns the current scene list.
func (s *Session) Scenes() []Scene { return s.scenes }

// Scene looks up a scene by its backend number.
func (s *Session) Scene(number int) (Scene, bool) {
	i, ok := s.sceneIdx[number]
	if !ok {
		return Scene{}, false
	}
	return s.scenes[i], true
}

// Analysis returns the last server-confirmed analysis.
func (s *Session) Analysis() *Analysis { return s.analysis }

// ReplaceAnalysis folds a fresh server payload in wholesale, superseding any
// locally computed scores and labels. Text overrides the server has caught
// up with are dropped so the fragment reads as pristine again.
func (s *Session) ReplaceAnalysis(a *Analysis) {
	s.analysis = NormalizeAnalysis(a, s.scenes)
	for _, f := range s.analysis.ProblemFragments {
		if override, ok := s.text[f.ID]; ok && strings.TrimSpace(override) == strings.TrimSpace(f.Text) {
			delete(s.text, f.ID)
			delete(s.meta, f.ID)
		}
	}
}

// EffectiveFragments derives the view-ready fragment list: backend fragments
// minus dismissed ids, with metadata and text overrides applied, followed by
// manual fragments run through the same layering.
func (s *Session) EffectiveFragments() []Fragment {
	var out []Fragment
	for _, f := range s.analysis.ProblemFragments {
		if eff, ok := s.effective(f); ok {
			out = append(out, eff)
		}
	}
	for _, f := range s.manual {
		if eff, ok := s.effective(f); ok {
			out = append(out, eff)
		}
	}
	return out
}

// FragmentsForScene returns the effective fragments belonging to one scene.
func (s *Session) FragmentsForScene(number int) []Fragment {
	var out []Fragment
	for _, f := range s.EffectiveFragments() {
		if f.SceneIndex == number {
			out = append(out, f)
		}
	}
	return out
}

// Fragment returns the effective fragment with the given id.
func (s *Session) Fragment(id string) (Fragment, bool) {
	for _, f := range s.EffectiveFragments() {
		if f.ID == id {
			return f, true
		}
	}
	return Fragment{}, false
}

func (s *Session) effective(f Fragment) (Fragment, bool) {
	if s.dismissed[f.ID] {
		return Fragment{}, false
	}
	if m, ok := s.meta[f.ID]; ok {
		if m.Labels != nil {
			f.Labels = append([]string(nil), m.Labels...)
		}
		if m.Severity != nil {
			f.Severity = *m.Severity
		}
		if m.Evidence != nil {
			f.Evidence = m.Evidence
			f.SeverityLocal = DeriveSeverity(m.Evidence)
		}
	}
	if text, ok := s.text[f.ID]; ok {
		f.Text = text
	}
	return f, true
}

// Dismiss hides a fragment without deleting it. Dismissing an id that is
// already dismissed is a no-op.
func (s *Session) Dismiss(id string) {
	s.dismissed[id] = true
}

// Dismissed reports whether the fragment id is currently hidden.
func (s *Session) Dismissed(id string) bool { return s.dismissed[id] }

// Revert undoes a fragment locally: manual fragments are removed outright,
// analyzer fragments are dismissed, and any overrides for the id are
// discarded. Asking the backend to cancel the violation is the caller's
// responsibility when a document id is known.
func (s *Session) Revert(id string) {
	for i, f := range s.manual {
		if f.ID == id {
			s.manual = append(s.manual[:i:i], s.manual[i+1:]...)
			delete(s.text, id)
			delete(s.meta, id)
			delete(s.dismissed, id)
			return
		}
	}
	s.dismissed[id] = true
	delete(s.text, id)
	delete(s.meta, id)
}

// AddManual appends a user-created fragment and marks its scene changed.
func (s *Session) AddManual(f Fragment) {
	f.Manual = true
	s.manual = append(s.manual, f)
	s.markChanged(f.SceneIndex)
}

// ManualFragments returns the locally created fragments.
func (s *Session) ManualFragments() []Fragment {
	return append([]Fragment(nil), s.manual...)
}

// SetMetaOverride layers new classification metadata over a fragment and
// marks its scene changed.
func (s *Session) SetMetaOverride(id string, m MetaOverride) {
	s.meta[id] = m
	if f, ok := s.Fragment(id); ok {
		s.markChanged(f.SceneIndex)
	}
}

// ClearOverrides discards any local text and metadata overrides for the id.
func (s *Session) ClearOverrides(id string) {
	delete(s.text, id)
	delete(s.meta, id)
}

// ApplyFragmentEdit changes a fragment's text and writes the change through
// to the owning scene. The fragment's labels are cleared locally: text with
// uncommitted label information cannot be trusted to still match its
// original category until a re-tag or a server recalculation restores them.
// Missing fragments or scenes degrade to a no-op.
func (s *Session) ApplyFragmentEdit(id, newText string) {
	f, ok := s.Fragment(id)
	if !ok {
		return
	}
	i, ok := s.sceneIdx[f.SceneIndex]
	if !ok {
		return
	}
	scene := s.scenes[i]
	if f.SentenceIndex != nil && *f.SentenceIndex >= 0 && *f.SentenceIndex < len(scene.Sentences) {
		scene.Sentences[*f.SentenceIndex].Text = newText
		scene.Content = scene.Text()
	} else {
		// No precise anchor: replace the Nth occurrence of the tracked text.
		content := scene.Text()
		scene.Content = ReplaceOccurrence(content, f.Text, newText, f.SceneFragmentIndex)
		s.resplitScene(&scene)
	}
	s.scenes[i] = scene

	if strings.TrimSpace(newText) == strings.TrimSpace(f.OriginalText) {
		delete(s.text, id)
	} else {
		s.text[id] = newText
	}
	s.meta[id] = MetaOverride{Labels: []string{}}
	s.markChanged(f.SceneIndex)
}

// ApplySceneEdit replays a whole-scene text edit against the fragments
// anchored in it. The new text is re-split; fragments with a sentence index
// re-read their sentence at the same position and record or clear a text
// override accordingly. Fragments without an index are left alone — their
// occurrence-based text is only adjusted through ApplyFragmentEdit. The
// operation never fails; unknown scenes are a no-op.
func (s *Session) ApplySceneEdit(number int, newText string) {
	i, ok := s.sceneIdx[number]
	if !ok {
		return
	}
	pieces := SplitSentences(newText)

	scene := s.scenes[i]
	scene.Content = newText
	for j := range scene.Sentences {
		if j < len(pieces) {
			scene.Sentences[j].Text = pieces[j]
		}
	}
	s.scenes[i] = scene

	reconcile := func(f Fragment) {
		if f.SceneIndex != number || f.SentenceIndex == nil {
			return
		}
		idx := *f.SentenceIndex
		if idx < 0 || idx >= len(pieces) {
			return
		}
		next := strings.TrimSpace(pieces[idx])
		switch {
		case next == strings.TrimSpace(f.OriginalText):
			// Edited back to the pristine text: treat as reverted.
			delete(s.text, f.ID)
		case next != strings.TrimSpace(s.currentText(f)):
			s.text[f.ID] = next
		}
	}
	for _, f := range s.analysis.ProblemFragments {
		reconcile(f)
	}
	for _, f := range s.manual {
		reconcile(f)
	}
	s.markChanged(number)
}

func (s *Session) currentText(f Fragment) string {
	if t, ok := s.text[f.ID]; ok {
		return t
	}
	return f.Text
}

func (s *Session) resplitScene(scene *Scene) {
	pieces := SplitSentences(scene.Content)
	for j := range scene.Sentences {
		if j < len(pieces) {
			scene.Sentences[j].Text = pieces[j]
		}
	}
}

// ReplaceOccurrence replaces the nth (0-based) occurrence of old inside
// content. When fewer occurrences exist, the first one found is replaced;
// when none exist, content is returned unchanged.
func ReplaceOccurrence(content, old, new string, n int) string {
	if old == "" || old == new {
		return content
	}
	var positions []int
	for from := 0; ; {
		i := strings.Index(content[from:], old)
		if i < 0 {
			break
		}
		positions = append(positions, from+i)
		from += i + len(old)
	}
	if len(positions) == 0 {
		return content
	}
	pos := positions[0]
	if n >= 0 && n < len(positions) {
		pos = positions[n]
	}
	return content[:pos] + new + content[pos+len(old):]
}

// SceneRecalcPayload builds the request body for re-analyzing one scene
// with its current (edited) sentence texts.
func (s *Session) SceneRecalcPayload(number int) (SceneRecalc, bool) {
	scene, ok := s.Scene(number)
	if !ok {
		return SceneRecalc{}, false
	}
	sentences := scene.SentenceTexts()
	if len(sentences) == 0 {
		sentences = SplitSentences(scene.Content)
	}
	return SceneRecalc{
		SceneIndex: scene.Number,
		Heading:    scene.Heading,
		Page:       scene.Page,
		Sentences:  sentences,
	}, true
}

// RewriteRequestFor builds the AI replace payload for one fragment: the
// owning scene's full sentence list plus the single sentence id to replace.
// Fragments without a sentence id cannot be addressed and return
// ErrNoSentenceIndex.
func (s *Session) RewriteRequestFor(fragmentID, ageRating string) (RewriteRequest, Fragment, error) {
	f, ok := s.Fragment(fragmentID)
	if !ok || f.SentenceID == nil {
		return RewriteRequest{}, Fragment{}, ErrNoSentenceIndex
	}
	scene, ok := s.Scene(f.SceneIndex)
	if !ok {
		return RewriteRequest{}, Fragment{}, ErrNoSentenceIndex
	}
	return RewriteRequest{Scenes: []RewriteScene{{
		Heading:    scene.Heading,
		ReplaceIDs: []int{*f.SentenceID},
		AgeRating:  ageRating,
		Sentences:  append([]Sentence(nil), scene.Sentences...),
	}}}, f, nil
}

func (s *Session) markChanged(number int) {
	s.changed[number] = true
	delete(s.recalculated, number)
}

// MarkSceneRecalculated records a server-confirmed recalculation of one
// scene without touching any other scene's state.
func (s *Session) MarkSceneRecalculated(number int) {
	s.recalculated[number] = true
}

// ClearChangeTracking empties both tracking sets, as after a confirmed
// full-script recalculation.
func (s *Session) ClearChangeTracking() {
	s.changed = map[int]bool{}
	s.recalculated = map[int]bool{}
}

// ChangedScenes returns the scene numbers edited since their last
// recalculation, sorted.
func (s *Session) ChangedScenes() []int { return sortedKeys(s.changed) }

// RecalculatedScenes returns the recalculated scene numbers, sorted.
func (s *Session) RecalculatedScenes() []int { return sortedKeys(s.recalculated) }

// ExportAllowed reports whether a final report may be generated: every
// changed scene must have been recalculated. When blocked it returns an
// ExportBlockedError naming the pending scenes.
func (s *Session) ExportAllowed() error {
	var pending []int
	for n := range s.changed {
		if !s.recalculated[n] {
			pending = append(pending, n)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	sort.Ints(pending)
	return &ExportBlockedError{Pending: pending}
}

// Snapshot captures the override layers and change tracking for persistence.
func (s *Session) Snapshot() *SessionState {
	state := &SessionState{
		TextOverrides: map[string]string{},
		MetaOverrides: map[string]MetaOverride{},
		Manual:        append([]Fragment(nil), s.manual...),
		Changed:       sortedKeys(s.changed),
		Recalculated:  sortedKeys(s.recalculated),
	}
	for id, t := range s.text {
		state.TextOverrides[id] = t
	}
	for id, m := range s.meta {
		state.MetaOverrides[id] = m
	}
	for id := range s.dismissed {
		state.Dismissed = append(state.Dismissed, id)
	}
	sort.Strings(state.Dismissed)
	return state
}

// Restore replaces the session's override layers and change tracking with a
// previously captured snapshot.
func (s *Session) Restore(state *SessionState) {
	if state == nil {
		return
	}
	s.text = map[string]string{}
	for id, t := range state.TextOverrides {
		s.text[id] = t
	}
	s.meta = map[string]MetaOverride{}
	for id, m := range state.MetaOverrides {
		s.meta[id] = m
	}
	s.dismissed = map[string]bool{}
	for _, id := range state.Dismissed {
		s.dismissed[id] = true
	}
	s.manual = append([]Fragment(nil), state.Manual...)
	for i := range s.manual {
		s.manual[i].Manual = true
	}
	s.changed = map[int]bool{}
	for _, n := range state.Changed {
		s.changed[n] = true
	}
	s.recalculated = map[int]bool{}
	for _, n := range state.Recalculated {
		s.recalculated[n] = true
	}
}

func sortedKeys(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}
