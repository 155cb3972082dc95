package scriptrate

import "strings"

// RewriteScene is one scene submitted for AI-assisted replacement: the full
// sentence list, the ids of the sentences to replace, and the age rating the
// replacement must fit.
type RewriteScene struct {
	Heading    string     `json:"heading"`
	ReplaceIDs []int      `json:"replace_sentences_id"`
	AgeRating  string     `json:"age_rating"`
	Sentences  []Sentence `json:"sentences"`
}

// RewriteRequest is the payload for a SceneRewriter call.
type RewriteRequest struct {
	Scenes []RewriteScene `json:"all_scenes"`
}

// Replacement is a proposed new sentence keyed by the backend sentence id.
type Replacement struct {
	SentenceID  int    `json:"sentence_id"`
	NewSentence string `json:"new_sentence"`
}

// SceneReplacements groups the replacements proposed for one scene.
type SceneReplacements struct {
	Heading      string        `json:"heading"`
	Replacements []Replacement `json:"replacements"`
}

// RewriteResult is the outcome of a rewrite call. Mode "noop" is a valid
// non-error outcome meaning no replacement was produced.
type RewriteResult struct {
	Mode           string              `json:"mode"`
	Results        []SceneReplacements `json:"results"`
	ElapsedSeconds float64             `json:"elapsed_seconds,omitempty"`
}

// RewriteModeNoop marks a rewrite result that produced no replacement.
const RewriteModeNoop = "noop"

// ProposedReplacement extracts the replacement for one sentence id from a
// rewrite result. It enforces the client-side contract: a noop mode, a
// missing replacement, or a proposal identical to the original (after
// trimming) are all reported as ErrReplaceUnchanged so the UI surfaces them
// instead of silently accepting an echo.
func ProposedReplacement(result *RewriteResult, sentenceID int, original string) (string, error) {
	if result == nil || result.Mode == RewriteModeNoop {
		return "", ErrReplaceUnchanged
	}
	for _, scene := range result.Results {
		for _, r := range scene.Replacements {
			if r.SentenceID != sentenceID {
				continue
			}
			proposed := strings.TrimSpace(r.NewSentence)
			if proposed == "" || proposed == strings.TrimSpace(original) {
				return "", ErrReplaceUnchanged
			}
			return proposed, nil
		}
	}
	return "", ErrReplaceUnchanged
}
