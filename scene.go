package scriptrate

import "strings"

// Sentence is one addressable unit of scene text. ID is the backend's stable
// addressing key; the sentence's position in the slice is the separate
// sentence_index used by edit operations. The two are not interchangeable
// once sentences have been filtered or edited, so both are kept explicit.
type Sentence struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// Scene is one contiguous unit of script text. Number is the backend's
// scene_index, not a position in any client-side slice.
type Scene struct {
	Number    int        `json:"scene_index"`
	Heading   string     `json:"heading"`
	Page      *int       `json:"page,omitempty"`
	Content   string     `json:"content,omitempty"`
	Sentences []Sentence `json:"sentences,omitempty"`
}

// Text returns the scene's display text: the joined structured sentences
// when the backend supplied them, the raw content otherwise.
func (s Scene) Text() string {
	if len(s.Sentences) == 0 {
		return s.Content
	}
	parts := make([]string, len(s.Sentences))
	for i, sent := range s.Sentences {
		parts[i] = sent.Text
	}
	return strings.Join(parts, "\n")
}

// SentenceTexts returns the sentence strings in order.
func (s Scene) SentenceTexts() []string {
	out := make([]string, len(s.Sentences))
	for i, sent := range s.Sentences {
		out[i] = sent.Text
	}
	return out
}

// SplitSentences derives sentence-like units from raw scene text when no
// structured sentence list is available: pieces are separated by one or more
// newlines, stripped of carriage returns and surrounding whitespace, and
// empty pieces are dropped. The resulting positions carry no backend
// addressing guarantees; this fallback is cosmetic only.
func SplitSentences(text string) []string {
	var out []string
	for _, piece := range strings.Split(text, "\n") {
		piece = strings.TrimSpace(strings.ReplaceAll(piece, "\r", ""))
		if piece == "" {
			continue
		}
		out = append(out, piece)
	}
	return out
}
