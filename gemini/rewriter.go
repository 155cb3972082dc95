// Package gemini implements AI-assisted sentence rewriting using Google
// Gemini.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vportnov/scriptrate"
)

// Compile-time interface verification.
var _ scriptrate.SceneRewriter = (*Rewriter)(nil)

// DefaultRewriteTimeout is the default timeout for a single rewrite call.
const DefaultRewriteTimeout = 60 * time.Second

// Rewriter implements scriptrate.SceneRewriter using Google Gemini. It asks
// the model to rewrite only the targeted sentences so the scene fits a
// given age rating, keeping everything else verbatim.
type Rewriter struct {
	client  GenerativeClient
	model   string
	timeout time.Duration
}

// RewriterOption configures a Rewriter.
type RewriterOption func(*Rewriter)

// WithTimeout sets the timeout for API calls.
func WithTimeout(d time.Duration) RewriterOption {
	return func(r *Rewriter) {
		r.timeout = d
	}
}

// NewRewriter creates a new Rewriter.
func NewRewriter(client GenerativeClient, model string, opts ...RewriterOption) *Rewriter {
	r := &Rewriter{
		client:  client,
		model:   model,
		timeout: DefaultRewriteTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// rewriteResponse is the structured output requested from the model.
type rewriteResponse struct {
	Results []struct {
		Heading      string `json:"heading"`
		Replacements []struct {
			SentenceID  int    `json:"sentence_id"`
			NewSentence string `json:"new_sentence"`
		} `json:"replacements"`
	} `json:"results"`
}

// Rewrite produces replacement sentences for the flagged ids in each scene.
// A response that replaces nothing, or only echoes the originals back, is
// reported as a noop result rather than an error.
func (r *Rewriter) Rewrite(ctx context.Context, req scriptrate.RewriteRequest) (*scriptrate.RewriteResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	prompt := BuildRewritePrompt(req)

	contents := []*Content{{
		Parts: []*Part{{Text: prompt}},
	}}

	resp, err := r.client.GenerateContent(ctx, r.model, contents, BuildRewriteConfig())
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("gemini: returned nil response")
	}

	var parsed rewriteResponse
	if err := json.Unmarshal([]byte(resp.Text), &parsed); err != nil {
		return nil, fmt.Errorf("gemini: failed to parse response: %w", err)
	}

	originals := originalsByID(req)
	result := &scriptrate.RewriteResult{
		Mode:           "rewrite",
		ElapsedSeconds: time.Since(start).Seconds(),
	}
	changed := false
	for _, scene := range parsed.Results {
		out := scriptrate.SceneReplacements{Heading: scene.Heading}
		for _, repl := range scene.Replacements {
			proposal := strings.TrimSpace(repl.NewSentence)
			if proposal == "" || proposal == strings.TrimSpace(originals[repl.SentenceID]) {
				continue
			}
			out.Replacements = append(out.Replacements, scriptrate.Replacement{
				SentenceID:  repl.SentenceID,
				NewSentence: proposal,
			})
			changed = true
		}
		if len(out.Replacements) > 0 {
			result.Results = append(result.Results, out)
		}
	}
	if !changed {
		result.Mode = scriptrate.RewriteModeNoop
		result.Results = nil
	}
	return result, nil
}

func originalsByID(req scriptrate.RewriteRequest) map[int]string {
	out := map[int]string{}
	for _, scene := range req.Scenes {
		for _, sent := range scene.Sentences {
			out[sent.ID] = sent.Text
		}
	}
	return out
}

// BuildRewritePrompt creates the user prompt for a rewrite request.
func BuildRewritePrompt(req scriptrate.RewriteRequest) string {
	var b strings.Builder
	for _, scene := range req.Scenes {
		fmt.Fprintf(&b, "## Scene: %s\n", scene.Heading)
		fmt.Fprintf(&b, "Target age rating: %s\n", scene.AgeRating)
		fmt.Fprintf(&b, "Sentence ids to rewrite: %s\n\n", joinInts(scene.ReplaceIDs))
		for _, sent := range scene.Sentences {
			fmt.Fprintf(&b, "[%d] %s\n", sent.ID, sent.Text)
		}
		b.WriteString("\n")
	}

	return fmt.Sprintf(`Rewrite the flagged sentences of this screenplay excerpt so the scene fits the target age rating.

%s

## Task

For each listed sentence id, produce a replacement sentence that:
- removes or softens the content that conflicts with the target age rating
- preserves the scene's meaning, tone, and narrative function
- matches the screenplay's register and style
- keeps roughly the same length

Do not rewrite any sentence that is not listed. If a flagged sentence already fits the target rating, omit it from the results.

Respond with JSON matching this schema:
{
  "results": [
    {
      "heading": "scene heading as given",
      "replacements": [
        {"sentence_id": 0, "new_sentence": "the rewritten sentence"}
      ]
    }
  ]
}`, strings.TrimSpace(b.String()))
}

// BuildRewriteConfig returns config for rewrite calls.
func BuildRewriteConfig() *GenerateContentConfig {
	temp := float32(0.4)
	return &GenerateContentConfig{
		SystemInstruction: &Content{
			Parts: []*Part{{
				Text: `You are a screenplay editor specializing in content adaptation for age-rated releases.

Your role is to rewrite individual flagged sentences so a scene complies with a target age rating while staying faithful to the author's intent. Never add new content, never rewrite sentences you were not asked to touch, and never return a sentence unchanged.`,
			}},
		},
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
		ResponseSchema: &Schema{
			Type:     "object",
			Required: []string{"results"},
			Properties: map[string]*Schema{
				"results": {
					Type: "array",
					Items: &Schema{
						Type:     "object",
						Required: []string{"heading", "replacements"},
						Properties: map[string]*Schema{
							"heading": {Type: "string"},
							"replacements": {
								Type: "array",
								Items: &Schema{
									Type:     "object",
									Required: []string{"sentence_id", "new_sentence"},
									Properties: map[string]*Schema{
										"sentence_id":  {Type: "integer"},
										"new_sentence": {Type: "string"},
									},
									PropertyOrdering: []string{"sentence_id", "new_sentence"},
								},
							},
						},
						PropertyOrdering: []string{"heading", "replacements"},
					},
				},
			},
		},
	}
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ", ")
}

// GenerativeClient abstracts the Gemini API for testing.
type GenerativeClient interface {
	GenerateContent(ctx context.Context, model string, contents []*Content, config *GenerateContentConfig) (*GenerateContentResponse, error)
}

// Content represents a message in a Gemini conversation.
type Content struct {
	Parts []*Part
}

// Part represents a part of a message.
type Part struct {
	Text string
}

// GenerateContentConfig holds configuration for content generation.
type GenerateContentConfig struct {
	SystemInstruction *Content
	Temperature       *float32
	ResponseMIMEType  string
	ResponseSchema    *Schema
}

// Schema represents the structure for controlled JSON generation.
type Schema struct {
	Type             string             // object, array, string, integer, number, boolean
	Properties       map[string]*Schema // For object types
	Items            *Schema            // For array types
	Enum             []string           // For string enums
	Required         []string           // Required property names
	PropertyOrdering []string           // Order of properties in output
	Description      string             // Field description
}

// GenerateContentResponse holds the response from content generation.
type GenerateContentResponse struct {
	Text string
}

// MockGenerativeClient is a mock implementation of GenerativeClient for testing.
type MockGenerativeClient struct {
	GenerateContentFn func(ctx context.Context, model string, contents []*Content, config *GenerateContentConfig) (*GenerateContentResponse, error)
}

func (m *MockGenerativeClient) GenerateContent(ctx context.Context, model string, contents []*Content, config *GenerateContentConfig) (*GenerateContentResponse, error) {
	return m.GenerateContentFn(ctx, model, contents, config)
}

// APIError represents an error from the Gemini API with HTTP status code.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}
