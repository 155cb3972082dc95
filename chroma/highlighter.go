// Package chroma renders inspector payloads as syntax-highlighted terminal
// text using the chroma library.
package chroma

import (
	"fmt"
	"strings"

	chromalib "github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/vportnov/scriptrate"
)

// Compile-time interface verification.
var _ scriptrate.Highlighter = (*Highlighter)(nil)

// DefaultStyle is the default chroma style for the inspector pane.
const DefaultStyle = "monokai"

// Highlighter colorizes JSON payloads for terminal display.
type Highlighter struct {
	lexer     chromalib.Lexer
	formatter chromalib.Formatter
	style     *chromalib.Style
}

// NewHighlighter creates a JSON highlighter with the named chroma style.
// An unknown style name falls back to chroma's default.
func NewHighlighter(styleName string) (*Highlighter, error) {
	lexer := lexers.Get("json")
	if lexer == nil {
		return nil, fmt.Errorf("chroma: json lexer unavailable")
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		return nil, fmt.Errorf("chroma: terminal256 formatter unavailable")
	}
	style := styles.Get(styleName)
	if style == nil {
		style = styles.Fallback
	}
	return &Highlighter{
		lexer:     chromalib.Coalesce(lexer),
		formatter: formatter,
		style:     style,
	}, nil
}

// Highlight renders the source with terminal escape sequences. Empty source
// yields an empty string.
func (h *Highlighter) Highlight(source string) (string, error) {
	if source == "" {
		return "", nil
	}
	iterator, err := h.lexer.Tokenise(nil, source)
	if err != nil {
		return "", fmt.Errorf("chroma: tokenise: %w", err)
	}
	var b strings.Builder
	if err := h.formatter.Format(&b, h.style, iterator); err != nil {
		return "", fmt.Errorf("chroma: format: %w", err)
	}
	return b.String(), nil
}
