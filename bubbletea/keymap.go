package bubbletea

import "github.com/charmbracelet/bubbles/key"

// AnalyzeKeyMap defines the key bindings for the analysis progress screen.
type AnalyzeKeyMap struct {
	Quit key.Binding
}

// DefaultAnalyzeKeyMap returns the default key bindings for the progress screen.
func DefaultAnalyzeKeyMap() AnalyzeKeyMap {
	return AnalyzeKeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}
