package bubbletea

import "github.com/charmbracelet/bubbles/key"

// ReviewKeyMap defines the key bindings for the review screen.
type ReviewKeyMap struct {
	// Navigation
	Up           key.Binding
	Down         key.Binding
	NextScene    key.Binding
	PrevScene    key.Binding
	HalfPageUp   key.Binding
	HalfPageDown key.Binding
	GotoTop      key.Binding
	GotoBottom   key.Binding

	// Fragment actions
	Dismiss     key.Binding
	Revert      key.Binding
	AddFragment key.Binding
	Rewrite     key.Binding

	// Scene actions
	EditScene   key.Binding
	RecalcScene key.Binding

	// Document actions
	RecalcRating key.Binding
	Inspect      key.Binding
	Export       key.Binding

	// Mode controls
	Confirm key.Binding
	Abort   key.Binding
	Accept  key.Binding

	// Add-fragment mode
	CycleSeverity key.Binding
	CycleLabel    key.Binding

	// General
	Quit key.Binding
}

// DefaultReviewKeyMap returns the default key bindings for the review screen.
func DefaultReviewKeyMap() ReviewKeyMap {
	return ReviewKeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "previous finding"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "next finding"),
		),
		NextScene: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "next scene"),
		),
		PrevScene: key.NewBinding(
			key.WithKeys("N"),
			key.WithHelp("N", "previous scene"),
		),
		HalfPageUp: key.NewBinding(
			key.WithKeys("ctrl+u"),
			key.WithHelp("ctrl+u", "half page up"),
		),
		HalfPageDown: key.NewBinding(
			key.WithKeys("ctrl+d"),
			key.WithHelp("ctrl+d", "half page down"),
		),
		GotoTop: key.NewBinding(
			key.WithKeys("g"),
			key.WithHelp("g", "go to top"),
		),
		GotoBottom: key.NewBinding(
			key.WithKeys("G"),
			key.WithHelp("G", "go to bottom"),
		),
		Dismiss: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "dismiss finding"),
		),
		Revert: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "revert finding"),
		),
		AddFragment: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "add finding"),
		),
		Rewrite: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "suggest rewrite"),
		),
		EditScene: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "edit scene"),
		),
		RecalcScene: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "recalculate scene"),
		),
		RecalcRating: key.NewBinding(
			key.WithKeys("C"),
			key.WithHelp("C", "recalculate rating"),
		),
		Inspect: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "inspect report"),
		),
		Export: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "export report"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "apply and close"),
		),
		Abort: key.NewBinding(
			key.WithKeys("ctrl+x"),
			key.WithHelp("ctrl+x", "discard and close"),
		),
		Accept: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "accept rewrite"),
		),
		CycleSeverity: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "cycle severity"),
		),
		CycleLabel: key.NewBinding(
			key.WithKeys("ctrl+l"),
			key.WithHelp("ctrl+l", "cycle label"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}
