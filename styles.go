package scriptrate

// ColorPair represents a foreground and background color combination.
// Colors should be hex strings in "#RRGGBB" format (e.g., "#ff0000" for red).
// Empty strings are valid and indicate no color override (use terminal default).
type ColorPair struct {
	Foreground string
	Background string
}

// Styles contains color pairs for all visual elements of the review UI.
type Styles struct {
	RatingBadge   ColorPair // Style for the age rating badge
	SceneHeading  ColorPair // Style for scene headings in the list
	SceneChanged  ColorPair // Style for scenes edited since their last recalculation
	SeverityMild  ColorPair // Style for mild findings
	SeverityMed   ColorPair // Style for moderate findings
	SeverityHigh  ColorPair // Style for severe findings
	ManualMarker  ColorPair // Style for user-created fragments
	DismissedText ColorPair // Style for dismissed fragment text
	DiffOld       ColorPair // Style for removed words in rewrite previews
	DiffNew       ColorPair // Style for inserted words in rewrite previews
	StatusBar     ColorPair // Style for the bottom status bar
	StatusBlocked ColorPair // Style for the status bar when export is blocked
}

// Theme provides styles for rendering the review UI.
// Different implementations can provide light/dark variants.
type Theme interface {
	Styles() Styles
}

// SeverityStyle picks the style matching a severity level.
func (s Styles) SeverityStyle(sev Severity) ColorPair {
	switch sev {
	case SeveritySevere:
		return s.SeverityHigh
	case SeverityModerate:
		return s.SeverityMed
	case SeverityMild:
		return s.SeverityMild
	}
	return ColorPair{}
}
