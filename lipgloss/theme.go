// Package lipgloss provides theme implementations using the Lipgloss styling library.
package lipgloss

import (
	lipglosslib "github.com/charmbracelet/lipgloss"
	"github.com/vportnov/scriptrate"
)

// Compile-time interface verification.
var _ scriptrate.Theme = (*Theme)(nil)

// Theme implements scriptrate.Theme with Lipgloss-compatible colors.
type Theme struct {
	styles scriptrate.Styles
}

// Styles returns the color styles for this theme.
func (t *Theme) Styles() scriptrate.Styles {
	return t.styles
}

// DefaultTheme returns the default theme (dark background optimized).
func DefaultTheme() *Theme {
	return DarkTheme()
}

// DarkTheme returns a theme optimized for dark terminal backgrounds.
func DarkTheme() *Theme {
	return &Theme{
		styles: scriptrate.Styles{
			RatingBadge: scriptrate.ColorPair{
				Foreground: "#1e1e2e", // Dark text on bright background
				Background: "#f9e2af", // Yellow
			},
			SceneHeading: scriptrate.ColorPair{
				Foreground: "#89b4fa", // Blue
			},
			SceneChanged: scriptrate.ColorPair{
				Foreground: "#fab387", // Orange - edits pending recalculation
			},
			SeverityMild: scriptrate.ColorPair{
				Foreground: "#f9e2af", // Yellow
			},
			SeverityMed: scriptrate.ColorPair{
				Foreground: "#fab387", // Orange
			},
			SeverityHigh: scriptrate.ColorPair{
				Foreground: "#f38ba8", // Red
			},
			ManualMarker: scriptrate.ColorPair{
				Foreground: "#cba6f7", // Mauve - user-created findings
			},
			DismissedText: scriptrate.ColorPair{
				Foreground: "#6c7086", // Muted gray
			},
			DiffOld: scriptrate.ColorPair{
				Foreground: "#f38ba8", // Red
				Background: "#3f0001", // Very dark red
			},
			DiffNew: scriptrate.ColorPair{
				Foreground: "#a6e3a1", // Green
				Background: "#004000", // Very dark green
			},
			StatusBar: scriptrate.ColorPair{
				Foreground: "#a6adc8",
				Background: "#313244", // Dark surface
			},
			StatusBlocked: scriptrate.ColorPair{
				Foreground: "#1e1e2e",
				Background: "#f38ba8", // Red - export gate closed
			},
		},
	}
}

// LightTheme returns a theme optimized for light terminal backgrounds.
func LightTheme() *Theme {
	return &Theme{
		styles: scriptrate.Styles{
			RatingBadge: scriptrate.ColorPair{
				Foreground: "#ffffff",
				Background: "#df8e1d", // Yellow
			},
			SceneHeading: scriptrate.ColorPair{
				Foreground: "#1e66f5", // Blue
			},
			SceneChanged: scriptrate.ColorPair{
				Foreground: "#fe640b", // Orange
			},
			SeverityMild: scriptrate.ColorPair{
				Foreground: "#df8e1d", // Yellow
			},
			SeverityMed: scriptrate.ColorPair{
				Foreground: "#fe640b", // Orange
			},
			SeverityHigh: scriptrate.ColorPair{
				Foreground: "#d20f39", // Red
			},
			ManualMarker: scriptrate.ColorPair{
				Foreground: "#8839ef", // Mauve
			},
			DismissedText: scriptrate.ColorPair{
				Foreground: "#9ca0b0", // Muted gray
			},
			DiffOld: scriptrate.ColorPair{
				Foreground: "#d20f39",
				Background: "#f4d4d4", // Subtle red background
			},
			DiffNew: scriptrate.ColorPair{
				Foreground: "#40a02b",
				Background: "#d4f4d4", // Subtle green background
			},
			StatusBar: scriptrate.ColorPair{
				Foreground: "#6c6f85",
				Background: "#e6e9ef", // Light surface
			},
			StatusBlocked: scriptrate.ColorPair{
				Foreground: "#ffffff",
				Background: "#d20f39", // Red
			},
		},
	}
}

// Style converts a color pair into a renderable lipgloss style. Empty color
// strings leave the terminal default in place.
func Style(pair scriptrate.ColorPair) lipglosslib.Style {
	style := lipglosslib.NewStyle()
	if pair.Foreground != "" {
		style = style.Foreground(lipglosslib.Color(pair.Foreground))
	}
	if pair.Background != "" {
		style = style.Background(lipglosslib.Color(pair.Background))
	}
	return style
}
