package bubbletea

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/vportnov/scriptrate"
)

// styleFromColorPair converts a ColorPair to a lipgloss style.
// If renderer is nil, the default lipgloss renderer is used.
func styleFromColorPair(cp scriptrate.ColorPair, renderer *lipgloss.Renderer) lipgloss.Style {
	var style lipgloss.Style
	if renderer != nil {
		style = renderer.NewStyle()
	} else {
		style = lipgloss.NewStyle()
	}
	if cp.Foreground != "" {
		style = style.Foreground(lipgloss.Color(cp.Foreground))
	}
	if cp.Background != "" {
		style = style.Background(lipgloss.Color(cp.Background))
	}
	return style
}

// sceneListConfig holds rendering parameters for the scene list panel.
type sceneListConfig struct {
	session  *scriptrate.Session
	selected int // scene list position
	styles   scriptrate.Styles
	renderer *lipgloss.Renderer
	width    int
}

// renderSceneList renders one line per scene: cursor, heading, fragment
// count, and a marker for scenes edited since their last recalculation.
func renderSceneList(cfg sceneListConfig) string {
	headingStyle := styleFromColorPair(cfg.styles.SceneHeading, cfg.renderer)
	changedStyle := styleFromColorPair(cfg.styles.SceneChanged, cfg.renderer)

	changed := make(map[int]bool)
	for _, n := range cfg.session.ChangedScenes() {
		changed[n] = true
	}
	recalculated := make(map[int]bool)
	for _, n := range cfg.session.RecalculatedScenes() {
		recalculated[n] = true
	}

	var sb strings.Builder
	for i, scene := range cfg.session.Scenes() {
		cursor := "  "
		if i == cfg.selected {
			cursor = "> "
		}

		marker := " "
		if changed[scene.Number] {
			marker = "*"
		} else if recalculated[scene.Number] {
			marker = "="
		}

		count := len(cfg.session.FragmentsForScene(scene.Number))
		line := fmt.Sprintf("%s%s %s (%d)", cursor, marker, truncate(scene.Heading, cfg.width-10), count)

		if changed[scene.Number] {
			sb.WriteString(changedStyle.Render(line))
		} else {
			sb.WriteString(headingStyle.Render(line))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// fragmentPanelConfig holds rendering parameters for the fragment panel.
type fragmentPanelConfig struct {
	session  *scriptrate.Session
	scene    scriptrate.Scene
	selected int // fragment list position within the scene
	styles   scriptrate.Styles
	renderer *lipgloss.Renderer
	width    int
}

// renderFragmentPanel renders the scene text followed by its fragments with
// severity, labels, and evidence.
func renderFragmentPanel(cfg fragmentPanelConfig) string {
	headingStyle := styleFromColorPair(cfg.styles.SceneHeading, cfg.renderer)
	manualStyle := styleFromColorPair(cfg.styles.ManualMarker, cfg.renderer)

	var sb strings.Builder
	sb.WriteString(headingStyle.Render(cfg.scene.Heading))
	if cfg.scene.Page != nil {
		sb.WriteString(fmt.Sprintf("  (p. %d)", *cfg.scene.Page))
	}
	sb.WriteString("\n\n")
	sb.WriteString(cfg.scene.Text())
	sb.WriteString("\n")

	fragments := cfg.session.FragmentsForScene(cfg.scene.Number)
	if len(fragments) == 0 {
		sb.WriteString("\nNo findings in this scene.\n")
	}

	for i, f := range fragments {
		sevStyle := styleFromColorPair(cfg.styles.SeverityStyle(f.Severity), cfg.renderer)

		cursor := "  "
		if i == cfg.selected {
			cursor = "> "
		}

		sb.WriteString("\n")
		header := fmt.Sprintf("%s[%s] %s", cursor, f.Severity, strings.Join(f.Labels, ", "))
		if f.Manual {
			sb.WriteString(sevStyle.Render(header))
			sb.WriteString(manualStyle.Render(" (manual)"))
		} else {
			sb.WriteString(sevStyle.Render(header))
		}
		sb.WriteString("\n")
		sb.WriteString("  " + truncate(f.Text, cfg.width-4))
		sb.WriteString("\n")

		for label, span := range f.Evidence {
			if span.Reason == "" {
				continue
			}
			sb.WriteString(fmt.Sprintf("  %s: %s\n", label, truncate(span.Reason, cfg.width-6)))
		}
	}

	if analysis := cfg.session.Analysis(); analysis != nil {
		dismissedStyle := styleFromColorPair(cfg.styles.DismissedText, cfg.renderer)
		for _, f := range analysis.ProblemFragments {
			if f.SceneIndex != cfg.scene.Number || !cfg.session.Dismissed(f.ID) {
				continue
			}
			sb.WriteString("\n")
			sb.WriteString(dismissedStyle.Render("  dismissed: " + truncate(f.Text, cfg.width-14)))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// renderDiffSegments renders old and new sentence versions with changed
// words highlighted, one version per line.
func renderDiffSegments(oldSegs, newSegs []scriptrate.Segment, styles scriptrate.Styles, renderer *lipgloss.Renderer) string {
	oldStyle := styleFromColorPair(styles.DiffOld, renderer)
	newStyle := styleFromColorPair(styles.DiffNew, renderer)

	var sb strings.Builder
	sb.WriteString("- ")
	for _, seg := range oldSegs {
		if seg.Changed {
			sb.WriteString(oldStyle.Render(seg.Text))
		} else {
			sb.WriteString(seg.Text)
		}
	}
	sb.WriteString("\n+ ")
	for _, seg := range newSegs {
		if seg.Changed {
			sb.WriteString(newStyle.Render(seg.Text))
		} else {
			sb.WriteString(seg.Text)
		}
	}
	sb.WriteString("\n")
	return sb.String()
}

// renderRatingBadge renders the final rating as a padded badge.
func renderRatingBadge(rating string, styles scriptrate.Styles, renderer *lipgloss.Renderer) string {
	if rating == "" {
		rating = scriptrate.OrderedRatings[0]
	}
	return styleFromColorPair(styles.RatingBadge, renderer).Render(" " + rating + " ")
}

func truncate(s string, max int) string {
	if max < 1 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
