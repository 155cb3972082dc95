package bubbletea

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/vportnov/scriptrate"
)

// Reporter fetches the exportable report for a document.
type Reporter interface {
	Report(ctx context.Context, docID string) ([]byte, error)
}

// Mode identifies the current interaction mode of the review screen.
type Mode int

// Mode constants.
const (
	ModeBrowse Mode = iota
	ModeEditScene
	ModeAddFragment
	ModeRewrite
	ModeInspect
)

const sceneListWidth = 36

// ReviewModel is the Bubble Tea model for reviewing analysis findings. It
// presents a scene list alongside the findings of the selected scene and
// routes edits through the session's override layers.
type ReviewModel struct {
	session *scriptrate.Session
	service scriptrate.AnalysisService

	// Optional collaborators
	store       scriptrate.SessionStore
	rewriter    scriptrate.SceneRewriter
	reporter    Reporter
	differ      scriptrate.WordDiffer
	highlighter scriptrate.Highlighter
	reportPath  string

	// UI components
	sceneViewport viewport.Model
	fragViewport  viewport.Model
	editor        textarea.Model

	// State
	mode             Mode
	selectedScene    int
	selectedFragment int
	addSeverity      scriptrate.Severity
	addLabel         int
	rewrite          *rewriteMsg
	rewritePreview   string
	status           string
	busy             bool

	keymap        ReviewKeyMap
	styles        scriptrate.Styles
	renderer      *lipgloss.Renderer
	width, height int
	ready         bool
}

// ReviewModelOption configures a ReviewModel.
type ReviewModelOption func(*ReviewModel)

// WithReviewTheme sets the theme for the review screen.
func WithReviewTheme(t scriptrate.Theme) ReviewModelOption {
	return func(m *ReviewModel) {
		m.styles = t.Styles()
	}
}

// WithReviewRenderer sets a custom lipgloss renderer for the model.
func WithReviewRenderer(r *lipgloss.Renderer) ReviewModelOption {
	return func(m *ReviewModel) {
		m.renderer = r
	}
}

// WithSessionStore persists session state after every change.
func WithSessionStore(store scriptrate.SessionStore) ReviewModelOption {
	return func(m *ReviewModel) {
		m.store = store
	}
}

// WithRewriter enables AI rewrite suggestions for findings.
func WithRewriter(r scriptrate.SceneRewriter) ReviewModelOption {
	return func(m *ReviewModel) {
		m.rewriter = r
	}
}

// WithReporter enables report export to the given path.
func WithReporter(r Reporter, path string) ReviewModelOption {
	return func(m *ReviewModel) {
		m.reporter = r
		m.reportPath = path
	}
}

// WithWordDiffer sets the differ used for rewrite previews.
func WithWordDiffer(d scriptrate.WordDiffer) ReviewModelOption {
	return func(m *ReviewModel) {
		m.differ = d
	}
}

// WithReviewHighlighter sets the highlighter for the report inspector.
func WithReviewHighlighter(h scriptrate.Highlighter) ReviewModelOption {
	return func(m *ReviewModel) {
		m.highlighter = h
	}
}

// NewReviewModel creates a ReviewModel over an established session.
func NewReviewModel(session *scriptrate.Session, service scriptrate.AnalysisService, opts ...ReviewModelOption) ReviewModel {
	m := ReviewModel{
		session:     session,
		service:     service,
		addSeverity: scriptrate.SeverityMild,
		keymap:      DefaultReviewKeyMap(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Init implements tea.Model.
func (m ReviewModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ReviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch m.mode {
		case ModeBrowse:
			return m.handleBrowseKeys(msg)
		case ModeEditScene:
			return m.handleEditSceneKeys(msg)
		case ModeAddFragment:
			return m.handleAddFragmentKeys(msg)
		case ModeRewrite:
			return m.handleRewriteKeys(msg)
		case ModeInspect:
			return m.handleInspectKeys(msg)
		}

	case tea.WindowSizeMsg:
		return m.handleWindowSize(msg)

	case analysisMsg:
		m.busy = false
		m.session.ReplaceAnalysis(msg.analysis)
		if msg.scene != 0 {
			m.session.MarkSceneRecalculated(msg.scene)
			m.status = fmt.Sprintf("scene %d recalculated", msg.scene)
		} else {
			m.session.ClearChangeTracking()
			m.status = "rating recalculated: " + msg.analysis.FinalRating
		}
		m.persistSession()
		m.refreshContent()
		return m, nil

	case rewriteMsg:
		m.busy = false
		m.rewrite = &msg
		m.rewritePreview = m.renderRewritePreview(msg)
		m.mode = ModeRewrite
		return m, nil

	case reportMsg:
		m.busy = false
		if m.reportPath == "" {
			m.status = "report ready"
			return m, nil
		}
		if err := os.WriteFile(m.reportPath, msg.data, 0o644); err != nil {
			m.status = "export failed: " + err.Error()
		} else {
			m.status = "report saved to " + m.reportPath
		}
		return m, nil

	case syncMsg:
		if msg.dropManual != "" {
			m.session.Revert(msg.dropManual)
		}
		m.session.ReplaceAnalysis(msg.analysis)
		m.status = msg.note
		m.persistSession()
		m.clampFragmentSelection()
		m.refreshContent()
		return m, nil

	case syncErrMsg:
		m.status = "kept locally; sync failed: " + msg.err.Error()
		return m, nil

	case errMsg:
		m.busy = false
		m.status = msg.err.Error()
		return m, nil
	}

	var cmd tea.Cmd
	m.fragViewport, cmd = m.fragViewport.Update(msg)
	return m, cmd
}

func (m ReviewModel) handleBrowseKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keymap.Down):
		if m.selectedFragment < len(m.currentFragments())-1 {
			m.selectedFragment++
			m.refreshContent()
		}
		return m, nil

	case key.Matches(msg, m.keymap.Up):
		if m.selectedFragment > 0 {
			m.selectedFragment--
			m.refreshContent()
		}
		return m, nil

	case key.Matches(msg, m.keymap.NextScene):
		if m.selectedScene < len(m.session.Scenes())-1 {
			m.selectedScene++
			m.selectedFragment = 0
			m.refreshContent()
		}
		return m, nil

	case key.Matches(msg, m.keymap.PrevScene):
		if m.selectedScene > 0 {
			m.selectedScene--
			m.selectedFragment = 0
			m.refreshContent()
		}
		return m, nil

	case key.Matches(msg, m.keymap.HalfPageUp):
		m.fragViewport.HalfPageUp()
		return m, nil

	case key.Matches(msg, m.keymap.HalfPageDown):
		m.fragViewport.HalfPageDown()
		return m, nil

	case key.Matches(msg, m.keymap.GotoTop):
		m.fragViewport.GotoTop()
		return m, nil

	case key.Matches(msg, m.keymap.GotoBottom):
		m.fragViewport.GotoBottom()
		return m, nil

	case key.Matches(msg, m.keymap.Dismiss):
		if f, ok := m.currentFragment(); ok {
			m.session.Dismiss(f.ID)
			m.persistSession()
			m.clampFragmentSelection()
			m.refreshContent()
			m.status = "finding dismissed"
		}
		return m, nil

	case key.Matches(msg, m.keymap.Revert):
		f, ok := m.currentFragment()
		if !ok {
			return m, nil
		}
		m.session.Revert(f.ID)
		m.persistSession()
		m.clampFragmentSelection()
		m.refreshContent()
		m.status = "finding reverted"
		if f.SentenceIndex == nil {
			return m, nil
		}
		return m, cancelViolationCmd(m.service, m.session.DocID(), f.SceneIndex, *f.SentenceIndex)

	case key.Matches(msg, m.keymap.CycleSeverity):
		return m.cycleFragmentSeverity()

	case key.Matches(msg, m.keymap.EditScene):
		return m.enterEditSceneMode()

	case key.Matches(msg, m.keymap.AddFragment):
		return m.enterAddFragmentMode()

	case key.Matches(msg, m.keymap.Rewrite):
		return m.requestRewrite()

	case key.Matches(msg, m.keymap.RecalcScene):
		return m.requestSceneRecalc()

	case key.Matches(msg, m.keymap.RecalcRating):
		if m.busy {
			return m, nil
		}
		m.busy = true
		m.status = "recalculating rating..."
		return m, recalcRatingCmd(m.service, m.session.DocID())

	case key.Matches(msg, m.keymap.Inspect):
		return m.enterInspectMode()

	case key.Matches(msg, m.keymap.Export):
		return m.requestExport()
	}

	var cmd tea.Cmd
	m.fragViewport, cmd = m.fragViewport.Update(msg)
	return m, cmd
}

func (m ReviewModel) handleEditSceneKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Confirm):
		scene := m.currentScene()
		m.session.ApplySceneEdit(scene.Number, m.editor.Value())
		m.persistSession()
		m.mode = ModeBrowse
		m.clampFragmentSelection()
		m.refreshContent()
		m.status = "scene updated"
		return m, nil

	case key.Matches(msg, m.keymap.Abort):
		m.mode = ModeBrowse
		m.status = "edit discarded"
		return m, nil
	}

	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	return m, cmd
}

func (m ReviewModel) handleAddFragmentKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.CycleSeverity):
		m.addSeverity = scriptrate.SeverityFromRank(m.addSeverity.Rank()%3 + 1)
		return m, nil

	case key.Matches(msg, m.keymap.CycleLabel):
		m.addLabel = (m.addLabel + 1) % len(scriptrate.Labels)
		return m, nil

	case key.Matches(msg, m.keymap.Confirm):
		text := strings.TrimSpace(m.editor.Value())
		m.mode = ModeBrowse
		if text == "" {
			m.status = "add canceled"
			return m, nil
		}
		scene := m.currentScene()
		label := scriptrate.Labels[m.addLabel]
		f := scriptrate.NewManualFragment(scene, text, []string{label}, m.addSeverity, m.session.EffectiveFragments())
		m.session.AddManual(f)
		m.persistSession()
		m.refreshContent()
		m.status = "finding added"
		idx, ok := sentenceIndexFor(scene, text)
		if !ok {
			return m, nil
		}
		change := scriptrate.ViolationChange{
			SceneIndex:    scene.Number,
			SentenceIndex: idx,
			Text:          text,
			Severity:      m.addSeverity,
			Labels:        []scriptrate.LabelSpec{{Label: label, LocalSeverity: m.addSeverity}},
		}
		return m, addViolationCmd(m.service, m.session.DocID(), change, f.ID)

	case key.Matches(msg, m.keymap.Abort):
		m.mode = ModeBrowse
		m.status = "add canceled"
		return m, nil
	}

	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	return m, cmd
}

func (m ReviewModel) handleRewriteKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Accept):
		var cmd tea.Cmd
		if m.rewrite != nil {
			f, ok := m.session.Fragment(m.rewrite.fragmentID)
			m.session.ApplyFragmentEdit(m.rewrite.fragmentID, m.rewrite.proposed)
			m.persistSession()
			m.status = "rewrite applied"
			if ok && f.SentenceIndex != nil {
				cmd = editSentenceCmd(m.service, m.session.DocID(), f.SceneIndex, *f.SentenceIndex, m.rewrite.proposed, "rewrite applied")
			}
		}
		m.rewrite = nil
		m.mode = ModeBrowse
		m.refreshContent()
		return m, cmd

	case key.Matches(msg, m.keymap.Confirm), key.Matches(msg, m.keymap.Abort):
		m.rewrite = nil
		m.mode = ModeBrowse
		m.status = "rewrite discarded"
		return m, nil

	case key.Matches(msg, m.keymap.Quit):
		return m, tea.Quit
	}
	return m, nil
}

func (m ReviewModel) handleInspectKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Confirm):
		m.mode = ModeBrowse
		m.refreshContent()
		return m, nil

	case key.Matches(msg, m.keymap.Quit):
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.fragViewport, cmd = m.fragViewport.Update(msg)
	return m, cmd
}

func (m ReviewModel) enterEditSceneMode() (tea.Model, tea.Cmd) {
	scene := m.currentScene()

	ta := textarea.New()
	ta.ShowLineNumbers = false
	ta.SetWidth(m.width - 4)
	ta.SetHeight(m.height - 6)
	ta.SetValue(scene.Text())
	ta.Focus()

	m.editor = ta
	m.mode = ModeEditScene
	return m, textarea.Blink
}

func (m ReviewModel) enterAddFragmentMode() (tea.Model, tea.Cmd) {
	ta := textarea.New()
	ta.Placeholder = "Quote the offending text..."
	ta.ShowLineNumbers = false
	ta.SetWidth(m.width - 4)
	ta.SetHeight(3)
	ta.Focus()

	m.editor = ta
	m.addSeverity = scriptrate.SeverityMild
	m.mode = ModeAddFragment
	return m, textarea.Blink
}

func (m ReviewModel) enterInspectMode() (tea.Model, tea.Cmd) {
	data, err := json.MarshalIndent(m.session.Analysis(), "", "  ")
	if err != nil {
		m.status = "inspect failed: " + err.Error()
		return m, nil
	}
	content := string(data)
	if m.highlighter != nil {
		if highlighted, err := m.highlighter.Highlight(content); err == nil {
			content = highlighted
		}
	}
	m.fragViewport.SetContent(content)
	m.fragViewport.GotoTop()
	m.mode = ModeInspect
	return m, nil
}

func (m ReviewModel) requestRewrite() (tea.Model, tea.Cmd) {
	if m.rewriter == nil {
		m.status = "rewrites unavailable"
		return m, nil
	}
	if m.busy {
		return m, nil
	}
	f, ok := m.currentFragment()
	if !ok {
		return m, nil
	}
	req, frag, err := m.session.RewriteRequestFor(f.ID, m.session.Analysis().FinalRating)
	if err != nil {
		m.status = "finding cannot be rewritten: no sentence anchor"
		return m, nil
	}
	m.busy = true
	m.status = "requesting rewrite..."
	return m, rewriteCmd(m.rewriter, req, frag, f.Text)
}

// cycleFragmentSeverity re-tags the selected finding with the next severity,
// locally first, then confirms the change with the backend when the finding
// carries a sentence anchor.
func (m ReviewModel) cycleFragmentSeverity() (tea.Model, tea.Cmd) {
	f, ok := m.currentFragment()
	if !ok {
		return m, nil
	}
	base := f.Severity
	if base.Rank() == 0 {
		base = f.SeverityLocal
	}
	next := scriptrate.SeverityFromRank(base.Rank()%3 + 1)
	m.session.SetMetaOverride(f.ID, scriptrate.MetaOverride{Severity: &next})
	m.persistSession()
	m.refreshContent()
	m.status = "severity set to " + string(next)
	if f.SentenceIndex == nil {
		return m, nil
	}
	specs := make([]scriptrate.LabelSpec, len(f.Labels))
	for i, l := range f.Labels {
		specs[i] = scriptrate.LabelSpec{Label: l, LocalSeverity: next}
	}
	change := scriptrate.ViolationChange{
		SceneIndex:    f.SceneIndex,
		SentenceIndex: *f.SentenceIndex,
		Text:          f.Text,
		Severity:      next,
		Labels:        specs,
	}
	return m, updateViolationCmd(m.service, m.session.DocID(), change)
}

// sentenceIndexFor locates the sentence containing the quoted text, for
// addressing a manual finding on the backend.
func sentenceIndexFor(scene scriptrate.Scene, text string) (int, bool) {
	for i, s := range scene.Sentences {
		if strings.Contains(s.Text, text) {
			return i, true
		}
	}
	return 0, false
}

func (m ReviewModel) requestSceneRecalc() (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	scene := m.currentScene()
	payload, ok := m.session.SceneRecalcPayload(scene.Number)
	if !ok {
		return m, nil
	}
	m.busy = true
	m.status = fmt.Sprintf("recalculating scene %d...", scene.Number)
	return m, recalcSceneCmd(m.service, m.session.DocID(), payload)
}

func (m ReviewModel) requestExport() (tea.Model, tea.Cmd) {
	if err := m.session.ExportAllowed(); err != nil {
		m.status = err.Error()
		return m, nil
	}
	if m.reporter == nil {
		m.status = "export unavailable"
		return m, nil
	}
	if m.busy {
		return m, nil
	}
	m.busy = true
	m.status = "exporting report..."
	return m, exportReportCmd(m.reporter, m.session.DocID())
}

func (m ReviewModel) handleWindowSize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	// Reserve: header (1), status bar (1)
	bodyHeight := msg.Height - 2
	if bodyHeight < 2 {
		bodyHeight = 2
	}
	fragWidth := msg.Width - sceneListWidth
	if fragWidth < 20 {
		fragWidth = 20
	}

	if !m.ready {
		m.sceneViewport = viewport.New(sceneListWidth, bodyHeight)
		m.fragViewport = viewport.New(fragWidth, bodyHeight)
		m.ready = true
		m.refreshContent()
	} else {
		m.sceneViewport.Width = sceneListWidth
		m.sceneViewport.Height = bodyHeight
		m.fragViewport.Width = fragWidth
		m.fragViewport.Height = bodyHeight
		m.refreshContent()
	}
	return m, nil
}

// currentScene returns the selected scene. The scene list is never empty
// for an established session.
func (m ReviewModel) currentScene() scriptrate.Scene {
	scenes := m.session.Scenes()
	if len(scenes) == 0 {
		return scriptrate.Scene{}
	}
	if m.selectedScene >= len(scenes) {
		return scenes[len(scenes)-1]
	}
	return scenes[m.selectedScene]
}

func (m ReviewModel) currentFragments() []scriptrate.Fragment {
	return m.session.FragmentsForScene(m.currentScene().Number)
}

func (m ReviewModel) currentFragment() (scriptrate.Fragment, bool) {
	fragments := m.currentFragments()
	if len(fragments) == 0 || m.selectedFragment >= len(fragments) {
		return scriptrate.Fragment{}, false
	}
	return fragments[m.selectedFragment], true
}

func (m *ReviewModel) clampFragmentSelection() {
	if n := len(m.currentFragments()); m.selectedFragment >= n && n > 0 {
		m.selectedFragment = n - 1
	} else if n == 0 {
		m.selectedFragment = 0
	}
}

func (m *ReviewModel) refreshContent() {
	if !m.ready {
		return
	}
	m.sceneViewport.SetContent(renderSceneList(sceneListConfig{
		session:  m.session,
		selected: m.selectedScene,
		styles:   m.styles,
		renderer: m.renderer,
		width:    m.sceneViewport.Width,
	}))
	m.fragViewport.SetContent(renderFragmentPanel(fragmentPanelConfig{
		session:  m.session,
		scene:    m.currentScene(),
		selected: m.selectedFragment,
		styles:   m.styles,
		renderer: m.renderer,
		width:    m.fragViewport.Width,
	}))
}

func (m *ReviewModel) persistSession() {
	if m.store == nil {
		return
	}
	if err := m.store.Save(m.session.DocID(), m.session.Snapshot()); err != nil {
		m.status = "save failed: " + err.Error()
	}
}

func (m ReviewModel) renderRewritePreview(msg rewriteMsg) string {
	if m.differ == nil {
		return "- " + msg.original + "\n+ " + msg.proposed + "\n"
	}
	oldSegs, newSegs := m.differ.Diff(msg.original, msg.proposed)
	return renderDiffSegments(oldSegs, newSegs, m.styles, m.renderer)
}

// View implements tea.Model.
func (m ReviewModel) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.headerView()

	var body string
	switch m.mode {
	case ModeEditScene:
		body = fmt.Sprintf("Editing %s\n\n%s\n\n[esc] apply  [ctrl+x] discard", m.currentScene().Heading, m.editor.View())
	case ModeAddFragment:
		body = fmt.Sprintf("New finding in %s\n\n%s\n\nSeverity: %s  Label: %s\n[ctrl+s] severity  [ctrl+l] label  [esc] save  [ctrl+x] cancel",
			m.currentScene().Heading, m.editor.View(), m.addSeverity, scriptrate.Labels[m.addLabel])
	case ModeRewrite:
		body = "Suggested rewrite:\n\n" + m.rewritePreview + "\n[y] accept  [esc] discard"
	case ModeInspect:
		body = m.fragViewport.View()
	default:
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.sceneViewport.View(), m.fragViewport.View())
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.statusBarView())
}

func (m ReviewModel) headerView() string {
	analysis := m.session.Analysis()
	rating := ""
	if analysis != nil {
		rating = analysis.FinalRating
	}
	badge := renderRatingBadge(rating, m.styles, m.renderer)
	return fmt.Sprintf("%s  %s  %d scenes", badge, m.session.DocID(), len(m.session.Scenes()))
}

func (m ReviewModel) statusBarView() string {
	style := styleFromColorPair(m.styles.StatusBar, m.renderer)
	state := "export ready"
	var blocked *scriptrate.ExportBlockedError
	if errors.As(m.session.ExportAllowed(), &blocked) {
		style = styleFromColorPair(m.styles.StatusBlocked, m.renderer)
		state = fmt.Sprintf("export blocked: %d pending", len(blocked.Pending))
	}

	text := m.status
	if text == "" {
		text = fmt.Sprintf("scene %d/%d", m.selectedScene+1, len(m.session.Scenes()))
	}

	bar := fmt.Sprintf(" %s | %s ", text, state)
	if pad := m.width - lipgloss.Width(bar); pad > 0 {
		bar += strings.Repeat(" ", pad)
	}
	return style.Render(bar)
}
