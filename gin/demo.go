// Package gin serves a self-contained demo backend implementing the rating
// API, so the client works without a deployed analysis service. Findings
// come from a keyword detector instead of a model; everything else follows
// the real wire contract.
package gin

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	ginlib "github.com/gin-gonic/gin"

	"github.com/vportnov/scriptrate"
)

// keywordLabels drives the synthetic detector: any sentence containing the
// keyword is flagged with the label. Severity comes from the label's weight.
var keywordLabels = map[string]string{
	"blood":     "VIOLENCE_GRAPHIC",
	"corpse":    "MEDICAL_GORE_DETAILS",
	"kill":      "MURDER_HOMICIDE",
	"murder":    "MURDER_HOMICIDE",
	"fight":     "VIOLENCE_NON_GRAPHIC",
	"punch":     "VIOLENCE_NON_GRAPHIC",
	"gun":       "WEAPONS_USAGE",
	"knife":     "WEAPONS_MENTION",
	"drunk":     "ALCOHOL_USE",
	"whiskey":   "ALCOHOL_USE",
	"cigarette": "TOBACCO_USE",
	"heroin":    "DRUGS_USE_DEPICTION",
	"casino":    "GAMBLING",
	"naked":     "NUDITY_NONSEXUAL",
	"scream":    "HORROR_FEAR",
	"rob":       "CRIMINAL_ACTIVITY",
	"argue":     "MILD_CONFLICT",
}

type document struct {
	scenes    []scriptrate.Scene
	fragments []scriptrate.Fragment
	stages    map[string]*scriptrate.Analysis
}

// Server is the in-process demo backend.
type Server struct {
	engine   *ginlib.Engine
	logger   *log.Logger
	rewriter scriptrate.SceneRewriter

	mu   sync.Mutex
	docs map[string]*document
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *log.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithRewriter wires a real rewriter into the AI replace endpoint. Without
// one the endpoint answers with a noop result.
func WithRewriter(r scriptrate.SceneRewriter) ServerOption {
	return func(s *Server) { s.rewriter = r }
}

// NewServer creates a demo backend with no documents seeded.
func NewServer(opts ...ServerOption) *Server {
	ginlib.SetMode(ginlib.ReleaseMode)
	s := &Server{
		engine: ginlib.New(),
		logger: log.New(io.Discard),
		docs:   map[string]*document{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine.Use(ginlib.Recovery())
	s.routes()
	return s
}

// Handler exposes the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// SeedDocument registers a document's scenes. Sentences without ids are
// numbered sequentially across the document.
func (s *Server) SeedDocument(docID string, scenes []scriptrate.Scene) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nextID := 1
	seeded := make([]scriptrate.Scene, len(scenes))
	for i, scene := range scenes {
		if len(scene.Sentences) == 0 {
			for _, text := range scriptrate.SplitSentences(scene.Content) {
				scene.Sentences = append(scene.Sentences, scriptrate.Sentence{Text: text})
			}
		}
		sentences := make([]scriptrate.Sentence, len(scene.Sentences))
		copy(sentences, scene.Sentences)
		for j := range sentences {
			if sentences[j].ID == 0 {
				sentences[j].ID = nextID
			}
			nextID++
		}
		scene.Sentences = sentences
		seeded[i] = scene
	}
	s.docs[docID] = &document{scenes: seeded, stages: map[string]*scriptrate.Analysis{}}
}

func (s *Server) routes() {
	api := s.engine.Group("/api")
	api.GET("/health", func(c *ginlib.Context) {
		c.JSON(http.StatusOK, ginlib.H{"status": "ok"})
	})
	api.POST("/scenario/upload", s.handleUpload)
	api.GET("/scenario/:doc", s.handleScenario)
	api.GET("/analyze/run", s.handleAnalyzeRun)
	api.GET("/stage/:doc/:stage", s.handleStage)
	api.GET("/rating/recalc/:doc", s.handleRecalcRating)
	api.POST("/scene/recalc_one/:doc", s.handleRecalcScene)
	api.PATCH("/edit/violation/sentence/:doc", s.handleEditSentence)
	api.POST("/edit/violation/add/:doc", s.handleAddViolation)
	api.PUT("/edit/violation/update/:doc", s.handleUpdateViolation)
	api.POST("/edit/violation/cancel/:doc", s.handleCancelViolation)
	api.POST("/ai/replace/:doc", s.handleReplace)
	api.GET("/report/:doc", s.handleReport)
}

func (s *Server) doc(c *ginlib.Context, docID string) *document {
	doc, ok := s.docs[docID]
	if !ok {
		c.JSON(http.StatusNotFound, ginlib.H{"detail": fmt.Sprintf("document %s not found", docID)})
		return nil
	}
	return doc
}

func (s *Server) handleUpload(c *ginlib.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ginlib.H{"detail": "file field required"})
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, ginlib.H{"detail": "read upload: " + err.Error()})
		return
	}
	scenes := parseScreenplay(string(raw))
	if len(scenes) == 0 {
		c.JSON(http.StatusBadRequest, ginlib.H{"detail": "Parse error: no scenes found"})
		return
	}

	base := strings.TrimSuffix(filepath.Base(header.Filename), filepath.Ext(header.Filename))
	if base == "" || base == "." {
		base = "scenario"
	}
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		c.JSON(http.StatusInternalServerError, ginlib.H{"detail": "generate doc id: " + err.Error()})
		return
	}
	docID := fmt.Sprintf("%s_%x", base, suffix)

	s.SeedDocument(docID, scenes)

	s.mu.Lock()
	seeded := s.docs[docID].scenes
	s.mu.Unlock()
	c.JSON(http.StatusOK, ginlib.H{"doc_id": docID, "scenes": seeded})
}

// parseScreenplay splits plain text into scenes on INT./EXT. style heading
// lines. Text before the first heading becomes an unnamed opening scene.
func parseScreenplay(text string) []scriptrate.Scene {
	var scenes []scriptrate.Scene
	var current *scriptrate.Scene
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" {
			continue
		}
		if isSceneHeading(line) {
			scenes = append(scenes, scriptrate.Scene{Number: len(scenes) + 1, Heading: line})
			current = &scenes[len(scenes)-1]
			continue
		}
		if current == nil {
			scenes = append(scenes, scriptrate.Scene{Number: 1, Heading: "SCENE 1"})
			current = &scenes[0]
		}
		if current.Content != "" {
			current.Content += "\n"
		}
		current.Content += line
	}
	return scenes
}

func isSceneHeading(line string) bool {
	upper := strings.ToUpper(line)
	return strings.HasPrefix(upper, "INT.") || strings.HasPrefix(upper, "EXT.") || strings.HasPrefix(upper, "INT/EXT")
}

func (s *Server) handleScenario(c *ginlib.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.doc(c, c.Param("doc"))
	if doc == nil {
		return
	}
	c.JSON(http.StatusOK, ginlib.H{"scenes": doc.scenes})
}

// detect flags keyword hits in one sentence.
func detect(scene scriptrate.Scene, sentenceIndex int, text string) *scriptrate.Fragment {
	lower := strings.ToLower(text)
	var labels []string
	evidence := map[string]scriptrate.EvidenceSpan{}
	confidence := map[string]float64{}
	for keyword, label := range keywordLabels {
		if !strings.Contains(lower, keyword) {
			continue
		}
		if _, seen := evidence[label]; seen {
			continue
		}
		trigger := keyword
		sev := scriptrate.SeverityFromRank(scriptrate.SeverityWeight[label])
		labels = append(labels, label)
		evidence[label] = scriptrate.EvidenceSpan{Severity: sev, Trigger: &trigger}
		confidence[label] = 0.9
	}
	if len(labels) == 0 {
		return nil
	}
	idx := sentenceIndex
	f := scriptrate.Fragment{
		SceneIndex:    scene.Number,
		SceneHeading:  scene.Heading,
		Page:          scene.Page,
		SentenceIndex: &idx,
		Text:          text,
		Labels:        labels,
		Confidence:    confidence,
		Evidence:      evidence,
	}
	if idx >= 0 && idx < len(scene.Sentences) {
		id := scene.Sentences[idx].ID
		f.SentenceID = &id
	}
	f.SeverityLocal = scriptrate.DeriveSeverity(evidence)
	f.Severity = f.SeverityLocal
	return &f
}

func detectScene(scene scriptrate.Scene) []scriptrate.Fragment {
	var out []scriptrate.Fragment
	for j, sent := range scene.Sentences {
		if f := detect(scene, j, sent.Text); f != nil {
			out = append(out, *f)
		}
	}
	return out
}

// analysisFor rebuilds the canonical payload from the document's current
// fragment set. Callers hold the lock.
func (s *Server) analysisFor(doc *document) *scriptrate.Analysis {
	guide := scriptrate.RecomputeParentsGuide(doc.fragments, len(doc.scenes))
	fragments := make([]scriptrate.Fragment, len(doc.fragments))
	copy(fragments, doc.fragments)
	a := scriptrate.NormalizeAnalysis(&scriptrate.Analysis{
		FinalRating:      scriptrate.RatingFromGuide(guide),
		ScenesTotal:      len(doc.scenes),
		ParentsGuide:     guide,
		ProblemFragments: fragments,
	}, doc.scenes)
	doc.stages["final"] = a
	return a
}

func (s *Server) handleAnalyzeRun(c *ginlib.Context) {
	docID := c.Query("doc_id")
	s.mu.Lock()
	doc := s.doc(c, docID)
	s.mu.Unlock()
	if doc == nil {
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	send := func(ev any) bool {
		raw, err := json.Marshal(ev)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", raw); err != nil {
			return false
		}
		c.Writer.Flush()
		return true
	}

	send(ginlib.H{"event": "preflight", "warnings": []string{}})

	s.mu.Lock()
	doc.fragments = nil
	total := len(doc.scenes)
	for i, scene := range doc.scenes {
		doc.fragments = append(doc.fragments, detectScene(scene)...)
		frac := float64(i+1) / float64(max(total, 1))
		s.mu.Unlock()
		if !send(ginlib.H{"event": "progress", "stage": "stage1", "progress": frac, "raw": scene.Heading}) {
			return
		}
		s.mu.Lock()
	}
	stage1 := s.analysisFor(doc)
	doc.stages["1"] = stage1
	s.mu.Unlock()
	send(ginlib.H{"event": "partial_stage1", "output": stage1})

	send(ginlib.H{"event": "progress", "stage": "stage2", "progress": nil, "raw": "aggregating scenes"})
	time.Sleep(10 * time.Millisecond)

	s.mu.Lock()
	stage2 := s.analysisFor(doc)
	doc.stages["2"] = stage2
	s.mu.Unlock()
	send(ginlib.H{"event": "stage2_done", "output": stage2})

	send(ginlib.H{"event": "progress", "stage": "stage3", "progress": nil, "raw": "writing report"})
	s.mu.Lock()
	final := s.analysisFor(doc)
	s.mu.Unlock()
	send(ginlib.H{"event": "final", "output": final})
	s.logger.Info("demo analysis complete", "doc", docID, "rating", final.FinalRating)
}

func (s *Server) handleStage(c *ginlib.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.doc(c, c.Param("doc"))
	if doc == nil {
		return
	}
	a, ok := doc.stages[c.Param("stage")]
	if !ok {
		c.JSON(http.StatusNotFound, ginlib.H{"detail": "stage not found"})
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) handleRecalcRating(c *ginlib.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.doc(c, c.Param("doc"))
	if doc == nil {
		return
	}
	c.JSON(http.StatusOK, s.analysisFor(doc))
}

func (s *Server) handleRecalcScene(c *ginlib.Context) {
	var req scriptrate.SceneRecalc
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ginlib.H{"detail": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.doc(c, c.Param("doc"))
	if doc == nil {
		return
	}
	for i := range doc.scenes {
		if doc.scenes[i].Number != req.SceneIndex {
			continue
		}
		for j := range doc.scenes[i].Sentences {
			if j < len(req.Sentences) {
				doc.scenes[i].Sentences[j].Text = req.Sentences[j]
			}
		}
		kept := doc.fragments[:0]
		for _, f := range doc.fragments {
			if f.SceneIndex != req.SceneIndex {
				kept = append(kept, f)
			}
		}
		doc.fragments = append(kept, detectScene(doc.scenes[i])...)
		break
	}
	c.JSON(http.StatusOK, s.analysisFor(doc))
}

type sentenceEdit struct {
	SceneIndex    int    `json:"scene_index"`
	SentenceIndex int    `json:"sentence_index"`
	Text          string `json:"text"`
}

func (s *Server) handleEditSentence(c *ginlib.Context) {
	var req sentenceEdit
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ginlib.H{"detail": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.doc(c, c.Param("doc"))
	if doc == nil {
		return
	}
	for i := range doc.scenes {
		if doc.scenes[i].Number != req.SceneIndex {
			continue
		}
		if req.SentenceIndex < 0 || req.SentenceIndex >= len(doc.scenes[i].Sentences) {
			c.JSON(http.StatusBadRequest, ginlib.H{"detail": "sentence index out of range"})
			return
		}
		doc.scenes[i].Sentences[req.SentenceIndex].Text = req.Text

		// Re-detect just this sentence.
		kept := doc.fragments[:0]
		for _, f := range doc.fragments {
			if f.SceneIndex == req.SceneIndex && f.SentenceIndex != nil && *f.SentenceIndex == req.SentenceIndex {
				continue
			}
			kept = append(kept, f)
		}
		doc.fragments = kept
		if f := detect(doc.scenes[i], req.SentenceIndex, req.Text); f != nil {
			doc.fragments = append(doc.fragments, *f)
		}
		break
	}
	c.JSON(http.StatusOK, s.analysisFor(doc))
}

func (s *Server) handleAddViolation(c *ginlib.Context) {
	var req scriptrate.ViolationChange
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ginlib.H{"detail": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.doc(c, c.Param("doc"))
	if doc == nil {
		return
	}
	f := fragmentFromChange(doc, req)
	if f == nil {
		c.JSON(http.StatusBadRequest, ginlib.H{"detail": "unknown scene"})
		return
	}
	doc.fragments = append(doc.fragments, *f)
	c.JSON(http.StatusOK, s.analysisFor(doc))
}

func (s *Server) handleUpdateViolation(c *ginlib.Context) {
	var req scriptrate.ViolationChange
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ginlib.H{"detail": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.doc(c, c.Param("doc"))
	if doc == nil {
		return
	}
	for i := range doc.fragments {
		f := &doc.fragments[i]
		if f.SceneIndex != req.SceneIndex || f.SentenceIndex == nil || *f.SentenceIndex != req.SentenceIndex {
			continue
		}
		applyChange(f, req)
		break
	}
	c.JSON(http.StatusOK, s.analysisFor(doc))
}

func (s *Server) handleCancelViolation(c *ginlib.Context) {
	var req sentenceEdit
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ginlib.H{"detail": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.doc(c, c.Param("doc"))
	if doc == nil {
		return
	}
	kept := doc.fragments[:0]
	for _, f := range doc.fragments {
		if f.SceneIndex == req.SceneIndex && f.SentenceIndex != nil && *f.SentenceIndex == req.SentenceIndex {
			continue
		}
		kept = append(kept, f)
	}
	doc.fragments = kept
	c.JSON(http.StatusOK, s.analysisFor(doc))
}

func (s *Server) handleReplace(c *ginlib.Context) {
	var req scriptrate.RewriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ginlib.H{"detail": err.Error()})
		return
	}
	if s.rewriter == nil {
		c.JSON(http.StatusOK, scriptrate.RewriteResult{Mode: scriptrate.RewriteModeNoop})
		return
	}
	result, err := s.rewriter.Rewrite(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadGateway, ginlib.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleReport(c *ginlib.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.doc(c, c.Param("doc"))
	if doc == nil {
		return
	}
	a, ok := doc.stages["final"]
	if !ok {
		c.JSON(http.StatusNotFound, ginlib.H{"detail": "no analysis yet"})
		return
	}
	c.JSON(http.StatusOK, a)
}

func fragmentFromChange(doc *document, change scriptrate.ViolationChange) *scriptrate.Fragment {
	for _, scene := range doc.scenes {
		if scene.Number != change.SceneIndex {
			continue
		}
		idx := change.SentenceIndex
		f := scriptrate.Fragment{
			SceneIndex:    scene.Number,
			SceneHeading:  scene.Heading,
			Page:          scene.Page,
			SentenceIndex: &idx,
			Text:          change.Text,
			Labels:        []string{},
			Confidence:    map[string]float64{},
			Evidence:      map[string]scriptrate.EvidenceSpan{},
		}
		if idx >= 0 && idx < len(scene.Sentences) {
			id := scene.Sentences[idx].ID
			f.SentenceID = &id
			if f.Text == "" {
				f.Text = scene.Sentences[idx].Text
			}
		}
		applyChange(&f, change)
		return &f
	}
	return nil
}

func applyChange(f *scriptrate.Fragment, change scriptrate.ViolationChange) {
	if change.Text != "" {
		f.Text = change.Text
	}
	if len(change.Labels) > 0 {
		f.Labels = f.Labels[:0]
		if f.Confidence == nil {
			f.Confidence = map[string]float64{}
		}
		if f.Evidence == nil {
			f.Evidence = map[string]scriptrate.EvidenceSpan{}
		}
		for _, spec := range change.Labels {
			f.Labels = append(f.Labels, spec.Label)
			sev := spec.LocalSeverity
			if !scriptrate.ValidSeverity(sev) {
				sev = scriptrate.SeverityFromRank(scriptrate.SeverityWeight[spec.Label])
			}
			f.Confidence[spec.Label] = 1.0
			f.Evidence[spec.Label] = scriptrate.EvidenceSpan{
				Severity: sev,
				Reason:   spec.Reason,
				Advice:   spec.Advice,
			}
		}
	}
	if scriptrate.ValidSeverity(change.Severity) {
		f.Severity = change.Severity
	}
	f.SeverityLocal = scriptrate.DeriveSeverity(f.Evidence)
	if f.Severity == "" {
		f.Severity = f.SeverityLocal
	}
}
