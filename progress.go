package scriptrate

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Stream event kinds emitted by the analysis pipeline.
const (
	EventPreflight    = "preflight"
	EventLog          = "log"
	EventStageStart   = "stage-start"
	EventProgress     = "progress"
	EventOutputUpdate = "output-update"
	EventPartialOne   = "partial_stage1"
	EventStageTwoDone = "stage2_done"
	EventStageResult  = "stage-result"
	EventPartial      = "partial_report"
	EventFinal        = "final"
	EventComplete     = "complete"
	EventError        = "error"
	EventErrorStart   = "error_start"
)

// StageCount is the number of pipeline stages surfaced to the user:
// sentence classification, scene aggregation, and the final report.
const StageCount = 3

// StageRef is a stage identifier as it appears on the wire, where the
// backend emits numbers, numeric strings, and stage names interchangeably.
type StageRef string

// UnmarshalJSON accepts both a JSON number and a JSON string.
func (r *StageRef) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = StageRef(s)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*r = StageRef(strconv.Itoa(int(n)))
	return nil
}

// Stage resolves the reference to a 1-based stage number, or 0 when the
// reference names no known stage.
func (r StageRef) Stage() int {
	s := strings.ToLower(strings.TrimSpace(string(r)))
	s = strings.TrimPrefix(s, "stage")
	s = strings.TrimSpace(strings.Trim(s, "_-"))
	switch s {
	case "1", "one", "classification", "sentences":
		return 1
	case "2", "two", "aggregation", "scenes":
		return 2
	case "3", "three", "final", "report":
		return 3
	}
	return 0
}

// StreamEvent is one frame of the analysis event stream.
type StreamEvent struct {
	Kind    string          `json:"event"`
	Stage   StageRef        `json:"stage,omitempty"`
	Percent *float64        `json:"percent,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"output,omitempty"`
}

// UnmarshalJSON decodes the backend's frame shape: the kind under "event",
// payloads under "output", status text under "message", "line", or "raw",
// and completion as a 0..1 fraction under "progress". An older dialect with
// "type", "percent" (0..100), and "data" keys is accepted as well.
func (e *StreamEvent) UnmarshalJSON(data []byte) error {
	var raw struct {
		Event    string          `json:"event"`
		Type     string          `json:"type"`
		Stage    StageRef        `json:"stage"`
		Progress *float64        `json:"progress"`
		Percent  *float64        `json:"percent"`
		Message  string          `json:"message"`
		Line     string          `json:"line"`
		Raw      string          `json:"raw"`
		Output   json.RawMessage `json:"output"`
		Data     json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Kind = raw.Event
	if e.Kind == "" {
		e.Kind = raw.Type
	}
	e.Stage = raw.Stage
	switch {
	case raw.Percent != nil:
		e.Percent = raw.Percent
	case raw.Progress != nil:
		pct := *raw.Progress
		if pct <= 1 {
			pct *= 100
		}
		e.Percent = &pct
	default:
		e.Percent = nil
	}
	e.Message = raw.Message
	if e.Message == "" {
		e.Message = raw.Line
	}
	if e.Message == "" {
		e.Message = raw.Raw
	}
	e.Data = raw.Output
	if len(e.Data) == 0 {
		e.Data = raw.Data
	}
	return nil
}

// Meaningful reports whether the event carries pipeline state, as opposed
// to log chatter. A stream that closes before any meaningful event was
// seen is treated as never having started.
func (e StreamEvent) Meaningful() bool {
	switch e.Kind {
	case EventLog, EventPreflight, "raw", "":
		return false
	}
	return true
}

// Progress tracks per-stage completion for one analysis run. Percentages
// only move forward: a stage never regresses, and advancing a later stage
// forces every earlier stage to 100.
type Progress struct {
	percents [StageCount]float64
	active   int
	done     bool
	failed   bool
	message  string
}

// NewProgress returns a zeroed tracker with stage 1 active.
func NewProgress() *Progress {
	return &Progress{active: 1}
}

// SetStagePercent records progress for a 1-based stage, clamping the value
// to [0, 100] and ignoring regressions. Earlier stages are forced complete.
func (p *Progress) SetStagePercent(stage int, pct float64) {
	if stage < 1 || stage > StageCount {
		return
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if pct > p.percents[stage-1] {
		p.percents[stage-1] = pct
	}
	for i := 0; i < stage-1; i++ {
		p.percents[i] = 100
	}
	if stage > p.active {
		p.active = stage
	}
}

// ApplyEvent folds one stream event into the tracker.
func (p *Progress) ApplyEvent(e StreamEvent) {
	if e.Message != "" {
		p.message = e.Message
	}
	switch e.Kind {
	case EventStageStart:
		if stage := e.Stage.Stage(); stage > 0 {
			p.SetStagePercent(stage, 0)
		}
	case EventProgress, EventOutputUpdate:
		stage := e.Stage.Stage()
		if stage == 0 {
			stage = p.active
		}
		if e.Percent != nil {
			p.SetStagePercent(stage, *e.Percent)
		}
	case EventPartialOne:
		if e.Percent != nil {
			p.SetStagePercent(1, *e.Percent)
		}
	case EventStageTwoDone:
		p.SetStagePercent(2, 100)
	case EventStageResult:
		if stage := e.Stage.Stage(); stage > 0 {
			p.SetStagePercent(stage, 100)
		}
	case EventPartial:
		p.SetStagePercent(3, p.percents[2])
	case EventFinal, EventComplete:
		p.SetStagePercent(StageCount, 100)
		p.done = true
	case EventError, EventErrorStart:
		p.failed = true
	}
}

// StagePercent returns the completion of a 1-based stage.
func (p *Progress) StagePercent(stage int) float64 {
	if stage < 1 || stage > StageCount {
		return 0
	}
	return p.percents[stage-1]
}

// Overall returns the mean completion across all stages.
func (p *Progress) Overall() float64 {
	var sum float64
	for _, v := range p.percents {
		sum += v
	}
	return sum / StageCount
}

// ActiveStage returns the 1-based stage currently running.
func (p *Progress) ActiveStage() int { return p.active }

// Done reports whether a final or complete event was seen.
func (p *Progress) Done() bool { return p.done }

// Failed reports whether an error event was seen.
func (p *Progress) Failed() bool { return p.failed }

// Message returns the most recent status line from the stream.
func (p *Progress) Message() string { return p.message }
