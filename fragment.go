package scriptrate

import (
	"strings"

	"github.com/google/uuid"
)

// Severity is the four-step scale used for fragments, labels, and categories.
type Severity string

// Severity levels, lowest to highest.
const (
	SeverityNone     Severity = "None"
	SeverityMild     Severity = "Mild"
	SeverityModerate Severity = "Moderate"
	SeveritySevere   Severity = "Severe"
)

var severityRanks = map[string]int{
	"none":     0,
	"mild":     1,
	"moderate": 2,
	"severe":   3,
}

// Rank returns the numeric rank of the severity (0-3). Unknown values rank 0.
func (s Severity) Rank() int {
	return severityRanks[strings.ToLower(string(s))]
}

// SeverityFromRank is the inverse of Rank. Out-of-range values map to None.
func SeverityFromRank(rank int) Severity {
	switch rank {
	case 1:
		return SeverityMild
	case 2:
		return SeverityModerate
	case 3:
		return SeveritySevere
	default:
		return SeverityNone
	}
}

// ValidSeverity reports whether s is one of the four known levels.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityNone, SeverityMild, SeverityModerate, SeveritySevere:
		return true
	}
	return false
}

// EvidenceSpan carries the per-label classification detail for a fragment.
type EvidenceSpan struct {
	Severity Severity `json:"severity"`
	Score    *float64 `json:"score,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	Advice   string   `json:"advice,omitempty"`
	Trigger  *string  `json:"trigger,omitempty"`
}

// Fragment is a span of text flagged as relevant to one or more content
// categories. SceneIndex addresses the owning scene by its backend number.
// SentenceIndex is the position in the scene's sentence list and SentenceID
// the backend's stable sentence id; either may be absent for legacy or
// user-authored fragments.
type Fragment struct {
	ID              string                  `json:"id,omitempty"`
	SceneIndex      int                     `json:"scene_index"`
	SceneHeading    string                  `json:"scene_heading,omitempty"`
	Page            *int                    `json:"page,omitempty"`
	SentenceIndex   *int                    `json:"sentence_index,omitempty"`
	SentenceID      *int                    `json:"sentence_id,omitempty"`
	Text            string                  `json:"text"`
	OriginalText    string                  `json:"-"`
	Labels          []string                `json:"labels"`
	Confidence      map[string]float64      `json:"confidence,omitempty"`
	Evidence        map[string]EvidenceSpan `json:"evidence_spans,omitempty"`
	Recommendations []string                `json:"recommendations,omitempty"`
	Severity        Severity                `json:"fragment_severity,omitempty"`
	SeverityLocal   Severity                `json:"severity_local,omitempty"`

	// SceneFragmentIndex disambiguates duplicate fragment text within one
	// scene: this fragment tracks the Nth (0-based) occurrence.
	SceneFragmentIndex int `json:"-"`

	// Manual marks fragments created by the user rather than the analyzer.
	Manual bool `json:"-"`
}

// HasSentenceIndex reports whether the fragment carries precise anchoring.
func (f Fragment) HasSentenceIndex() bool {
	return f.SentenceIndex != nil
}

// Known classification labels, as emitted by the analysis pipeline.
var Labels = []string{
	"VIOLENCE_GRAPHIC", "VIOLENCE_NON_GRAPHIC", "MURDER_HOMICIDE", "SUICIDE_SELF_HARM",
	"SEX_EXPLICIT", "SEX_SUGGESTIVE", "SEXUAL_VIOLENCE", "NUDITY_EXPLICIT", "NUDITY_NONSEXUAL",
	"DRUGS_USE_DEPICTION", "DRUGS_MENTION_NON_DETAILED", "ALCOHOL_USE", "TOBACCO_USE",
	"CRIME_INSTRUCTIONS", "CRIMINAL_ACTIVITY",
	"WEAPONS_USAGE", "WEAPONS_MENTION",
	"PROFANITY_OBSCENE", "ABUSE_HATE_EXTREMISM", "HORROR_FEAR", "DANGEROUS_IMITABLE_ACTS",
	"MEDICAL_GORE_DETAILS", "GAMBLING", "MILD_CONFLICT",
	"EXTREMISM_PROPAGANDA", "NAZISM_PROPAGANDA", "FASCISM_PROPAGANDA",
}

// CategoryLabels maps each coarse category to the fine-grained labels it
// aggregates. A label may belong to several categories.
var CategoryLabels = map[string][]string{
	"Violence_Gore":         {"VIOLENCE_GRAPHIC", "VIOLENCE_NON_GRAPHIC", "MURDER_HOMICIDE", "MEDICAL_GORE_DETAILS", "SUICIDE_SELF_HARM"},
	"Sex_Nudity":            {"SEX_EXPLICIT", "SEXUAL_VIOLENCE", "NUDITY_EXPLICIT", "SEX_SUGGESTIVE", "NUDITY_NONSEXUAL"},
	"Alcohol_Drugs_Smoking": {"DRUGS_USE_DEPICTION", "DRUGS_MENTION_NON_DETAILED", "ALCOHOL_USE", "TOBACCO_USE"},
	"Profanity":             {"PROFANITY_OBSCENE"},
	"Crime":                 {"CRIME_INSTRUCTIONS", "CRIMINAL_ACTIVITY"},
	"Weapons":               {"WEAPONS_USAGE", "WEAPONS_MENTION"},
	"Frightening_Intense":   {"HORROR_FEAR", "DANGEROUS_IMITABLE_ACTS", "ABUSE_HATE_EXTREMISM"},
	"Gambling":              {"GAMBLING"},
	"Other":                 {"MILD_CONFLICT"},
	"Extremism_Propaganda":  {"EXTREMISM_PROPAGANDA", "NAZISM_PROPAGANDA", "FASCISM_PROPAGANDA", "ABUSE_HATE_EXTREMISM"},
}

// CategoryPriority fixes the order in which categories claim a fragment when
// its labels span several of them, and the order categories are rendered.
var CategoryPriority = []string{
	"Violence_Gore",
	"Sex_Nudity",
	"Extremism_Propaganda",
	"Profanity",
	"Crime",
	"Alcohol_Drugs_Smoking",
	"Weapons",
	"Frightening_Intense",
	"Gambling",
	"Other",
}

// SeverityWeight gives the default severity rank contributed by each label.
var SeverityWeight = map[string]int{
	"MILD_CONFLICT": 1, "GAMBLING": 1, "WEAPONS_MENTION": 1,
	"VIOLENCE_NON_GRAPHIC": 2, "MURDER_HOMICIDE": 2, "SEX_SUGGESTIVE": 2, "ALCOHOL_USE": 2, "TOBACCO_USE": 2,
	"CRIMINAL_ACTIVITY": 2, "WEAPONS_USAGE": 2, "DRUGS_MENTION_NON_DETAILED": 2, "HORROR_FEAR": 2, "NUDITY_NONSEXUAL": 2,
	"VIOLENCE_GRAPHIC": 3, "SUICIDE_SELF_HARM": 3, "SEX_EXPLICIT": 3, "SEXUAL_VIOLENCE": 3,
	"NUDITY_EXPLICIT": 3, "DRUGS_USE_DEPICTION": 3, "CRIME_INSTRUCTIONS": 3, "PROFANITY_OBSCENE": 3,
	"ABUSE_HATE_EXTREMISM": 3, "DANGEROUS_IMITABLE_ACTS": 3, "MEDICAL_GORE_DETAILS": 3,
	"EXTREMISM_PROPAGANDA": 3, "NAZISM_PROPAGANDA": 3, "FASCISM_PROPAGANDA": 3,
}

// CategoryForLabels derives the single coarse category for a label set using
// the fixed priority order. The second return is false when no label maps to
// a known category; such fragments are excluded from category views.
func CategoryForLabels(labels []string) (string, bool) {
	if len(labels) == 0 {
		return "", false
	}
	have := make(map[string]bool, len(labels))
	for _, l := range labels {
		have[l] = true
	}
	for _, cat := range CategoryPriority {
		for _, l := range CategoryLabels[cat] {
			if have[l] {
				return cat, true
			}
		}
	}
	return "", false
}

// Category returns the fragment's coarse category per CategoryForLabels.
func (f Fragment) Category() (string, bool) {
	return CategoryForLabels(f.Labels)
}

// DeriveSeverity returns the highest per-label severity found in the
// evidence spans.
func DeriveSeverity(evidence map[string]EvidenceSpan) Severity {
	max := 0
	for _, span := range evidence {
		if r := span.Severity.Rank(); r > max {
			max = r
		}
	}
	return SeverityFromRank(max)
}

// NewManualFragment synthesizes a locally created fragment for a span of
// text the user flagged themselves. The occurrence counter is the number of
// fragments in the same scene that already track identical text, so
// duplicate wording within a scene stays unambiguous.
func NewManualFragment(scene Scene, text string, labels []string, severity Severity, existing []Fragment) Fragment {
	if !ValidSeverity(severity) {
		severity = SeverityMild
	}
	occurrence := 0
	for _, f := range existing {
		if f.SceneIndex == scene.Number && f.Text == text {
			occurrence++
		}
	}
	confidence := make(map[string]float64, len(labels))
	evidence := make(map[string]EvidenceSpan, len(labels))
	for _, l := range labels {
		confidence[l] = 1.0
		evidence[l] = EvidenceSpan{Severity: severity}
	}
	return Fragment{
		ID:                 uuid.NewString(),
		SceneIndex:         scene.Number,
		SceneHeading:       scene.Heading,
		Page:               scene.Page,
		Text:               text,
		OriginalText:       text,
		Labels:             append([]string(nil), labels...),
		Confidence:         confidence,
		Evidence:           evidence,
		Severity:           severity,
		SeverityLocal:      severity,
		SceneFragmentIndex: occurrence,
		Manual:             true,
	}
}
