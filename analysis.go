package scriptrate

import "fmt"

// OrderedRatings lists the age ratings from least to most restrictive.
var OrderedRatings = []string{"0+", "6+", "12+", "16+", "18+"}

// RatingRank returns the position of a rating in OrderedRatings, or -1 for
// unknown values.
func RatingRank(rating string) int {
	for i, r := range OrderedRatings {
		if r == rating {
			return i
		}
	}
	return -1
}

// CategoryExample is one illustrative fragment inside a category summary.
type CategoryExample struct {
	SceneIndex    int      `json:"scene_index"`
	Page          *int     `json:"page,omitempty"`
	Text          string   `json:"text"`
	Labels        []string `json:"labels"`
	SeverityLocal Severity `json:"severity_local"`
}

// CategoryStats aggregates the fragments of one coarse category.
type CategoryStats struct {
	Severity                Severity          `json:"severity"`
	Episodes                int               `json:"episodes"`
	ScenesWithIssuesPercent float64           `json:"scenes_with_issues_percent"`
	Examples                []CategoryExample `json:"examples,omitempty"`
}

// Analysis is the canonical payload shape shared by every analysis response.
type Analysis struct {
	FinalRating       string                   `json:"final_rating"`
	ModelFinalRating  string                   `json:"model_final_rating,omitempty"`
	ModelExplanation  string                   `json:"model_explanation,omitempty"`
	ScenesTotal       int                      `json:"scenes_total"`
	ParentsGuide      map[string]CategoryStats `json:"parents_guide"`
	ProblemFragments  []Fragment               `json:"problem_fragments"`
	LawExplanation    string                   `json:"law_explanation,omitempty"`
	ProcessingSeconds float64                  `json:"processing_seconds"`
}

// NormalizeAnalysis turns a raw backend payload into a view-ready analysis.
// It is total: missing optional fields get defaults, never an error. Scenes
// are used to attach stable sentence ids to fragments that carry a sentence
// index, and to assign occurrence counters for duplicate fragment text.
func NormalizeAnalysis(a *Analysis, scenes []Scene) *Analysis {
	if a == nil {
		a = &Analysis{}
	}
	out := *a
	if out.FinalRating == "" {
		out.FinalRating = OrderedRatings[0]
	}
	if out.ParentsGuide == nil {
		out.ParentsGuide = map[string]CategoryStats{}
	}
	if out.ScenesTotal == 0 {
		out.ScenesTotal = len(scenes)
	}

	byNumber := make(map[int]Scene, len(scenes))
	for _, sc := range scenes {
		byNumber[sc.Number] = sc
	}

	occurrences := map[string]int{} // scene/text pair -> count seen so far
	fragments := make([]Fragment, 0, len(out.ProblemFragments))
	for i, f := range out.ProblemFragments {
		if f.ID == "" {
			f.ID = fragmentID(f, i)
		}
		if f.OriginalText == "" {
			f.OriginalText = f.Text
		}
		if f.Labels == nil {
			f.Labels = []string{}
		}
		for label, score := range f.Confidence {
			if score < 0 {
				f.Confidence[label] = 0
			} else if score > 1 {
				f.Confidence[label] = 1
			}
		}
		if f.SeverityLocal == "" {
			f.SeverityLocal = DeriveSeverity(f.Evidence)
		}
		if f.Severity == "" {
			f.Severity = f.SeverityLocal
		}
		if f.SentenceIndex != nil && f.SentenceID == nil {
			if sc, ok := byNumber[f.SceneIndex]; ok {
				if idx := *f.SentenceIndex; idx >= 0 && idx < len(sc.Sentences) {
					id := sc.Sentences[idx].ID
					f.SentenceID = &id
				}
			}
		}
		key := fmt.Sprintf("%d\x00%s", f.SceneIndex, f.Text)
		f.SceneFragmentIndex = occurrences[key]
		occurrences[key]++
		fragments = append(fragments, f)
	}
	out.ProblemFragments = fragments
	return &out
}

// fragmentID builds a deterministic id for server fragments, which arrive
// without one. Scene plus sentence index identifies a fragment on the
// backend; the position breaks ties for unanchored fragments.
func fragmentID(f Fragment, position int) string {
	if f.SentenceIndex != nil {
		return fmt.Sprintf("pf-%d-%d", f.SceneIndex, *f.SentenceIndex)
	}
	return fmt.Sprintf("pf-%d-x%d", f.SceneIndex, position)
}

// RecomputeParentsGuide rebuilds the per-category summary from a fragment
// list. Each category counts the fragments carrying one of its labels; the
// category severity is the highest local severity among them, and the
// percentage is the share of distinct scenes touched.
func RecomputeParentsGuide(fragments []Fragment, scenesTotal int) map[string]CategoryStats {
	guide := make(map[string]CategoryStats, len(CategoryPriority))
	for _, cat := range CategoryPriority {
		catLabels := CategoryLabels[cat]
		var matched []Fragment
		for _, f := range fragments {
			if len(labelsInSet(f.Labels, catLabels)) > 0 {
				matched = append(matched, f)
			}
		}
		if len(matched) == 0 {
			guide[cat] = CategoryStats{Severity: SeverityNone, Examples: []CategoryExample{}}
			continue
		}
		scenes := map[int]bool{}
		maxRank := 0
		var examples []CategoryExample
		for i, f := range matched {
			scenes[f.SceneIndex] = true
			rank := f.SeverityLocal.Rank()
			if rank > maxRank {
				maxRank = rank
			}
			if i < 5 {
				examples = append(examples, CategoryExample{
					SceneIndex:    f.SceneIndex,
					Page:          f.Page,
					Text:          f.Text,
					Labels:        labelsInSet(f.Labels, catLabels),
					SeverityLocal: SeverityFromRank(rank),
				})
			}
		}
		total := scenesTotal
		if total < 1 {
			total = 1
		}
		guide[cat] = CategoryStats{
			Severity:                SeverityFromRank(maxRank),
			Episodes:                len(matched),
			ScenesWithIssuesPercent: round1(float64(len(scenes)) / float64(total) * 100),
			Examples:                examples,
		}
	}
	return guide
}

// RatingFromGuide derives the final rating from category severities: any
// Severe category forces 18+, Moderate 16+, Mild 12+, and any episodes at
// all lift a script from 0+ to 6+.
func RatingFromGuide(guide map[string]CategoryStats) string {
	maxRank := 0
	episodes := 0
	for _, stats := range guide {
		if r := stats.Severity.Rank(); r > maxRank {
			maxRank = r
		}
		episodes += stats.Episodes
	}
	switch {
	case maxRank >= 3:
		return "18+"
	case maxRank == 2:
		return "16+"
	case maxRank == 1:
		return "12+"
	case episodes > 0:
		return "6+"
	default:
		return "0+"
	}
}

func labelsInSet(labels, set []string) []string {
	var out []string
	for _, l := range labels {
		for _, s := range set {
			if l == s {
				out = append(out, l)
				break
			}
		}
	}
	return out
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
