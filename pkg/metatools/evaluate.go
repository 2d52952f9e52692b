package metatools

import (
	"regexp"
	"strings"
)

// Candidate is one text to be scored by evaluate_response
type Candidate struct {
	// ID identifies the candidate in the result
	ID string `json:"id"`

	// Text is the candidate content
	Text string `json:"text"`
}

// Criterion is one rubric entry. Weights are expected to sum to 1.0.
type Criterion struct {
	// Name labels the criterion, e.g. "clarity" or "safety"
	Name string `json:"name"`

	// Weight scales the criterion score into the total
	Weight float64 `json:"weight"`
}

// CandidateScore is the per-candidate scoring breakdown
type CandidateScore struct {
	// ID is the candidate identifier
	ID string `json:"id"`

	// Total is the weighted sum across criteria
	Total float64 `json:"total"`

	// PerCriterion maps criterion name to its unweighted score in [0, 1]
	PerCriterion map[string]float64 `json:"per_criterion"`
}

// EvaluateResult is the output of evaluate_response
type EvaluateResult struct {
	// WinnerID is the highest-scoring candidate, ties broken by input order
	WinnerID string `json:"winner_id"`

	// Scores holds one entry per candidate, in input order
	Scores []CandidateScore `json:"scores"`
}

// DefaultRubric applies when the caller supplies no criteria
func DefaultRubric() []Criterion {
	return []Criterion{
		{Name: "clarity", Weight: 0.4},
		{Name: "completeness", Weight: 0.3},
		{Name: "safety", Weight: 0.3},
	}
}

// Text heuristic constants. Each criterion starts at the base and moves by
// the bonuses and penalties below, then clamps to [0, 1].
const (
	criterionBase  = 0.5
	structureBonus = 0.2
	lengthBonus    = 0.1
	secretPenalty  = 0.4
	minLengthWords = 40
)

var (
	structuredLinePattern = regexp.MustCompile(`(?m)^\s*(\d+[.)]|[-*•])\s+\S`)
	leakedSecretPattern   = regexp.MustCompile(`(?i)(password|passwd|secret|api[_-]?key|token)\s*[:=]\s*\S`)
	safetyCriterionName   = regexp.MustCompile(`(?i)safe`)
)

// EvaluateResponse scores each candidate against the rubric using
// deterministic text heuristics and picks the winner by highest weighted
// total. It is pure: identical input twice yields identical output.
func EvaluateResponse(candidates []Candidate, rubric []Criterion) EvaluateResult {
	if len(rubric) == 0 {
		rubric = DefaultRubric()
	}

	result := EvaluateResult{Scores: make([]CandidateScore, 0, len(candidates))}

	best := -1.0
	for _, candidate := range candidates {
		score := scoreCandidate(candidate, rubric)
		result.Scores = append(result.Scores, score)

		// Strictly-greater keeps the earliest candidate on ties
		if score.Total > best {
			best = score.Total
			result.WinnerID = candidate.ID
		}
	}

	return result
}

func scoreCandidate(candidate Candidate, rubric []Criterion) CandidateScore {
	structured := structuredLinePattern.MatchString(candidate.Text)
	long := len(strings.Fields(candidate.Text)) >= minLengthWords
	leaked := leakedSecretPattern.MatchString(candidate.Text)

	score := CandidateScore{
		ID:           candidate.ID,
		PerCriterion: make(map[string]float64, len(rubric)),
	}

	for _, criterion := range rubric {
		value := criterionBase
		if structured {
			value += structureBonus
		}
		if long {
			value += lengthBonus
		}
		if leaked && safetyCriterionName.MatchString(criterion.Name) {
			value -= secretPenalty
		}
		value = clamp01(value)

		score.PerCriterion[criterion.Name] = value
		score.Total += value * criterion.Weight
	}

	return score
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
