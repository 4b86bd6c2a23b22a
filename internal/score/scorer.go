// Package score summarizes a recorded session: how often the participant
// agreed with the model, how accurate they were, and how long decisions took.
package score

import (
	"github.com/tmoreaux/detectlab/internal/model"
)

// Summary aggregates the decision rows of an event log.
type Summary struct {
	Trials    int `json:"trials"`
	Decisions int `json:"decisions"`

	// Correctness against ground truth; decisions without a recorded truth
	// are excluded from the accuracy denominator.
	Judged   int     `json:"judged"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`

	MeanConfidence float64 `json:"mean_confidence"`

	// Agreement with the model's lean.
	Accepted int `json:"accepted"`
	Refused  int `json:"refused"`
	Ignored  int `json:"ignored"`

	// Decision latency over rows that carry a timing.
	MeanDecisionMS int64 `json:"mean_decision_ms"`
	TimedDecisions int   `json:"timed_decisions"`

	Evaluations int            `json:"evaluations"`
	Uncertainty map[string]int `json:"uncertainty"`

	ByCondition map[string]*ConditionSummary `json:"by_condition"`
}

// ConditionSummary is the per-arm slice of the numbers above.
type ConditionSummary struct {
	Decisions int     `json:"decisions"`
	Judged    int     `json:"judged"`
	Correct   int     `json:"correct"`
	Accuracy  float64 `json:"accuracy"`
}

// Scorer calculates session summaries
type Scorer struct{}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Calculate walks the event log once and aggregates it.
func (s *Scorer) Calculate(entries []model.LogEntry) Summary {
	summary := Summary{
		Uncertainty: make(map[string]int),
		ByCondition: make(map[string]*ConditionSummary),
	}

	trials := make(map[int]bool)
	var confidenceSum float64
	var decisionMSSum int64

	for _, e := range entries {
		if e.TrialID != nil {
			trials[*e.TrialID] = true
		}

		switch e.EventType {
		case model.EventEvaluationEnded:
			summary.Evaluations++
			if e.AIUncertainty != nil {
				summary.Uncertainty[*e.AIUncertainty]++
			}

		case model.EventDecision:
			summary.Decisions++

			cond := string(e.Condition)
			bc := summary.ByCondition[cond]
			if bc == nil {
				bc = &ConditionSummary{}
				summary.ByCondition[cond] = bc
			}
			bc.Decisions++

			if e.UserConfidence != nil {
				confidenceSum += *e.UserConfidence
			}
			if e.DecisionTimeMS != nil {
				decisionMSSum += *e.DecisionTimeMS
				summary.TimedDecisions++
			}
			if e.UserAction != nil {
				switch model.UserAction(*e.UserAction) {
				case model.UserActionAccept:
					summary.Accepted++
				case model.UserActionRefuse:
					summary.Refused++
				case model.UserActionIgnore:
					summary.Ignored++
				}
			}
			if e.Correct != nil {
				summary.Judged++
				bc.Judged++
				if *e.Correct == "YES" {
					summary.Correct++
					bc.Correct++
				}
			}
		}
	}

	summary.Trials = len(trials)
	if summary.Decisions > 0 {
		summary.MeanConfidence = confidenceSum / float64(summary.Decisions)
	}
	if summary.TimedDecisions > 0 {
		summary.MeanDecisionMS = decisionMSSum / int64(summary.TimedDecisions)
	}
	if summary.Judged > 0 {
		summary.Accuracy = float64(summary.Correct) / float64(summary.Judged)
	}
	for _, bc := range summary.ByCondition {
		if bc.Judged > 0 {
			bc.Accuracy = float64(bc.Correct) / float64(bc.Judged)
		}
	}

	return summary
}
