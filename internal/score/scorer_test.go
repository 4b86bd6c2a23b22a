package score

import (
	"testing"

	"github.com/tmoreaux/detectlab/internal/model"
)

func decision(trial int, condition model.Condition, confidence float64, action, correct string, ms int64) model.LogEntry {
	e := model.LogEntry{
		EventType:      model.EventDecision,
		Condition:      condition,
		TrialID:        model.Ptr(trial),
		UserConfidence: model.Ptr(confidence),
		UserAction:     model.Ptr(action),
		DecisionTimeMS: model.Ptr(ms),
	}
	if correct != "" {
		e.Correct = model.Ptr(correct)
	}
	return e
}

func TestCalculate_Empty(t *testing.T) {
	summary := NewScorer().Calculate(nil)
	if summary.Trials != 0 || summary.Decisions != 0 || summary.Accuracy != 0 {
		t.Errorf("Expected zero summary, got %+v", summary)
	}
}

func TestCalculate_Aggregates(t *testing.T) {
	entries := []model.LogEntry{
		{EventType: model.EventStart, TrialID: model.Ptr(0)},
		{EventType: model.EventEvaluationEnded, TrialID: model.Ptr(0), AIUncertainty: model.Ptr("high")},
		decision(0, model.ConditionUserAI, 0.8, "accept", "YES", 1200),
		{EventType: model.EventStart, TrialID: model.Ptr(1)},
		{EventType: model.EventEvaluationEnded, TrialID: model.Ptr(1), AIUncertainty: model.Ptr("medium")},
		decision(1, model.ConditionUserAI, 0.6, "refuse", "NO", 800),
		{EventType: model.EventStart, TrialID: model.Ptr(2)},
		decision(2, model.ConditionUserAlone, 0.4, "ignore", "", 1000),
	}

	summary := NewScorer().Calculate(entries)

	if summary.Trials != 3 {
		t.Errorf("Expected 3 trials, got %d", summary.Trials)
	}
	if summary.Decisions != 3 {
		t.Errorf("Expected 3 decisions, got %d", summary.Decisions)
	}
	if summary.Judged != 2 || summary.Correct != 1 {
		t.Errorf("Expected 2 judged / 1 correct, got %d / %d", summary.Judged, summary.Correct)
	}
	if summary.Accuracy != 0.5 {
		t.Errorf("Expected accuracy 0.5, got %g", summary.Accuracy)
	}
	if summary.Accepted != 1 || summary.Refused != 1 || summary.Ignored != 1 {
		t.Errorf("Unexpected action split: %+v", summary)
	}
	if summary.MeanDecisionMS != 1000 {
		t.Errorf("Expected mean decision time 1000ms, got %d", summary.MeanDecisionMS)
	}
	if summary.Evaluations != 2 || summary.Uncertainty["high"] != 1 || summary.Uncertainty["medium"] != 1 {
		t.Errorf("Unexpected evaluation summary: %+v", summary)
	}

	mean := (0.8 + 0.6 + 0.4) / 3
	if diff := summary.MeanConfidence - mean; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Expected mean confidence %g, got %g", mean, summary.MeanConfidence)
	}

	ai := summary.ByCondition["User + AI"]
	if ai == nil || ai.Decisions != 2 || ai.Judged != 2 || ai.Correct != 1 || ai.Accuracy != 0.5 {
		t.Errorf("Unexpected User + AI summary: %+v", ai)
	}
	alone := summary.ByCondition["User Alone"]
	if alone == nil || alone.Decisions != 1 || alone.Judged != 0 {
		t.Errorf("Unexpected User Alone summary: %+v", alone)
	}
}

func TestCalculate_NoTimings(t *testing.T) {
	entries := []model.LogEntry{
		{
			EventType:      model.EventDecision,
			Condition:      model.ConditionUserAI,
			TrialID:        model.Ptr(0),
			UserConfidence: model.Ptr(0.5),
			UserAction:     model.Ptr("ignore"),
		},
	}

	summary := NewScorer().Calculate(entries)
	if summary.TimedDecisions != 0 || summary.MeanDecisionMS != 0 {
		t.Errorf("Expected no timed decisions, got %+v", summary)
	}
}
