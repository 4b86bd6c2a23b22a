package model

import "time"

// EventType enumerates every kind of record the experiment log can carry.
type EventType string

const (
	EventStart                 EventType = "start"
	EventCaptureContext        EventType = "capture_context"
	EventExtractTextInitiated  EventType = "extract_text_initiated"
	EventExtractTextEnded      EventType = "extract_text_ended"
	EventEvaluateClicked       EventType = "evaluate_clicked"
	EventEvaluationEnded       EventType = "evaluation_ended"
	EventManualTextEdit        EventType = "manual_text_edit"
	EventDecision              EventType = "decision"
	EventPostEdited            EventType = "post_edited"
)

// LogEntry is one immutable record of the experiment log. Context fields
// (trial id, post URL, condition, model, ground truth) are filled from the
// session state at append time; explicit values set by the caller win.
//
// Entries are never mutated or deleted individually; only the bulk clear
// removes them.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	EventType EventType `json:"event_type"`

	TrialID         *int      `json:"trial_id,omitempty"`
	Post            *string   `json:"post,omitempty"`
	Condition       Condition `json:"condition,omitempty"`
	ModelUsed       *string   `json:"model_used,omitempty"`
	AIGeneratedPost *bool     `json:"ai_generated_post,omitempty"`

	UserConfidence *float64 `json:"user_confidence,omitempty"`
	UserDecision   *string  `json:"user_decision,omitempty"`
	DecisionTimeMS *int64   `json:"decision_time_ms,omitempty"`
	UserAction     *string  `json:"user_action,omitempty"`
	Correct        *string  `json:"correct,omitempty"`

	AIOutputProbability *float64 `json:"ai_output_probability,omitempty"`
	AIOutputResponse    *string  `json:"ai_output_response,omitempty"`
	AIOutputConclusion  *string  `json:"ai_output_conclusion,omitempty"`
	AIUncertainty       *string  `json:"ai_uncertainty,omitempty"`

	ExtractedText *string `json:"extracted_text,omitempty"`
	CaptureName   *string `json:"capture_name,omitempty"`
	Notes         *string `json:"notes,omitempty"`
}

// Ptr is a shorthand for building the optional log entry fields.
func Ptr[T any](v T) *T { return &v }
