package model

import "time"

// Condition identifies which arm of the experiment produced an event.
type Condition string

const (
	ConditionUserAlone Condition = "User Alone"
	ConditionUserAI    Condition = "User + AI"
)

// Uncertainty buckets the evaluation probability into a coarse confidence band.
type Uncertainty string

const (
	UncertaintyLow    Uncertainty = "low"
	UncertaintyMedium Uncertainty = "medium"
	UncertaintyHigh   Uncertainty = "high"
)

// UserAction records whether the operator followed the model's lean.
type UserAction string

const (
	UserActionAccept UserAction = "accept"
	UserActionRefuse UserAction = "refuse"
	UserActionIgnore UserAction = "ignore"
)

// Judgement is the operator's final call on the displayed text.
type Judgement string

const (
	JudgementAI    Judgement = "AI"
	JudgementHuman Judgement = "Human"
)

// TextSource distinguishes model-extracted text from operator-typed text.
type TextSource string

const (
	TextSourceExtracted TextSource = "extracted"
	TextSourceManual    TextSource = "manual"
)

// TabAssignment records which variant of a post a tab displays, set when the
// page content is swapped at load time.
type TabAssignment struct {
	AIGenerated bool   `json:"ai_generated"`
	PostURL     string `json:"post_url"`
}

// SessionState is the single source of truth for one experiment installation.
// Every field here is persisted; invariants that span multiple fields are
// established through atomic store updates, never sequential writes.
type SessionState struct {
	// SessionID is regenerated on every full page load and tags all
	// subsequent log entries until the next load.
	SessionID string `json:"session_id"`

	// Capture context. PageURL must always match the tab's current URL, or
	// the context must be empty.
	ContextImage string     `json:"context_image,omitempty"` // base64 JPEG, no data-URL prefix
	PageURL      string     `json:"page_url,omitempty"`
	CaptureName  string     `json:"capture_name,omitempty"`
	CapturedAt   *time.Time `json:"captured_at,omitempty"`

	ExtractedText string     `json:"extracted_text,omitempty"`
	TextSource    TextSource `json:"text_source,omitempty"`

	// EvaluationResult is a tagged string: "[PROB:<p>]<report>" on success,
	// "[ERROR]<message>" on failure.
	EvaluationResult     string `json:"evaluation_result,omitempty"`
	EvaluationConclusion string `json:"evaluation_conclusion,omitempty"`

	SelectedModel      string `json:"selected_model,omitempty"`
	DebugMode          bool   `json:"debug_mode,omitempty"`
	UseStoredResponse  bool   `json:"use_stored_response,omitempty"`
	UserAlone          bool   `json:"user_alone,omitempty"`
	Processing         bool   `json:"processing,omitempty"`
	ErrorMessage       string `json:"error_message,omitempty"`
	AwaitingConfidence bool   `json:"awaiting_confidence,omitempty"`

	// Trial bookkeeping. NextTrialID is a process-wide monotonic counter;
	// GroundTruth is nil when the displayed variant is unknown.
	AssignmentsByTab map[int]TabAssignment `json:"assignments_by_tab,omitempty"`
	NextTrialID      int                   `json:"next_trial_id"`
	CurrentTrialID   *int                  `json:"current_trial_id,omitempty"`
	CurrentPostURL   string                `json:"current_post_url,omitempty"`
	GroundTruth      *bool                 `json:"ground_truth,omitempty"`
	StartedPages     map[string]bool       `json:"started_pages,omitempty"`

	// Re-submitting identical text bumps the attempt counter; new text
	// resets it and moves the baseline.
	EvaluationAttempt int    `json:"evaluation_attempt,omitempty"`
	LastEvaluatedText string `json:"last_evaluated_text,omitempty"`

	// ResultShownAt anchors decision latency: set the first time an
	// evaluation result is displayed, cleared when a new evaluation starts.
	ResultShownAt *time.Time `json:"result_shown_at,omitempty"`
}

// NewSessionState returns a zero state with initialized maps.
func NewSessionState() SessionState {
	return SessionState{
		AssignmentsByTab: make(map[int]TabAssignment),
		StartedPages:     make(map[string]bool),
	}
}

// Condition derives the experiment arm from the user-alone flag.
func (s *SessionState) Condition() Condition {
	if s.UserAlone {
		return ConditionUserAlone
	}
	return ConditionUserAI
}

// Clone returns a deep copy, so callers can mutate freely without aliasing
// the stored maps and pointers.
func (s *SessionState) Clone() SessionState {
	out := *s
	out.AssignmentsByTab = make(map[int]TabAssignment, len(s.AssignmentsByTab))
	for k, v := range s.AssignmentsByTab {
		out.AssignmentsByTab[k] = v
	}
	out.StartedPages = make(map[string]bool, len(s.StartedPages))
	for k, v := range s.StartedPages {
		out.StartedPages[k] = v
	}
	if s.CurrentTrialID != nil {
		id := *s.CurrentTrialID
		out.CurrentTrialID = &id
	}
	if s.GroundTruth != nil {
		gt := *s.GroundTruth
		out.GroundTruth = &gt
	}
	if s.CapturedAt != nil {
		t := *s.CapturedAt
		out.CapturedAt = &t
	}
	if s.ResultShownAt != nil {
		t := *s.ResultShownAt
		out.ResultShownAt = &t
	}
	return out
}
