// Package session drives the trial state machine:
//
//	Idle → ContextCaptured → TextExtracted → Evaluated → AwaitingConfidence → Idle
//
// All state lives in the store; the controller only sequences transitions and
// appends the matching event-log records.
package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tmoreaux/detectlab/internal/eval"
	"github.com/tmoreaux/detectlab/internal/eventlog"
	"github.com/tmoreaux/detectlab/internal/llm"
	"github.com/tmoreaux/detectlab/internal/model"
	"github.com/tmoreaux/detectlab/internal/posts"
	"github.com/tmoreaux/detectlab/internal/store"
)

// DefaultModel is used when the operator has not picked one.
const DefaultModel = "gemma3"

const transportErrMsg = "Model endpoint unreachable. Is the local server running?"
const parseErrMsg = "Failed to parse the analysis from the model response."

// Controller owns every state transition of the experiment.
type Controller struct {
	store    store.Store
	provider llm.Provider
	events   *eventlog.Logger
	corpus   *posts.Corpus // optional; enables canned evaluation responses
	log      *zap.Logger
}

// New creates a controller. corpus may be nil when no prepared posts file is
// configured.
func New(st store.Store, provider llm.Provider, events *eventlog.Logger, corpus *posts.Corpus) *Controller {
	return &Controller{
		store:    st,
		provider: provider,
		events:   events,
		corpus:   corpus,
		log:      zap.L().Named("session"),
	}
}

// State returns a copy of the current session state.
func (c *Controller) State(ctx context.Context) (model.SessionState, error) {
	return c.store.State(ctx)
}

// ProviderAvailable probes the configured model endpoint.
func (c *Controller) ProviderAvailable(ctx context.Context) bool {
	return c.provider.IsAvailable(ctx)
}

// Navigated handles a tab finishing a page load. Every load starts a new
// logging session; a load whose URL differs from the stored page URL also
// invalidates the capture context, the extracted text and the evaluation in
// one atomic write, so a stale screenshot can never be evaluated against a
// new page.
func (c *Controller) Navigated(ctx context.Context, url string) error {
	return c.store.Update(ctx, func(s *model.SessionState) error {
		s.SessionID = uuid.NewString()
		if s.PageURL != "" && s.PageURL != url {
			c.log.Info("url changed, resetting context",
				zap.String("stored", s.PageURL),
				zap.String("current", url),
			)
			clearContext(s)
		}
		return nil
	})
}

// StartResult reports the outcome of a trial start.
type StartResult struct {
	TrialID        int  `json:"trial_id"`
	AlreadyStarted bool `json:"already_started"`
}

// StartTrial binds the next trial id to the page. A page can be started at
// most once; a repeat start returns the current trial id untouched so the
// control surface can skip straight to the main flow.
func (c *Controller) StartTrial(ctx context.Context, tabID int, url string) (*StartResult, error) {
	var res StartResult
	err := c.store.Update(ctx, func(s *model.SessionState) error {
		if s.StartedPages[url] {
			res.AlreadyStarted = true
			if s.CurrentTrialID != nil {
				res.TrialID = *s.CurrentTrialID
			}
			return nil
		}

		// Increment-and-fetch under the same atomic write that binds the
		// trial, so rapid re-entry cannot mint duplicate ids.
		id := s.NextTrialID
		s.NextTrialID++
		s.CurrentTrialID = &id
		s.CurrentPostURL = url
		s.GroundTruth = nil
		if a, ok := s.AssignmentsByTab[tabID]; ok {
			gt := a.AIGenerated
			s.GroundTruth = &gt
		}
		s.StartedPages[url] = true
		res.TrialID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !res.AlreadyStarted {
		c.log.Info("trial started", zap.Int("trial_id", res.TrialID), zap.String("post", url))
		if err := c.events.Append(ctx, model.LogEntry{EventType: model.EventStart}); err != nil {
			return nil, err
		}
	}
	return &res, nil
}

// PostEdited records that a page's post text was swapped (or left alone) at
// load time, keyed by tab so parallel tabs do not overwrite each other.
func (c *Controller) PostEdited(ctx context.Context, tabID int, url string, aiVariant bool) error {
	err := c.store.Update(ctx, func(s *model.SessionState) error {
		s.AssignmentsByTab[tabID] = model.TabAssignment{AIGenerated: aiVariant, PostURL: url}
		s.CurrentPostURL = url
		return nil
	})
	if err != nil {
		return err
	}
	return c.events.Append(ctx, model.LogEntry{
		EventType:       model.EventPostEdited,
		Post:            model.Ptr(url),
		AIGeneratedPost: model.Ptr(aiVariant),
	})
}

// CaptureContext stores a freshly cropped screenshot as the visual context.
// The image, its source URL and the cleared downstream fields land in one
// write; captureName is recorded only while debug mode saves capture files.
func (c *Controller) CaptureContext(ctx context.Context, imageB64, url, captureName string) error {
	var name string
	err := c.store.Update(ctx, func(s *model.SessionState) error {
		clearContext(s)
		now := time.Now().UTC()
		s.ContextImage = imageB64
		s.PageURL = url
		s.CapturedAt = &now
		s.ErrorMessage = ""
		if s.DebugMode && captureName != "" {
			s.CaptureName = captureName
			name = captureName
		}
		return nil
	})
	if err != nil {
		return err
	}

	entry := model.LogEntry{EventType: model.EventCaptureContext}
	if name != "" {
		entry.CaptureName = model.Ptr(name)
	}
	return c.events.Append(ctx, entry)
}

// ExtractText sends a screenshot region to the model and stores the
// recovered text. Rejected with ErrBusy while another call is in flight.
func (c *Controller) ExtractText(ctx context.Context, imageB64 string) error {
	var modelName, captureName string
	err := c.store.Update(ctx, func(s *model.SessionState) error {
		if s.Processing {
			return ErrBusy
		}
		s.Processing = true
		s.ErrorMessage = ""
		modelName = selectedModel(s)
		captureName = s.CaptureName
		return nil
	})
	if err != nil {
		return err
	}

	entry := model.LogEntry{EventType: model.EventExtractTextInitiated}
	if captureName != "" {
		entry.CaptureName = model.Ptr(captureName)
	}
	if err := c.events.Append(ctx, entry); err != nil {
		c.clearProcessing(ctx)
		return err
	}

	resp, err := c.provider.Generate(ctx, llm.Request{
		Model:    modelName,
		Prompt:   llm.ExtractionPrompt,
		ImageB64: imageB64,
	})
	if err != nil {
		return c.failCall(ctx, err, false)
	}

	if err := c.store.Update(ctx, func(s *model.SessionState) error {
		s.Processing = false
		s.ExtractedText = resp.Text
		s.TextSource = model.TextSourceExtracted
		return nil
	}); err != nil {
		return err
	}

	c.log.Info("text extraction complete", zap.Int("chars", len(resp.Text)))
	return c.events.Append(ctx, model.LogEntry{
		EventType:     model.EventExtractTextEnded,
		ExtractedText: model.Ptr(resp.Text),
	})
}

// SetExtractedText records a manual edit of the text area.
func (c *Controller) SetExtractedText(ctx context.Context, text string) error {
	err := c.store.Update(ctx, func(s *model.SessionState) error {
		s.ExtractedText = text
		s.TextSource = model.TextSourceManual
		return nil
	})
	if err != nil {
		return err
	}
	return c.events.Append(ctx, model.LogEntry{EventType: model.EventManualTextEdit})
}

// Evaluate asks the model whether the text is AI-generated, grounded on the
// captured context screenshot. Evaluating without a context is rejected
// before any state change, network call or log entry. When the stored-
// response toggle is on and the corpus carries a canned payload for the
// current page, that payload stands in for the model call.
func (c *Controller) Evaluate(ctx context.Context, text string) error {
	var snap model.SessionState
	var canned map[string]any
	err := c.store.Update(ctx, func(s *model.SessionState) error {
		if s.Processing {
			return ErrBusy
		}

		canned = nil
		if s.UseStoredResponse && c.corpus != nil {
			aiVariant := s.GroundTruth != nil && *s.GroundTruth
			if payload, ok := c.corpus.StoredResponse(s.PageURL, aiVariant); ok {
				canned = payload
			}
		}
		if canned == nil && s.ContextImage == "" {
			return &MissingPreconditionError{Reason: "cannot evaluate without a context image"}
		}

		if text == s.LastEvaluatedText {
			s.EvaluationAttempt++
		} else {
			s.EvaluationAttempt = 0
			s.LastEvaluatedText = text
		}
		s.ExtractedText = text
		s.ErrorMessage = ""
		s.AwaitingConfidence = false
		s.ResultShownAt = nil
		s.Processing = true
		snap = s.Clone()
		return nil
	})
	if err != nil {
		return err
	}

	if err := c.events.Append(ctx, model.LogEntry{
		EventType:     model.EventEvaluateClicked,
		ExtractedText: model.Ptr(text),
	}); err != nil {
		c.clearProcessing(ctx)
		return err
	}

	if canned != nil {
		c.log.Info("using stored model response", zap.String("post", snap.PageURL))
		raw, err := json.Marshal(canned)
		if err != nil {
			return c.failCall(ctx, err, true)
		}
		return c.finishEvaluation(ctx, raw)
	}

	resp, err := c.provider.Generate(ctx, llm.Request{
		Model:      selectedModel(&snap),
		Prompt:     llm.EvaluationPrompt(snap.PageURL, text),
		ImageB64:   snap.ContextImage,
		JSONFormat: true,
	})
	if err != nil {
		return c.failCall(ctx, err, true)
	}

	return c.finishEvaluation(ctx, []byte(resp.Text))
}

// finishEvaluation interprets a model response and persists the composite
// result. Invalid JSON is fatal for the attempt: an error result is stored
// and no evaluation_ended entry is appended.
//
// A response landing after the context was invalidated is still written
// against whatever state is current.
func (c *Controller) finishEvaluation(ctx context.Context, raw []byte) error {
	ev, err := eval.Parse(raw)
	if err != nil {
		c.log.Error("failed to parse evaluation response", zap.Error(err))
		if uerr := c.store.Update(ctx, func(s *model.SessionState) error {
			s.Processing = false
			s.ErrorMessage = parseErrMsg
			s.EvaluationResult = model.TaggedError(parseErrMsg)
			s.EvaluationConclusion = ""
			return nil
		}); uerr != nil {
			return uerr
		}
		return err
	}

	var extracted, modelUsed string
	if uerr := c.store.Update(ctx, func(s *model.SessionState) error {
		s.Processing = false
		s.EvaluationResult = ev.Tagged()
		s.EvaluationConclusion = ev.Conclusion
		s.AwaitingConfidence = true
		extracted = s.ExtractedText
		modelUsed = selectedModel(s)
		return nil
	}); uerr != nil {
		return uerr
	}

	c.log.Info("evaluation complete",
		zap.Float64("probability", ev.Probability),
		zap.String("uncertainty", string(ev.Uncertainty)),
	)

	entry := model.LogEntry{
		EventType:           model.EventEvaluationEnded,
		ModelUsed:           model.Ptr(modelUsed),
		AIOutputProbability: model.Ptr(ev.Probability),
		AIOutputResponse:    model.Ptr(ev.Report),
		AIUncertainty:       model.Ptr(string(ev.Uncertainty)),
	}
	if ev.Conclusion != "" {
		entry.AIOutputConclusion = model.Ptr(ev.Conclusion)
	}
	if extracted != "" {
		entry.ExtractedText = model.Ptr(extracted)
	}
	return c.events.Append(ctx, entry)
}

// MarkResultShown stamps the first time a successful evaluation result is
// displayed; decision latency is measured from this instant.
func (c *Controller) MarkResultShown(ctx context.Context) error {
	return c.store.Update(ctx, func(s *model.SessionState) error {
		if s.EvaluationResult == "" || model.IsErrorResult(s.EvaluationResult) {
			return nil
		}
		if s.ResultShownAt == nil {
			now := time.Now().UTC()
			s.ResultShownAt = &now
		}
		return nil
	})
}

// SubmitDecision records the operator's confidence and judgement, derives
// user_action / correct / decision_time_ms, appends the decision entry and
// re-opens the session for the next trial.
func (c *Controller) SubmitDecision(ctx context.Context, confidence int, judgement model.Judgement) error {
	state, err := c.store.State(ctx)
	if err != nil {
		return err
	}

	judgedAI := judgement == model.JudgementAI

	action := model.UserActionIgnore
	var probability *float64
	if p, ok := model.ProbabilityFromTagged(state.EvaluationResult); ok {
		probability = &p
		action = eval.UserAction(p, judgedAI)
	}

	var decisionTime *int64
	if state.ResultShownAt != nil {
		decisionTime = model.Ptr(time.Since(*state.ResultShownAt).Milliseconds())
	}

	entry := model.LogEntry{
		EventType:      model.EventDecision,
		ModelUsed:      model.Ptr(selectedModel(&state)),
		UserConfidence: model.Ptr(eval.NormalizeConfidence(confidence)),
		UserDecision:   model.Ptr(string(judgement)),
		DecisionTimeMS: decisionTime,
		UserAction:     model.Ptr(string(action)),
		Correct:        eval.Correctness(state.GroundTruth, judgedAI),
	}
	if state.ExtractedText != "" {
		entry.ExtractedText = model.Ptr(state.ExtractedText)
	}
	if err := c.events.Append(ctx, entry); err != nil {
		return err
	}

	if probability != nil {
		c.log.Info("decision recorded",
			zap.String("judgement", string(judgement)),
			zap.String("user_action", string(action)),
			zap.Float64("probability", *probability),
		)
	}

	return c.store.Update(ctx, func(s *model.SessionState) error {
		s.AwaitingConfidence = false
		s.ResultShownAt = nil
		return nil
	})
}

// ResetContext is the operator's manual reset: context, text and evaluation
// are cleared together and the confidence gate re-opens.
func (c *Controller) ResetContext(ctx context.Context) error {
	return c.store.Update(ctx, func(s *model.SessionState) error {
		clearContext(s)
		s.AwaitingConfidence = false
		return nil
	})
}

// Settings is a partial update of the operator-facing toggles.
type Settings struct {
	Model             *string `json:"model,omitempty"`
	DebugMode         *bool   `json:"debug_mode,omitempty"`
	UseStoredResponse *bool   `json:"use_stored_response,omitempty"`
	UserAlone         *bool   `json:"user_alone,omitempty"`
}

// ApplySettings writes the provided toggles in one update.
func (c *Controller) ApplySettings(ctx context.Context, settings Settings) error {
	return c.store.Update(ctx, func(s *model.SessionState) error {
		if settings.Model != nil {
			s.SelectedModel = *settings.Model
		}
		if settings.DebugMode != nil {
			s.DebugMode = *settings.DebugMode
		}
		if settings.UseStoredResponse != nil {
			s.UseStoredResponse = *settings.UseStoredResponse
		}
		if settings.UserAlone != nil {
			s.UserAlone = *settings.UserAlone
		}
		return nil
	})
}

func (c *Controller) clearProcessing(ctx context.Context) {
	_ = c.store.Update(ctx, func(s *model.SessionState) error {
		s.Processing = false
		return nil
	})
}

// failCall persists the error state for a failed model call. The message
// stays visible until a new successful attempt or an explicit reset; nothing
// is retried automatically and no log entry is produced.
func (c *Controller) failCall(ctx context.Context, callErr error, isEvaluation bool) error {
	c.log.Error("model call failed", zap.Error(callErr))
	if uerr := c.store.Update(ctx, func(s *model.SessionState) error {
		s.Processing = false
		s.ErrorMessage = transportErrMsg
		if isEvaluation {
			s.EvaluationResult = model.TaggedError(transportErrMsg)
			s.EvaluationConclusion = ""
		}
		return nil
	}); uerr != nil {
		return uerr
	}
	return callErr
}

func selectedModel(s *model.SessionState) string {
	if s.SelectedModel != "" {
		return s.SelectedModel
	}
	return DefaultModel
}

// clearContext wipes the capture context and everything derived from it.
// Callers bundle this with their own field changes inside a single Update so
// observers never see a partial clear.
func clearContext(s *model.SessionState) {
	s.ContextImage = ""
	s.PageURL = ""
	s.CapturedAt = nil
	s.CaptureName = ""
	s.ExtractedText = ""
	s.TextSource = ""
	s.EvaluationResult = ""
	s.EvaluationConclusion = ""
}
