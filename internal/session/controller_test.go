package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmoreaux/detectlab/internal/eventlog"
	"github.com/tmoreaux/detectlab/internal/llm"
	"github.com/tmoreaux/detectlab/internal/model"
	"github.com/tmoreaux/detectlab/internal/posts"
	"github.com/tmoreaux/detectlab/internal/store"
)

// fakeOllama serves canned /api/generate responses, switching on whether the
// incoming prompt is an extraction or an evaluation request.
func fakeOllama(t *testing.T, evaluationBody string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Prompt string   `json:"prompt"`
			Images []string `json:"images"`
			Format string   `json:"format"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var text string
		if req.Format == "json" {
			text = evaluationBody
		} else {
			text = "extracted post body"
		}
		resp := map[string]any{"model": "gemma3", "response": text, "done": true}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func newTestController(t *testing.T, serverURL string) (*Controller, store.Store) {
	t.Helper()
	st := store.NewMemory()
	provider, err := llm.NewProvider(llm.Config{
		Provider:   "ollama",
		Model:      "gemma3",
		BaseURL:    serverURL,
		Timeout:    5 * time.Second,
		RatePerSec: 100,
	})
	require.NoError(t, err)
	events := eventlog.New(st, nil)
	return New(st, provider, events, nil), st
}

func eventTypes(t *testing.T, ctx context.Context, st store.Store) []model.EventType {
	t.Helper()
	entries, err := st.Logs(ctx)
	require.NoError(t, err)
	out := make([]model.EventType, len(entries))
	for i, e := range entries {
		out[i] = e.EventType
	}
	return out
}

func TestController_CleanRun(t *testing.T) {
	ctx := context.Background()
	srv := fakeOllama(t, `{"analysis_report":"Repetitive phrasing throughout.","final_score":{"probability":0.75,"conclusion":"likely AI"}}`)
	defer srv.Close()

	ctrl, st := newTestController(t, srv.URL)

	require.NoError(t, ctrl.Navigated(ctx, "https://forum.example/post/1"))
	res, err := ctrl.StartTrial(ctx, 7, "https://forum.example/post/1")
	require.NoError(t, err)
	assert.Equal(t, 0, res.TrialID)
	assert.False(t, res.AlreadyStarted)

	require.NoError(t, ctrl.CaptureContext(ctx, "aW1hZ2U=", "https://forum.example/post/1", ""))
	require.NoError(t, ctrl.ExtractText(ctx, "aW1hZ2U="))

	state, err := st.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, "extracted post body", state.ExtractedText)
	assert.Equal(t, model.TextSourceExtracted, state.TextSource)

	require.NoError(t, ctrl.Evaluate(ctx, state.ExtractedText))

	state, err = st.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, "[PROB:0.75]Repetitive phrasing throughout.", state.EvaluationResult)
	assert.Equal(t, "likely AI", state.EvaluationConclusion)
	assert.True(t, state.AwaitingConfidence)
	assert.False(t, state.Processing)

	assert.Equal(t, []model.EventType{
		model.EventStart,
		model.EventCaptureContext,
		model.EventExtractTextInitiated,
		model.EventExtractTextEnded,
		model.EventEvaluateClicked,
		model.EventEvaluationEnded,
	}, eventTypes(t, ctx, st))

	entries, err := st.Logs(ctx)
	require.NoError(t, err)
	last := entries[len(entries)-1]
	require.NotNil(t, last.AIOutputProbability)
	assert.InDelta(t, 0.75, *last.AIOutputProbability, 1e-9)
	require.NotNil(t, last.AIUncertainty)
	assert.Equal(t, "medium", *last.AIUncertainty)
	require.NotNil(t, last.TrialID)
	assert.Equal(t, 0, *last.TrialID)
}

func TestController_NavigationInvalidatesContext(t *testing.T) {
	ctx := context.Background()
	ctrl, st := newTestController(t, "http://127.0.0.1:1")

	require.NoError(t, ctrl.Navigated(ctx, "https://forum.example/a"))
	require.NoError(t, ctrl.CaptureContext(ctx, "aW1hZ2U=", "https://forum.example/a", ""))

	first, err := st.State(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, first.ContextImage)

	require.NoError(t, ctrl.Navigated(ctx, "https://forum.example/b"))

	state, err := st.State(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.ContextImage)
	assert.Empty(t, state.PageURL)
	assert.Empty(t, state.ExtractedText)
	assert.Empty(t, state.EvaluationResult)
	assert.Empty(t, state.EvaluationConclusion)
	assert.NotEqual(t, first.SessionID, state.SessionID)

	// Same URL keeps the context but still rotates the session.
	require.NoError(t, ctrl.CaptureContext(ctx, "aW1hZ2U=", "https://forum.example/b", ""))
	require.NoError(t, ctrl.Navigated(ctx, "https://forum.example/b"))
	state, err = st.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, "aW1hZ2U=", state.ContextImage)
}

func TestController_LateResponseLandsAfterNavigation(t *testing.T) {
	ctx := context.Background()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprint(w, `{"response":"{\"analysis_report\":\"late\",\"final_score\":{\"probability\":0.75}}"}`)
	}))
	defer srv.Close()

	ctrl, st := newTestController(t, srv.URL)
	require.NoError(t, ctrl.Navigated(ctx, "https://forum.example/a"))
	require.NoError(t, ctrl.CaptureContext(ctx, "aW1hZ2U=", "https://forum.example/a", ""))

	done := make(chan error, 1)
	go func() { done <- ctrl.Evaluate(ctx, "slow text") }()

	require.Eventually(t, func() bool {
		s, err := st.State(ctx)
		return err == nil && s.Processing
	}, 2*time.Second, 5*time.Millisecond)

	// Navigate away while the model call is in flight. The context is
	// invalidated immediately.
	require.NoError(t, ctrl.Navigated(ctx, "https://forum.example/b"))
	state, err := st.State(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.ContextImage)
	assert.Empty(t, state.EvaluationResult)

	close(release)
	require.NoError(t, <-done)

	// The late response is still written against the current state.
	state, err = st.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, "[PROB:0.75]late", state.EvaluationResult)
	assert.True(t, state.AwaitingConfidence)
	assert.False(t, state.Processing)
	assert.Empty(t, state.ContextImage)
}

func TestController_MalformedEvaluationResponse(t *testing.T) {
	ctx := context.Background()
	srv := fakeOllama(t, "this is not json at all")
	defer srv.Close()

	ctrl, st := newTestController(t, srv.URL)
	require.NoError(t, ctrl.Navigated(ctx, "https://forum.example/a"))
	require.NoError(t, ctrl.CaptureContext(ctx, "aW1hZ2U=", "https://forum.example/a", ""))

	err := ctrl.Evaluate(ctx, "some text")
	require.Error(t, err)

	state, err := st.State(ctx)
	require.NoError(t, err)
	assert.True(t, model.IsErrorResult(state.EvaluationResult))
	assert.False(t, state.AwaitingConfidence)
	assert.False(t, state.Processing)
	assert.NotEmpty(t, state.ErrorMessage)

	// evaluate_clicked is logged, evaluation_ended is not.
	types := eventTypes(t, ctx, st)
	assert.Contains(t, types, model.EventEvaluateClicked)
	assert.NotContains(t, types, model.EventEvaluationEnded)
}

func TestController_TransportFailure(t *testing.T) {
	ctx := context.Background()
	ctrl, st := newTestController(t, "http://127.0.0.1:1")
	require.NoError(t, ctrl.Navigated(ctx, "https://forum.example/a"))
	require.NoError(t, ctrl.CaptureContext(ctx, "aW1hZ2U=", "https://forum.example/a", ""))

	err := ctrl.Evaluate(ctx, "text")
	require.Error(t, err)
	assert.True(t, llm.IsTransport(err))

	state, err := st.State(ctx)
	require.NoError(t, err)
	assert.True(t, model.IsErrorResult(state.EvaluationResult))
	assert.False(t, state.Processing)

	// A later successful attempt replaces the error result.
	srv := fakeOllama(t, `{"final_score":{"probability":0.9}}`)
	defer srv.Close()
	ctrl2 := New(st, mustProvider(t, srv.URL), eventlog.New(st, nil), nil)
	require.NoError(t, ctrl2.Evaluate(ctx, "text"))

	state, err = st.State(ctx)
	require.NoError(t, err)
	assert.False(t, model.IsErrorResult(state.EvaluationResult))
	assert.Empty(t, state.ErrorMessage)
}

func mustProvider(t *testing.T, baseURL string) llm.Provider {
	t.Helper()
	p, err := llm.NewProvider(llm.Config{
		Provider:   "ollama",
		Model:      "gemma3",
		BaseURL:    baseURL,
		Timeout:    5 * time.Second,
		RatePerSec: 100,
	})
	require.NoError(t, err)
	return p
}

func TestController_EvaluateWithoutContext(t *testing.T) {
	ctx := context.Background()
	ctrl, st := newTestController(t, "http://127.0.0.1:1")
	require.NoError(t, ctrl.Navigated(ctx, "https://forum.example/a"))

	err := ctrl.Evaluate(ctx, "orphan text")
	require.Error(t, err)
	assert.True(t, IsMissingPrecondition(err))

	// A rejected attempt leaves no trace: no log entry, no state change.
	assert.Empty(t, eventTypes(t, ctx, st))

	state, err := st.State(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.EvaluationResult)
	assert.Empty(t, state.LastEvaluatedText)
	assert.False(t, state.Processing)
}

func TestController_BusyRejection(t *testing.T) {
	ctx := context.Background()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprint(w, `{"response":"{\"final_score\":{\"probability\":0.5}}"}`)
	}))
	defer srv.Close()
	defer close(release)

	ctrl, st := newTestController(t, srv.URL)
	require.NoError(t, ctrl.Navigated(ctx, "https://forum.example/a"))
	require.NoError(t, ctrl.CaptureContext(ctx, "aW1hZ2U=", "https://forum.example/a", ""))

	done := make(chan error, 1)
	go func() { done <- ctrl.Evaluate(ctx, "slow text") }()

	// Wait for the in-flight call to take the processing slot.
	require.Eventually(t, func() bool {
		s, err := st.State(ctx)
		return err == nil && s.Processing
	}, 2*time.Second, 5*time.Millisecond)

	err := ctrl.Evaluate(ctx, "second text")
	assert.ErrorIs(t, err, ErrBusy)
	err = ctrl.ExtractText(ctx, "aW1hZ2U=")
	assert.ErrorIs(t, err, ErrBusy)

	release <- struct{}{}
	require.NoError(t, <-done)
}

func TestController_TrialIDsAndStartedPages(t *testing.T) {
	ctx := context.Background()
	ctrl, st := newTestController(t, "http://127.0.0.1:1")
	require.NoError(t, ctrl.Navigated(ctx, "https://forum.example/a"))

	res, err := ctrl.StartTrial(ctx, 1, "https://forum.example/a")
	require.NoError(t, err)
	assert.Equal(t, 0, res.TrialID)

	// Repeat start on the same page does not mint a new id or log again.
	res, err = ctrl.StartTrial(ctx, 1, "https://forum.example/a")
	require.NoError(t, err)
	assert.True(t, res.AlreadyStarted)
	assert.Equal(t, 0, res.TrialID)

	res, err = ctrl.StartTrial(ctx, 1, "https://forum.example/b")
	require.NoError(t, err)
	assert.Equal(t, 1, res.TrialID)
	assert.False(t, res.AlreadyStarted)

	count := 0
	for _, et := range eventTypes(t, ctx, st) {
		if et == model.EventStart {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestController_GroundTruthFromAssignment(t *testing.T) {
	ctx := context.Background()
	ctrl, st := newTestController(t, "http://127.0.0.1:1")
	require.NoError(t, ctrl.Navigated(ctx, "https://forum.example/a"))

	require.NoError(t, ctrl.PostEdited(ctx, 3, "https://forum.example/a", true))
	_, err := ctrl.StartTrial(ctx, 3, "https://forum.example/a")
	require.NoError(t, err)

	state, err := st.State(ctx)
	require.NoError(t, err)
	require.NotNil(t, state.GroundTruth)
	assert.True(t, *state.GroundTruth)

	entries, err := st.Logs(ctx)
	require.NoError(t, err)
	require.NotNil(t, entries[0].AIGeneratedPost)
	assert.True(t, *entries[0].AIGeneratedPost)
	assert.Equal(t, model.EventPostEdited, entries[0].EventType)
}

func TestController_DecisionDerivation(t *testing.T) {
	ctx := context.Background()
	srv := fakeOllama(t, `{"analysis_report":"r","final_score":{"probability":0.7}}`)
	defer srv.Close()

	ctrl, st := newTestController(t, srv.URL)
	require.NoError(t, ctrl.Navigated(ctx, "https://forum.example/a"))
	require.NoError(t, ctrl.PostEdited(ctx, 1, "https://forum.example/a", true))
	_, err := ctrl.StartTrial(ctx, 1, "https://forum.example/a")
	require.NoError(t, err)
	require.NoError(t, ctrl.CaptureContext(ctx, "aW1hZ2U=", "https://forum.example/a", ""))
	require.NoError(t, ctrl.Evaluate(ctx, "the text"))
	require.NoError(t, ctrl.MarkResultShown(ctx))

	require.NoError(t, ctrl.SubmitDecision(ctx, 80, model.JudgementAI))

	entries, err := st.Logs(ctx)
	require.NoError(t, err)
	last := entries[len(entries)-1]
	require.Equal(t, model.EventDecision, last.EventType)
	require.NotNil(t, last.UserConfidence)
	assert.InDelta(t, 0.8, *last.UserConfidence, 1e-9)
	require.NotNil(t, last.UserDecision)
	assert.Equal(t, "AI", *last.UserDecision)
	require.NotNil(t, last.UserAction)
	assert.Equal(t, "accept", *last.UserAction) // model leaned AI, operator agreed
	require.NotNil(t, last.Correct)
	assert.Equal(t, "YES", *last.Correct)
	require.NotNil(t, last.DecisionTimeMS)
	assert.GreaterOrEqual(t, *last.DecisionTimeMS, int64(0))

	state, err := st.State(ctx)
	require.NoError(t, err)
	assert.False(t, state.AwaitingConfidence)
	assert.Nil(t, state.ResultShownAt)
}

func TestController_DecisionWithoutResultShown(t *testing.T) {
	ctx := context.Background()
	srv := fakeOllama(t, `{"final_score":{"probability":0.5}}`)
	defer srv.Close()

	ctrl, st := newTestController(t, srv.URL)
	require.NoError(t, ctrl.Navigated(ctx, "https://forum.example/a"))
	require.NoError(t, ctrl.CaptureContext(ctx, "aW1hZ2U=", "https://forum.example/a", ""))
	require.NoError(t, ctrl.Evaluate(ctx, "text"))

	require.NoError(t, ctrl.SubmitDecision(ctx, 50, model.JudgementHuman))

	entries, err := st.Logs(ctx)
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Nil(t, last.DecisionTimeMS)
	require.NotNil(t, last.UserAction)
	assert.Equal(t, "ignore", *last.UserAction) // probability exactly 0.5 has no lean
	assert.Nil(t, last.Correct)                 // no ground truth recorded
}

func TestController_EvaluationAttemptCounter(t *testing.T) {
	ctx := context.Background()
	srv := fakeOllama(t, `{"final_score":{"probability":0.3}}`)
	defer srv.Close()

	ctrl, st := newTestController(t, srv.URL)
	require.NoError(t, ctrl.Navigated(ctx, "https://forum.example/a"))
	require.NoError(t, ctrl.CaptureContext(ctx, "aW1hZ2U=", "https://forum.example/a", ""))

	require.NoError(t, ctrl.Evaluate(ctx, "same text"))
	state, err := st.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, state.EvaluationAttempt)

	require.NoError(t, ctrl.Evaluate(ctx, "same text"))
	state, err = st.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, state.EvaluationAttempt)

	require.NoError(t, ctrl.Evaluate(ctx, "different text"))
	state, err = st.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, state.EvaluationAttempt)
	assert.Equal(t, "different text", state.LastEvaluatedText)
}

func TestController_StoredResponse(t *testing.T) {
	ctx := context.Background()

	corpus, err := posts.Parse([]byte(strings.TrimSpace(`
- urlMatch: "forum.example/a"
  storedLLMResponseAI:
    analysis_report: "canned AI analysis"
    final_score:
      probability: 0.85
      conclusion: "likely AI"
  storedLLMResponseHuman:
    analysis_report: "canned human analysis"
    final_score:
      probability: 0.15
`)))
	require.NoError(t, err)

	st := store.NewMemory()
	// Unreachable provider proves the canned path never touches the network.
	ctrl := New(st, mustProvider(t, "http://127.0.0.1:1"), eventlog.New(st, nil), corpus)

	require.NoError(t, ctrl.Navigated(ctx, "https://forum.example/a"))
	require.NoError(t, ctrl.PostEdited(ctx, 1, "https://forum.example/a", true))
	_, err = ctrl.StartTrial(ctx, 1, "https://forum.example/a")
	require.NoError(t, err)
	require.NoError(t, ctrl.CaptureContext(ctx, "aW1hZ2U=", "forum.example/a", ""))
	require.NoError(t, ctrl.ApplySettings(ctx, Settings{UseStoredResponse: model.Ptr(true)}))

	require.NoError(t, ctrl.Evaluate(ctx, "the post text"))

	state, err := st.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, "[PROB:0.85]canned AI analysis", state.EvaluationResult)
	assert.Equal(t, "likely AI", state.EvaluationConclusion)
	assert.True(t, state.AwaitingConfidence)
}

func TestController_ResetContext(t *testing.T) {
	ctx := context.Background()
	srv := fakeOllama(t, `{"final_score":{"probability":0.9}}`)
	defer srv.Close()

	ctrl, st := newTestController(t, srv.URL)
	require.NoError(t, ctrl.Navigated(ctx, "https://forum.example/a"))
	require.NoError(t, ctrl.CaptureContext(ctx, "aW1hZ2U=", "https://forum.example/a", ""))
	require.NoError(t, ctrl.Evaluate(ctx, "text"))

	require.NoError(t, ctrl.ResetContext(ctx))

	state, err := st.State(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.ContextImage)
	assert.Empty(t, state.ExtractedText)
	assert.Empty(t, state.EvaluationResult)
	assert.False(t, state.AwaitingConfidence)
}

func TestController_ApplySettingsPartial(t *testing.T) {
	ctx := context.Background()
	ctrl, st := newTestController(t, "http://127.0.0.1:1")

	require.NoError(t, ctrl.ApplySettings(ctx, Settings{
		Model:     model.Ptr("llava"),
		DebugMode: model.Ptr(true),
	}))
	require.NoError(t, ctrl.ApplySettings(ctx, Settings{UserAlone: model.Ptr(true)}))

	state, err := st.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, "llava", state.SelectedModel)
	assert.True(t, state.DebugMode)
	assert.True(t, state.UserAlone)
	assert.Equal(t, model.ConditionUserAlone, state.Condition())
}
