package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tmoreaux/detectlab/internal/eventlog"
	"github.com/tmoreaux/detectlab/internal/model"
	"github.com/tmoreaux/detectlab/internal/session"
)

// StateView is the wire form of the session state. The context image itself
// never crosses the API back out; the panel only needs to know one exists.
type StateView struct {
	SessionID            string           `json:"session_id"`
	HasContext           bool             `json:"has_context"`
	PageURL              string           `json:"page_url,omitempty"`
	CaptureName          string           `json:"capture_name,omitempty"`
	CapturedAt           *time.Time       `json:"captured_at,omitempty"`
	ExtractedText        string           `json:"extracted_text,omitempty"`
	TextSource           model.TextSource `json:"text_source,omitempty"`
	EvaluationResult     string           `json:"evaluation_result,omitempty"`
	EvaluationConclusion string           `json:"evaluation_conclusion,omitempty"`
	SelectedModel        string           `json:"selected_model,omitempty"`
	DebugMode            bool             `json:"debug_mode"`
	UseStoredResponse    bool             `json:"use_stored_response"`
	UserAlone            bool             `json:"user_alone"`
	Condition            model.Condition  `json:"condition"`
	Processing           bool             `json:"processing"`
	ErrorMessage         string           `json:"error_message,omitempty"`
	AwaitingConfidence   bool             `json:"awaiting_confidence"`
	CurrentTrialID       *int             `json:"current_trial_id,omitempty"`
	CurrentPostURL       string           `json:"current_post_url,omitempty"`
}

func viewOf(s model.SessionState) StateView {
	return StateView{
		SessionID:            s.SessionID,
		HasContext:           s.ContextImage != "",
		PageURL:              s.PageURL,
		CaptureName:          s.CaptureName,
		CapturedAt:           s.CapturedAt,
		ExtractedText:        s.ExtractedText,
		TextSource:           s.TextSource,
		EvaluationResult:     s.EvaluationResult,
		EvaluationConclusion: s.EvaluationConclusion,
		SelectedModel:        s.SelectedModel,
		DebugMode:            s.DebugMode,
		UseStoredResponse:    s.UseStoredResponse,
		UserAlone:            s.UserAlone,
		Condition:            s.Condition(),
		Processing:           s.Processing,
		ErrorMessage:         s.ErrorMessage,
		AwaitingConfidence:   s.AwaitingConfidence,
		CurrentTrialID:       s.CurrentTrialID,
		CurrentPostURL:       s.CurrentPostURL,
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusBody{Status: "ok"})
}

// handleState returns the current state. Fetching the state is how the panel
// renders, so a visible successful result gets its shown-timestamp here.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.MarkResultShown(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	state, err := s.controller.State(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(state))
}

func (s *Server) handleNavigation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "url is required"})
		return
	}
	if err := s.controller.Navigated(r.Context(), req.URL); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusBody{Status: "ok"})
}

func (s *Server) handleTrialStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TabID int    `json:"tab_id"`
		URL   string `json:"url"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "url is required"})
		return
	}
	res, err := s.controller.StartTrial(r.Context(), req.TabID, req.URL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePostEdited(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TabID     int    `json:"tab_id"`
		URL       string `json:"url"`
		AIVariant bool   `json:"ai_variant"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "url is required"})
		return
	}
	if err := s.controller.PostEdited(r.Context(), req.TabID, req.URL, req.AIVariant); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusBody{Status: "ok"})
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Image       string `json:"image"`
		URL         string `json:"url"`
		CaptureName string `json:"capture_name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Image == "" || req.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "image and url are required"})
		return
	}
	if err := s.controller.CaptureContext(r.Context(), req.Image, req.URL, req.CaptureName); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusBody{Status: "ok"})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Image string `json:"image"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Image == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "image is required"})
		return
	}
	if err := s.controller.ExtractText(r.Context(), req.Image); err != nil {
		s.writeError(w, r, err)
		return
	}
	state, err := s.controller.State(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"extracted_text": state.ExtractedText})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "text is required"})
		return
	}
	if err := s.controller.Evaluate(r.Context(), req.Text); err != nil {
		s.writeError(w, r, err)
		return
	}
	state, err := s.controller.State(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"result":     state.EvaluationResult,
		"conclusion": state.EvaluationConclusion,
	})
}

func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.controller.SetExtractedText(r.Context(), req.Text); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusBody{Status: "ok"})
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Confidence int    `json:"confidence"`
		Judgement  string `json:"judgement"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	var judgement model.Judgement
	switch req.Judgement {
	case string(model.JudgementAI):
		judgement = model.JudgementAI
	case string(model.JudgementHuman):
		judgement = model.JudgementHuman
	default:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: `judgement must be "AI" or "Human"`})
		return
	}
	if req.Confidence < 0 || req.Confidence > 100 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "confidence must be between 0 and 100"})
		return
	}
	if err := s.controller.SubmitDecision(r.Context(), req.Confidence, judgement); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusBody{Status: "ok"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.ResetContext(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusBody{Status: "ok"})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	var req session.Settings
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.controller.ApplySettings(r.Context(), req); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusBody{Status: "ok"})
}

func (s *Server) handleLogsExport(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.Logs(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := eventlog.WriteCSV(&buf, entries); err != nil {
		s.writeError(w, r, err)
		return
	}

	filename := fmt.Sprintf("experiment_log_%s.csv", time.Now().UTC().Format("2006-01-02_15-04-05"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.log.Warn("failed to write export body", zap.Error(err))
	}
}

func (s *Server) handleLogsCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.LogCount(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (s *Server) handleLogsClear(w http.ResponseWriter, r *http.Request) {
	if err := s.events.Clear(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info("event log cleared")
	writeJSON(w, http.StatusOK, statusBody{Status: "ok"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}
