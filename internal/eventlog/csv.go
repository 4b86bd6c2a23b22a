package eventlog

import (
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/tmoreaux/detectlab/internal/model"
)

// ExportColumns is the fixed CSV layout consumed by the analysis notebooks.
// Order matters; do not reorder without migrating the downstream scripts.
var ExportColumns = []string{
	"timestamp", "event_type", "session_id", "trial_id", "post",
	"condition", "model_used", "ai_generated_post",
	"user_confidence", "user_decision", "decision_time_ms",
	"user_action", "correct",
	"ai_output_probability", "ai_output_response", "ai_output_conclusion", "ai_uncertainty",
	"extracted_text", "capture_name", "notes",
}

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// WriteCSV renders entries in the fixed column order. Every data field is
// double-quoted with embedded quotes doubled; missing fields render as empty
// strings. Rows are CRLF-separated to match the original export files.
//
// encoding/csv is deliberately not used here: it quotes only when required,
// and the downstream tooling expects every field quoted.
func WriteCSV(w io.Writer, entries []model.LogEntry) error {
	var b strings.Builder
	b.WriteString(strings.Join(ExportColumns, ","))

	for i := range entries {
		b.WriteString("\r\n")
		for j, col := range ExportColumns {
			if j > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(fieldValue(&entries[i], col), `"`, `""`))
			b.WriteByte('"')
		}
	}

	_, err := io.WriteString(w, b.String())
	return eris.Wrap(err, "eventlog: write csv")
}

func fieldValue(e *model.LogEntry, column string) string {
	switch column {
	case "timestamp":
		return e.Timestamp.UTC().Format(timestampLayout)
	case "event_type":
		return string(e.EventType)
	case "session_id":
		return e.SessionID
	case "trial_id":
		if e.TrialID != nil {
			return strconv.Itoa(*e.TrialID)
		}
	case "post":
		if e.Post != nil {
			return *e.Post
		}
	case "condition":
		return string(e.Condition)
	case "model_used":
		if e.ModelUsed != nil {
			return *e.ModelUsed
		}
	case "ai_generated_post":
		if e.AIGeneratedPost != nil {
			return strconv.FormatBool(*e.AIGeneratedPost)
		}
	case "user_confidence":
		if e.UserConfidence != nil {
			return formatFloat(*e.UserConfidence)
		}
	case "user_decision":
		if e.UserDecision != nil {
			return *e.UserDecision
		}
	case "decision_time_ms":
		if e.DecisionTimeMS != nil {
			return strconv.FormatInt(*e.DecisionTimeMS, 10)
		}
	case "user_action":
		if e.UserAction != nil {
			return *e.UserAction
		}
	case "correct":
		if e.Correct != nil {
			return *e.Correct
		}
	case "ai_output_probability":
		if e.AIOutputProbability != nil {
			return formatFloat(*e.AIOutputProbability)
		}
	case "ai_output_response":
		if e.AIOutputResponse != nil {
			return *e.AIOutputResponse
		}
	case "ai_output_conclusion":
		if e.AIOutputConclusion != nil {
			return *e.AIOutputConclusion
		}
	case "ai_uncertainty":
		if e.AIUncertainty != nil {
			return *e.AIUncertainty
		}
	case "extracted_text":
		if e.ExtractedText != nil {
			return *e.ExtractedText
		}
	case "capture_name":
		if e.CaptureName != nil {
			return *e.CaptureName
		}
	case "notes":
		if e.Notes != nil {
			return *e.Notes
		}
	}
	return ""
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
