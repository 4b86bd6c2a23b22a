// Package eval interprets raw model responses into evaluation results and
// derives the analysis fields recorded with the operator's final decision.
package eval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/tmoreaux/detectlab/internal/model"
)

// FallbackReport is stored when the model returned a score but no readable
// analysis.
const FallbackReport = "No detailed analysis provided."

// DefaultProbability is used when the response carries no usable score, so a
// structurally valid response never drops out of the pipeline.
const DefaultProbability = 0.5

type rawEvaluation struct {
	AnalysisReport json.RawMessage `json:"analysis_report"`
	FinalScore     json.RawMessage `json:"final_score"`
}

type rawFinalScore struct {
	Probability *float64 `json:"probability"`
	Score       *float64 `json:"score"`
	Conclusion  string   `json:"conclusion"`
}

// Parse interprets a model response body as an evaluation. A body that is not
// valid JSON is a fatal parse error for the attempt; no partial result is
// returned.
func Parse(raw []byte) (*model.Evaluation, error) {
	var payload rawEvaluation
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &ParseError{Err: eris.Wrap(err, "eval: response is not valid JSON")}
	}

	probability := DefaultProbability
	conclusion := ""
	if len(payload.FinalScore) > 0 && !bytes.Equal(payload.FinalScore, []byte("null")) {
		var fs rawFinalScore
		if err := json.Unmarshal(payload.FinalScore, &fs); err == nil {
			switch {
			case fs.Probability != nil:
				probability = *fs.Probability
			case fs.Score != nil:
				probability = *fs.Score
			}
			conclusion = fs.Conclusion
		} else {
			// final_score may be a bare number instead of an object.
			var n float64
			if err := json.Unmarshal(payload.FinalScore, &n); err == nil {
				probability = n
			}
		}
	}

	report := buildReport(payload.AnalysisReport)

	return &model.Evaluation{
		Probability: probability,
		Report:      report,
		Conclusion:  conclusion,
		Uncertainty: UncertaintyFor(probability),
	}, nil
}

// buildReport renders analysis_report as markdown. A plain string passes
// through; a keyed mapping becomes bolded section headers in the order the
// model emitted them, with any leading numbering stripped from each key.
func buildReport(raw json.RawMessage) string {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return FallbackReport
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return FallbackReport
		}
		return s
	}

	sections, err := orderedSections(raw)
	if err != nil || len(sections) == 0 {
		return FallbackReport
	}

	var b strings.Builder
	for _, sec := range sections {
		b.WriteString("**" + cleanKey(sec.key) + "**\n" + sec.value + "\n\n")
	}
	report := strings.TrimSpace(b.String())
	if report == "" {
		return FallbackReport
	}
	return report
}

type section struct {
	key   string
	value string
}

// orderedSections walks a JSON object with a token decoder so section order
// is preserved; map unmarshalling would lose it.
func orderedSections(raw json.RawMessage) ([]section, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("eval: analysis_report is neither string nor object")
	}

	var sections []section
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("eval: non-string key in analysis_report")
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		sections = append(sections, section{key: key, value: sectionText(value)})
	}
	return sections, nil
}

func sectionText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// cleanKey strips numbering prefixes like "1. Variety" down to "Variety":
// everything up to and including the first space is dropped. Keys without a
// space pass through unchanged.
func cleanKey(key string) string {
	if i := strings.IndexByte(key, ' '); i >= 0 {
		return key[i+1:]
	}
	return key
}

// UncertaintyFor maps a probability to its uncertainty band. The bands are
// inclusive and checked in order, so the boundary values 0.4 and 0.6 land in
// the high band.
func UncertaintyFor(p float64) model.Uncertainty {
	switch {
	case p >= 0.4 && p <= 0.6:
		return model.UncertaintyHigh
	case (p >= 0.2 && p <= 0.4) || (p >= 0.6 && p <= 0.8):
		return model.UncertaintyMedium
	default:
		return model.UncertaintyLow
	}
}

// UserAction compares the model's lean against the operator's judgement. A
// probability of exactly 0.5 expresses no lean, so agreement is undefined and
// the action is "ignore".
func UserAction(probability float64, judgedAI bool) model.UserAction {
	if probability == 0.5 {
		return model.UserActionIgnore
	}
	modelSaysAI := probability > 0.5
	if modelSaysAI == judgedAI {
		return model.UserActionAccept
	}
	return model.UserActionRefuse
}

// Correctness compares the operator's judgement against ground truth. It
// returns nil when the displayed variant is unknown.
func Correctness(groundTruth *bool, judgedAI bool) *string {
	if groundTruth == nil {
		return nil
	}
	if judgedAI == *groundTruth {
		return model.Ptr("YES")
	}
	return model.Ptr("NO")
}

// NormalizeConfidence maps the operator's 0-100 input to [0,1].
func NormalizeConfidence(confidence int) float64 {
	return float64(confidence) / 100
}
