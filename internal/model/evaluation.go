package model

import (
	"strconv"
	"strings"
)

// Result tag prefixes. The evaluation result is persisted as a single tagged
// string so the rendering surface can distinguish success from failure
// without a second field.
const (
	ProbTagPrefix  = "[PROB:"
	ErrorTagPrefix = "[ERROR]"
)

// Evaluation is the parsed outcome of one authorship judgement call.
type Evaluation struct {
	// Probability that the text is AI-generated, in [0,1].
	Probability float64 `json:"probability"`

	// Report is the markdown analysis shown to the operator.
	Report string `json:"report"`

	// Conclusion is the model's one-paragraph verdict, empty when absent.
	Conclusion string `json:"conclusion,omitempty"`

	Uncertainty Uncertainty `json:"uncertainty"`
}

// Tagged renders the evaluation as its persisted string form.
func (e *Evaluation) Tagged() string {
	return ProbTagPrefix + strconv.FormatFloat(e.Probability, 'g', -1, 64) + "]" + e.Report
}

// TaggedError renders a failed evaluation as its persisted string form.
func TaggedError(msg string) string {
	return ErrorTagPrefix + msg
}

// IsErrorResult reports whether a persisted evaluation result carries the
// error tag.
func IsErrorResult(result string) bool {
	return strings.HasPrefix(result, ErrorTagPrefix)
}

// ProbabilityFromTagged recovers the probability from a persisted result
// string. The second return is false for error results, untagged strings and
// unparseable numbers.
func ProbabilityFromTagged(result string) (float64, bool) {
	if !strings.HasPrefix(result, ProbTagPrefix) {
		return 0, false
	}
	rest := result[len(ProbTagPrefix):]
	end := strings.IndexByte(rest, ']')
	if end < 0 {
		return 0, false
	}
	p, err := strconv.ParseFloat(rest[:end], 64)
	if err != nil {
		return 0, false
	}
	return p, true
}
