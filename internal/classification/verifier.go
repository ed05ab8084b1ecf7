package classification

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/signald/internal/llm"
	"github.com/fyrsmithlabs/signald/internal/secrets"
	"github.com/fyrsmithlabs/signald/internal/signal"
	"go.uber.org/zap"
)

// Verdict is the verifier's answer for one signal and initiative.
type Verdict struct {
	Belongs    bool    `json:"belongs"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Verifier decides ambiguous matches.
type Verifier interface {
	Verify(ctx context.Context, verbatim string, initiative *signal.Initiative) (Verdict, error)
}

const verifierSystemPrompt = `You decide whether a piece of product feedback belongs to an existing initiative.

Respond with a single JSON object and nothing else:
{"belongs": true or false, "confidence": number between 0 and 1, "reason": "one short sentence"}

"belongs" is true only when the feedback describes a problem or request the
initiative, as described, would address.`

// LLMVerifier asks a generative model.
type LLMVerifier struct {
	completer llm.Completer
	redactor  secrets.Redactor
	logger    *zap.Logger
}

// NewLLMVerifier creates a verifier. redactor may be nil.
func NewLLMVerifier(completer llm.Completer, redactor secrets.Redactor, logger *zap.Logger) *LLMVerifier {
	if redactor == nil {
		redactor = secrets.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMVerifier{completer: completer, redactor: redactor, logger: logger.Named("verifier")}
}

// Verify implements Verifier.
func (v *LLMVerifier) Verify(ctx context.Context, verbatim string, initiative *signal.Initiative) (Verdict, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Initiative: %s\n", initiative.Name)
	if initiative.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", initiative.Description)
	}
	fmt.Fprintf(&b, "\nFeedback:\n%s\n", v.redactor.Redact(verbatim).Content)

	out, err := v.completer.Complete(ctx, verifierSystemPrompt, b.String(), 300)
	if err != nil {
		return Verdict{}, fmt.Errorf("verifier completion: %w", err)
	}

	var verdict Verdict
	if err := llm.DecodeJSON(out, &verdict); err != nil {
		return Verdict{}, fmt.Errorf("verifier output: %w", err)
	}
	verdict.Confidence = clamp01(verdict.Confidence)
	return verdict, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

var _ Verifier = (*LLMVerifier)(nil)
