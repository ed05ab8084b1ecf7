package extraction

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/signald/internal/llm"
	"github.com/fyrsmithlabs/signald/internal/logging"
	"github.com/fyrsmithlabs/signald/internal/secrets"
	"github.com/fyrsmithlabs/signald/internal/signal"
	"go.uber.org/zap"
)

const (
	// MinInputLength is the shortest trimmed verbatim worth a model call.
	MinInputLength = 10

	defaultMaxTokens = 500
)

// Fields is the extraction result. Every field may be nil.
type Fields struct {
	Severity       *signal.Severity  `json:"severity"`
	Frequency      *signal.Frequency `json:"frequency"`
	UserSegment    *string           `json:"userSegment"`
	Interpretation *string           `json:"interpretation"`
}

// Empty reports whether nothing was extracted.
func (f Fields) Empty() bool {
	return f.Severity == nil && f.Frequency == nil && f.UserSegment == nil && f.Interpretation == nil
}

// Extractor runs field extraction.
type Extractor struct {
	completer llm.Completer
	redactor  secrets.Redactor
	logger    *zap.Logger
	maxTokens int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRedactor scrubs credentials from verbatim text before the model call.
func WithRedactor(r secrets.Redactor) Option {
	return func(e *Extractor) { e.redactor = r }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(e *Extractor) { e.maxTokens = n }
}

// New creates an Extractor. A nil completer makes every extraction return
// empty Fields.
func New(completer llm.Completer, logger *zap.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Extractor{
		completer: completer,
		redactor:  secrets.Noop{},
		logger:    logger.Named("extraction"),
		maxTokens: defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// rawFields mirrors the model's JSON. Values are strings so that unexpected
// types fail the decode instead of panicking later.
type rawFields struct {
	Severity       *string `json:"severity"`
	Frequency      *string `json:"frequency"`
	UserSegment    *string `json:"userSegment"`
	Interpretation *string `json:"interpretation"`
}

// Extract returns the fields the model finds in verbatim.
func (e *Extractor) Extract(ctx context.Context, verbatim string) Fields {
	text := strings.TrimSpace(verbatim)
	if utf8.RuneCountInString(text) < MinInputLength || e.completer == nil {
		ExtractionsTotal.WithLabelValues(outcomeSkipped).Inc()
		return Fields{}
	}

	scrubbed := e.redactor.Redact(text)
	if n := scrubbed.Total(); n > 0 {
		e.logger.Info("redacted secrets before extraction",
			zap.Int("count", n),
			zap.String("signal.id", logging.SignalIDFromContext(ctx)))
	}

	out, err := e.completer.Complete(ctx, systemPrompt, userPromptPrefix+scrubbed.Content, e.maxTokens)
	if err != nil {
		e.fail(ctx, "completion failed", err)
		return Fields{}
	}

	var raw rawFields
	if err := llm.DecodeJSON(out, &raw); err != nil {
		e.fail(ctx, "malformed model output", err)
		return Fields{}
	}

	ExtractionsTotal.WithLabelValues(outcomeExtracted).Inc()
	return normalize(raw)
}

func (e *Extractor) fail(ctx context.Context, msg string, err error) {
	ExtractionsTotal.WithLabelValues(outcomeFailed).Inc()
	e.logger.Warn(msg,
		zap.String("signal.id", logging.SignalIDFromContext(ctx)),
		zap.Error(err))
}

// normalize drops enum values outside the closed vocabulary and empty
// strings.
func normalize(raw rawFields) Fields {
	var f Fields
	if raw.Severity != nil {
		f.Severity = signal.ParseSeverity(*raw.Severity)
	}
	if raw.Frequency != nil {
		f.Frequency = signal.ParseFrequency(*raw.Frequency)
	}
	f.UserSegment = nonEmpty(raw.UserSegment)
	f.Interpretation = nonEmpty(raw.Interpretation)
	return f
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || strings.EqualFold(v, "null") {
		return nil
	}
	return &v
}
