package logging

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/signald/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	redactedKey     = "[REDACTED]"
	redactedPattern = "[REDACTED:pattern]"
)

// Secret logs a config.Secret as its length only.
func Secret(key string, val config.Secret) zap.Field {
	return RedactedString(key, val.Value())
}

// RedactedString logs a value as its length only.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val))+"]")
}

// Verbatim logs user-supplied feedback text truncated to n runes. Signal text
// is customer content and never logged in full.
func Verbatim(key, val string, n int) zap.Field {
	r := []rune(val)
	if len(r) <= n {
		return zap.String(key, val)
	}
	return zap.String(key, string(r[:n])+"…")
}

// redactionRules is the compiled form of a RedactionConfig.
type redactionRules struct {
	keys     map[string]bool
	patterns []*regexp.Regexp
}

func compileRedaction(cfg RedactionConfig) (redactionRules, error) {
	rules := redactionRules{keys: make(map[string]bool, len(cfg.Fields))}
	if !cfg.Enabled {
		return rules, nil
	}
	for _, f := range cfg.Fields {
		rules.keys[strings.ToLower(f)] = true
	}
	for _, p := range cfg.Patterns {
		if len(p) > maxRedactionPatternLen {
			return rules, fmt.Errorf("redaction pattern too long (max %d chars): %q", maxRedactionPatternLen, p)
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return rules, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		rules.patterns = append(rules.patterns, re)
	}
	return rules, nil
}

func (r redactionRules) sensitiveKey(key string) bool {
	return r.keys[strings.ToLower(key)]
}

func (r redactionRules) sensitiveValue(val string) bool {
	for _, re := range r.patterns {
		if re.MatchString(val) {
			return true
		}
	}
	return false
}

// RedactingEncoder wraps a zapcore.Encoder so that sensitive keys and values
// matching a secret pattern never reach a sink.
type RedactingEncoder struct {
	zapcore.Encoder
	rules redactionRules
}

// NewRedactingEncoder wraps base with the rules in cfg. It fails when a
// pattern does not compile.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	rules, err := compileRedaction(cfg)
	if err != nil {
		return nil, err
	}
	return &RedactingEncoder{Encoder: base, rules: rules}, nil
}

func (e *RedactingEncoder) AddString(key, val string) {
	switch {
	case e.rules.sensitiveKey(key):
		e.Encoder.AddString(key, redactedKey)
	case e.rules.sensitiveValue(val):
		e.Encoder.AddString(key, redactedPattern)
	default:
		e.Encoder.AddString(key, val)
	}
}

func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if e.rules.sensitiveKey(key) || e.rules.sensitiveValue(string(val)) {
		e.Encoder.AddString(key, redactedKey)
		return
	}
	e.Encoder.AddByteString(key, val)
}

func (e *RedactingEncoder) AddBinary(key string, val []byte) {
	if e.rules.sensitiveKey(key) {
		e.Encoder.AddString(key, redactedKey)
		return
	}
	e.Encoder.AddBinary(key, val)
}

func (e *RedactingEncoder) AddReflected(key string, val any) error {
	if e.rules.sensitiveKey(key) {
		e.Encoder.AddString(key, redactedKey)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *RedactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if e.rules.sensitiveKey(key) {
		e.Encoder.AddString(key, redactedKey)
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}

func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.rules.sensitiveKey(key) {
		e.Encoder.AddString(key, redactedKey)
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{Encoder: e.Encoder.Clone(), rules: e.rules}
}

// EncodeEntry routes per-entry fields through the redacting Add* methods
// before the wrapped encoder sees them. The message itself is checked
// against the value patterns too.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	if e.rules.sensitiveValue(ent.Message) {
		ent.Message = redactedPattern
	}
	c := e.Clone().(*RedactingEncoder)
	for i := range fields {
		fields[i].AddTo(c)
	}
	return c.Encoder.EncodeEntry(ent, nil)
}
