// internal/logging/redact.go
package logging

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/sitegen/internal/config"
)

// Secret logs a provider key as its length only.
func Secret(key string, val config.Secret) zap.Field {
	if !val.IsSet() {
		return zap.String(key, "")
	}
	return RedactedString(key, val.Value())
}

// RedactedString logs val as a length marker.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val))+"]")
}

// Contact masks a customer phone or email, keeping the last two runes so
// operators can tell records apart.
func Contact(key, val string) zap.Field {
	return zap.String(key, MaskContact(val))
}

// MaskContact hides all but the last two runes of val.
func MaskContact(val string) string {
	if val == "" {
		return ""
	}
	r := []rune(val)
	if len(r) <= 2 {
		return "[REDACTED]"
	}
	return "[REDACTED]" + string(r[len(r)-2:])
}

// RedactingEncoder wraps a zapcore.Encoder to redact sensitive fields.
type RedactingEncoder struct {
	zapcore.Encoder
	redactFields map[string]bool
	redactRegex  []*regexp.Regexp
}

// NewRedactingEncoder wraps an encoder with redaction rules.
// Returns error if any redaction pattern fails to compile.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	if !cfg.Enabled {
		return &RedactingEncoder{Encoder: base}, nil
	}

	fields := make(map[string]bool)
	for _, f := range cfg.Fields {
		fields[strings.ToLower(f)] = true
	}

	patterns := make([]*regexp.Regexp, 0, len(cfg.Patterns))
	for _, p := range cfg.Patterns {
		if len(p) > 200 {
			return nil, fmt.Errorf("redaction pattern too long (max 200 chars): %q", p)
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	return &RedactingEncoder{
		Encoder:      base,
		redactFields: fields,
		redactRegex:  patterns,
	}, nil
}

// shouldRedactKey matches the key or its last dotted segment, so a "phone"
// rule also covers "contact.phone".
func (e *RedactingEncoder) shouldRedactKey(key string) bool {
	k := strings.ToLower(key)
	if e.redactFields[k] {
		return true
	}
	if i := strings.LastIndexByte(k, '.'); i >= 0 {
		return e.redactFields[k[i+1:]]
	}
	return false
}

// AddString redacts sensitive field names and value patterns.
func (e *RedactingEncoder) AddString(key, val string) {
	if e.shouldRedactKey(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return
	}
	for _, re := range e.redactRegex {
		if re.MatchString(val) {
			e.Encoder.AddString(key, "[REDACTED:pattern]")
			return
		}
	}
	e.Encoder.AddString(key, val)
}

// AddByteString redacts sensitive field names.
func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if e.shouldRedactKey(key) {
		e.Encoder.AddByteString(key, []byte("[REDACTED]"))
		return
	}
	e.Encoder.AddByteString(key, val)
}

// AddBinary redacts sensitive field names.
func (e *RedactingEncoder) AddBinary(key string, val []byte) {
	if e.shouldRedactKey(key) {
		e.Encoder.AddBinary(key, []byte("[REDACTED]"))
		return
	}
	e.Encoder.AddBinary(key, val)
}

// AddReflected redacts the whole value when the key is sensitive.
func (e *RedactingEncoder) AddReflected(key string, val any) error {
	if e.shouldRedactKey(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

// AddArray redacts sensitive field names.
func (e *RedactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if e.shouldRedactKey(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}

// AddObject redacts sensitive field names.
func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.shouldRedactKey(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

// EncodeEntry redacts per-entry fields before handing them to the base
// encoder, which would otherwise bypass the Add* overrides.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	if e.redactFields == nil && len(e.redactRegex) == 0 {
		return e.Encoder.EncodeEntry(ent, fields)
	}
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		out[i] = e.redactField(f)
	}
	return e.Encoder.EncodeEntry(ent, out)
}

func (e *RedactingEncoder) redactField(f zapcore.Field) zapcore.Field {
	if e.shouldRedactKey(f.Key) {
		return zap.String(f.Key, "[REDACTED]")
	}
	if f.Type == zapcore.StringType {
		for _, re := range e.redactRegex {
			if re.MatchString(f.String) {
				return zap.String(f.Key, "[REDACTED:pattern]")
			}
		}
	}
	return f
}

// Clone creates a copy of the encoder.
func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{
		Encoder:      e.Encoder.Clone(),
		redactFields: e.redactFields,
		redactRegex:  e.redactRegex,
	}
}
