package logging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/sitegen/internal/config"
)

func encode(t *testing.T, enc zapcore.Encoder, fields ...zap.Field) string {
	t.Helper()
	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "m", Time: time.Unix(0, 0)}, fields)
	require.NoError(t, err)
	return buf.String()
}

func TestRedactingEncoder(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	tests := []struct {
		name    string
		field   zap.Field
		leak    string
		present string
	}{
		{"key match", zap.String("api_key", "abc123"), "abc123", "[REDACTED]"},
		{"case insensitive key", zap.String("Authorization", "Basic xyz"), "Basic xyz", "[REDACTED]"},
		{"dotted key", zap.String("contact.phone", "+90 212 555 0101"), "555 0101", "[REDACTED]"},
		{"bearer pattern", zap.String("header", "Bearer eyJhbGciOi"), "eyJhbGciOi", "[REDACTED:pattern]"},
		{"provider key pattern", zap.String("note", "sk-ant-0123456789abcdefXYZ"), "0123456789abcdef", "[REDACTED:pattern]"},
		{"reflected", zap.Any("secret", map[string]string{"a": "b"}), `"a"`, "[REDACTED]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := encode(t, enc, tt.field)
			assert.NotContains(t, out, tt.leak)
			assert.Contains(t, out, tt.present)
		})
	}

	t.Run("ordinary fields pass", func(t *testing.T) {
		out := encode(t, enc, zap.String("stage", "research"))
		assert.Contains(t, out, "research")
	})
}

func TestRedactionDisabled(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{Enabled: false, Fields: []string{"token"}})
	require.NoError(t, err)
	assert.Contains(t, encode(t, enc, zap.String("token", "visible")), "visible")
}

func TestFieldHelpers(t *testing.T) {
	tl := NewTestLogger()
	ctx := context.Background()

	tl.Info(ctx, "provider configured",
		Secret("api_key", config.Secret("sk-live-123")),
		RedactedString("token", "abcd"),
		Contact("email", "info@atlas.example"),
	)

	tl.AssertField(t, "provider configured", "api_key", "[REDACTED:11]")
	tl.AssertField(t, "provider configured", "token", "[REDACTED:4]")
	tl.AssertField(t, "provider configured", "email", "[REDACTED]le")
	tl.AssertNoSecrets(t)

	assert.Equal(t, "", Secret("k", "").String)
	assert.Equal(t, "[REDACTED]", Contact("p", "1").String)
}
