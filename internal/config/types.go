// internal/config/types.go
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration accepts "90s" style values from YAML and env vars.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Secret holds provider keys and passwords. Every string form is redacted;
// call Value for the real thing.
type Secret string

// String implements fmt.Stringer. Always returns redacted value.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for %#v formatting.
func (s Secret) GoString() string {
	return "Secret([REDACTED])"
}

// Value returns the actual secret value. Use sparingly.
func (s Secret) Value() string {
	return string(s)
}

// IsSet returns true if the secret has a non-empty value.
func (s Secret) IsSet() bool {
	return s != ""
}

// MarshalJSON implements json.Marshaler. Always returns redacted value.
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("[REDACTED]")
}

// MarshalText implements encoding.TextMarshaler. Always returns redacted value.
func (s Secret) MarshalText() ([]byte, error) {
	if s == "" {
		return []byte(""), nil
	}
	return []byte("[REDACTED]"), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Secret) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Secret(raw)
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Accepts raw secret values.
func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(text)
	return nil
}
