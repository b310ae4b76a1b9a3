package config

import "log/slog"

const redacted = "[REDACTED]"

// Secret is a string that never prints its value. fmt, JSON and slog output
// show a placeholder; Unmask returns the raw value.
type Secret string

// String returns a redacted placeholder.
func (s Secret) String() string { return redacted }

// GoString returns a redacted placeholder for %#v.
func (s Secret) GoString() string { return redacted }

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s Secret) MarshalJSON() ([]byte, error) { return []byte(`"` + redacted + `"`), nil }

// LogValue implements slog.LogValuer.
func (s Secret) LogValue() slog.Value { return slog.StringValue(redacted) }

// Unmask returns the raw value. Call it only where the secret is handed to
// the client that needs it.
func (s Secret) Unmask() string { return string(s) }
