package httpclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// UpstreamError is the single failure type returned by provider clients.
// Status is zero when no HTTP response was received.
type UpstreamError struct {
	Service string
	Status  int
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	b.WriteString(e.Service)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

const maxMessage = 300

// errorMessage extracts a human-readable message from an error body. It
// understands the common JSON shapes and falls back to the raw text.
func errorMessage(status int, body []byte) string {
	var envelope struct {
		Error            json.RawMessage `json:"error"`
		Message          string          `json:"message"`
		Detail           string          `json:"detail"`
		ErrorDescription string          `json:"error_description"`
	}

	if json.Unmarshal(body, &envelope) == nil {
		var nested struct {
			Message string `json:"message"`
			Reason  string `json:"reason"`
		}
		var flat string

		switch {
		case len(envelope.Error) > 0 && json.Unmarshal(envelope.Error, &nested) == nil && nested.Message != "":
			return truncate(nested.Message)
		case len(envelope.Error) > 0 && json.Unmarshal(envelope.Error, &flat) == nil && flat != "":
			if envelope.ErrorDescription != "" {
				return truncate(flat + ": " + envelope.ErrorDescription)
			}
			return truncate(flat)
		case envelope.Message != "":
			return truncate(envelope.Message)
		case envelope.Detail != "":
			return truncate(envelope.Detail)
		}
	}

	if text := strings.TrimSpace(string(body)); text != "" {
		return truncate(text)
	}
	return http.StatusText(status)
}

func truncate(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= maxMessage {
		return s
	}
	return string(r[:maxMessage]) + "..."
}
