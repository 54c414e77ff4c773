package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/jonwraymond/schedgate/resilience"
	"github.com/tidwall/gjson"
)

// Status classes. A *StatusError matches exactly one of them with errors.Is.
var (
	// ErrTransport wraps failures that produced no HTTP response.
	ErrTransport = errors.New("transport: request failed")

	// ErrServer matches 5xx responses.
	ErrServer = errors.New("transport: server error")

	// ErrRateLimited matches 429 responses.
	ErrRateLimited = errors.New("transport: rate limited")

	// ErrUnauthorized matches 401 responses.
	ErrUnauthorized = errors.New("transport: unauthorized")

	// ErrNotFound matches 404 responses.
	ErrNotFound = errors.New("transport: not found")

	// ErrClientRequest matches every other 4xx response.
	ErrClientRequest = errors.New("transport: client request error")
)

const maxDetail = 512

// StatusError is a non-2xx response. It keeps the status and body so callers
// can surface both.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

// Error implements error.
func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	if d := Diagnostics(e.Body); d != "" {
		msg += ": " + d
	}
	return msg
}

// Is reports the status class of the response.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrServer:
		return e.StatusCode >= 500
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrClientRequest:
		return e.StatusCode >= 400 && e.StatusCode < 500 &&
			e.StatusCode != http.StatusUnauthorized &&
			e.StatusCode != http.StatusTooManyRequests
	}
	return false
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// Diagnostics extracts a short human-readable message from an error body.
// It understands FHIR OperationOutcome and OAuth2 error responses and falls
// back to the trimmed body text.
func Diagnostics(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if gjson.ValidBytes(body) {
		doc := gjson.ParseBytes(body)
		if doc.Get("resourceType").String() == "OperationOutcome" {
			var parts []string
			for _, issue := range doc.Get("issue").Array() {
				text := issue.Get("diagnostics").String()
				if text == "" {
					text = issue.Get("details.text").String()
				}
				if text != "" {
					parts = append(parts, text)
				}
			}
			if len(parts) > 0 {
				return truncate(strings.Join(parts, "; "))
			}
		}
		if e := doc.Get("error"); e.Exists() && e.Type == gjson.String {
			if d := doc.Get("error_description").String(); d != "" {
				return truncate(e.String() + ": " + d)
			}
			return truncate(e.String())
		}
		if m := doc.Get("message").String(); m != "" {
			return truncate(m)
		}
	}
	return truncate(strings.TrimSpace(string(body)))
}

// truncate cuts s to at most maxDetail bytes on a rune boundary.
func truncate(s string) string {
	if len(s) <= maxDetail {
		return s
	}
	n := maxDetail
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// Transient reports whether err is a failure of the remote service rather than
// of the request: network errors, 5xx, 429 and attempt timeouts. These are the
// outcomes worth retrying and the ones that count against a circuit breaker.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrTransport) ||
		errors.Is(err, ErrServer) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, resilience.ErrTimeout)
}
