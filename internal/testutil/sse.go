package testutil

import (
	"bufio"
	"strings"
	"testing"
)

// ParseDataStream parses a data-only SSE stream into its payloads, in order.
//
// The relay's wire format never uses event types: every frame is a single
// "data: <payload>" line terminated by a blank line, and a completed stream
// ends with the "data: [DONE]" marker as its last payload. Comments starting
// with ":" are ignored; any other line fails the test.
//
// Example:
//
//	payloads := testutil.ParseDataStream(t, w.Body.String())
//	if payloads[len(payloads)-1] != "[DONE]" { ... }
func ParseDataStream(t *testing.T, body string) []string {
	t.Helper()

	var payloads []string
	pending := false // a data line awaiting its blank-line terminator
	lineNum := 0

	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "data: "):
			if pending {
				t.Fatalf("SSE parse error at line %d: data line before previous frame terminated", lineNum)
			}
			payloads = append(payloads, strings.TrimPrefix(line, "data: "))
			pending = true

		case line == "":
			pending = false

		case strings.HasPrefix(line, ":"):
			// SSE comment, ignored

		default:
			t.Fatalf("SSE parse error at line %d: unexpected line %q", lineNum, line)
		}
	}

	if err := scanner.Err(); err != nil {
		t.Fatalf("SSE scan error: %v", err)
	}

	if pending {
		t.Fatal("SSE stream ended without terminating the last frame")
	}

	return payloads
}
