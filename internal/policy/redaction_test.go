package policy

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestLoggableTranscriptTruncates(t *testing.T) {
	long := strings.Repeat("a", MaxLoggedTranscript+40)
	got := LoggableTranscript(long)
	if n := utf8.RuneCountInString(got); n != MaxLoggedTranscript+1 {
		t.Fatalf("rune count = %d, want %d", n, MaxLoggedTranscript+1)
	}
	if got := LoggableTranscript("  call me at bob@example.org "); got != "call me at [REDACTED_EMAIL]" {
		t.Fatalf("LoggableTranscript() = %q", got)
	}
}
