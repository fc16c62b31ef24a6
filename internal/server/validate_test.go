package server

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeStringStripsControlCharacters(t *testing.T) {
	in := "hello\x00world\x01 \x7f keep\nnewline\tand tab\x0b"
	got := SanitizeString(in, 1000)
	want := "helloworld  keep\nnewline\tand tab"
	if got != want {
		t.Fatalf("SanitizeString = %q, want %q", got, want)
	}
}

func TestSanitizeStringIdempotent(t *testing.T) {
	inputs := []string{
		"plain text",
		"  padded  ",
		"ctrl\x00chars\x1f here",
		strings.Repeat("x", 600),
		// Truncation lands on interior whitespace.
		strings.Repeat("x", 499) + "  tail",
		// Truncation lands inside a multi-byte rune.
		strings.Repeat("x", 499) + "éé",
		strings.Repeat("日", 600),
	}
	for _, in := range inputs {
		once := SanitizeString(in, 500)
		twice := SanitizeString(once, 500)
		if once != twice {
			t.Errorf("not idempotent for %q: %q vs %q", in, once, twice)
		}
		if !utf8.ValidString(once) {
			t.Errorf("invalid UTF-8 after sanitize for %q: %q", in, once)
		}
	}
}

func TestSanitizeStringTruncates(t *testing.T) {
	got := SanitizeString(strings.Repeat("a", 50), 10)
	if len(got) != 10 {
		t.Fatalf("expected 10 chars, got %d", len(got))
	}
}

func TestSanitizeStringTruncatesOnRuneBoundary(t *testing.T) {
	got := SanitizeString(strings.Repeat("日", 50), 10)
	if n := utf8.RuneCountInString(got); n != 10 {
		t.Fatalf("expected 10 runes, got %d", n)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncation produced invalid UTF-8: %q", got)
	}
}

func TestSanitizeStringTrimsExposedWhitespace(t *testing.T) {
	got := SanitizeString(strings.Repeat("x", 499)+"  tail", 500)
	if strings.HasSuffix(got, " ") {
		t.Fatalf("truncated string ends in whitespace: %q", got)
	}
	if got != strings.Repeat("x", 499) {
		t.Fatalf("unexpected truncation result: %q", got)
	}
}

func TestValidateSignalCollectsAllViolations(t *testing.T) {
	_, errs := validateSignal(SignalRequest{
		Type:  "carrier-pigeon",
		Title: strings.Repeat("t", MaxTitleLength+1),
	})
	if len(errs) != 3 {
		t.Fatalf("expected 3 violations, got %d: %v", len(errs), errs)
	}
	assertContains(t, errs, "type must be one of: slack, meeting, screenshot, email")
	assertContains(t, errs, "content is required and cannot be empty")
	assertContains(t, errs, "title exceeds maximum length of 500 characters")
}

func TestValidateSignalDefaults(t *testing.T) {
	sig, errs := validateSignal(SignalRequest{Content: "something happened"})
	if len(errs) != 0 {
		t.Fatalf("unexpected violations: %v", errs)
	}
	if sig.Type != "screenshot" || sig.Title != "New Signal" || sig.Source != "Unknown" {
		t.Fatalf("defaults not applied: %+v", sig)
	}
}

func TestValidateSignalAcceptsSummaryAlias(t *testing.T) {
	sig, errs := validateSignal(SignalRequest{Summary: "summary text"})
	if len(errs) != 0 {
		t.Fatalf("unexpected violations: %v", errs)
	}
	if sig.Content != "summary text" {
		t.Fatalf("summary alias ignored: %+v", sig)
	}
}

func TestValidateSignalLengthCountsRunes(t *testing.T) {
	_, errs := validateSignal(SignalRequest{Content: strings.Repeat("é", MaxContentLength)})
	if len(errs) != 0 {
		t.Fatalf("multi-byte content within the character ceiling rejected: %v", errs)
	}
}

func TestValidateSignalContentTooLong(t *testing.T) {
	_, errs := validateSignal(SignalRequest{Content: strings.Repeat("c", MaxContentLength+1)})
	assertContains(t, errs, "content exceeds maximum length of 50000 characters")
}

func TestValidateQueryText(t *testing.T) {
	if _, errs := validateQueryText(""); len(errs) == 0 {
		t.Fatal("expected violation for empty query")
	}
	if _, errs := validateQueryText("   "); len(errs) == 0 {
		t.Fatal("expected violation for blank query")
	}
	if _, errs := validateQueryText(strings.Repeat("q", MaxQueryLength+1)); len(errs) == 0 {
		t.Fatal("expected violation for oversized query")
	}
	q, errs := validateQueryText("  what changed?  ")
	if len(errs) != 0 || q != "what changed?" {
		t.Fatalf("unexpected result: %q %v", q, errs)
	}
}

func TestValidateSignalID(t *testing.T) {
	if _, errs := validateSignalID(""); len(errs) != 0 {
		t.Fatal("empty id is an allowed use-latest request")
	}
	id, errs := validateSignalID("sig_123-abc")
	if len(errs) != 0 || id != "sig_123-abc" {
		t.Fatalf("unexpected result: %q %v", id, errs)
	}
	_, errs = validateSignalID("sig/../etc")
	assertContains(t, errs, "signalId must contain only alphanumeric characters, underscores, and hyphens")
}

func TestValidateTTSText(t *testing.T) {
	if _, errs := validateTTSText(strings.Repeat("t", MaxTTSTextLength+1)); len(errs) == 0 {
		t.Fatal("expected violation for oversized text")
	}
	_, errs := validateTTSText("")
	assertContains(t, errs, "text is required and cannot be empty")
}

func assertContains(t *testing.T, list []string, want string) {
	t.Helper()
	for _, s := range list {
		if s == want {
			return
		}
	}
	t.Fatalf("missing %q in %v", want, list)
}
