package server

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"orgpulse/internal/pipeline"
)

// Field length ceilings for every ingest shape.
const (
	MaxContentLength = 50000
	MaxTitleLength   = 500
	MaxSourceLength  = 500
	MaxQueryLength   = 2000
	MaxTTSTextLength = 5000
)

var signalIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// SanitizeString strips control characters (keeping newlines and tabs),
// trims surrounding whitespace and truncates to maxLength runes.
// Idempotent: a sanitized string passes through unchanged.
func SanitizeString(value string, maxLength int) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		switch {
		case r >= 0x00 && r <= 0x08,
			r == 0x0B, r == 0x0C,
			r >= 0x0E && r <= 0x1F,
			r == 0x7F:
			// dropped
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if maxLength > 0 && utf8.RuneCountInString(out) > maxLength {
		runes := []rune(out)
		// Truncation can expose trailing whitespace that was interior
		// before the cut, so trim again to stay idempotent.
		out = strings.TrimSpace(string(runes[:maxLength]))
	}
	return out
}

// requireText enforces the shared required-field rule: present, non-blank,
// under the ceiling. All violations are appended to errs; nothing
// short-circuits, so the caller reports every broken rule at once.
func requireText(errs []string, name, value string, maxLength int) []string {
	if strings.TrimSpace(value) == "" {
		return append(errs, name+" is required and cannot be empty")
	}
	if utf8.RuneCountInString(value) > maxLength {
		return append(errs, fmt.Sprintf("%s exceeds maximum length of %d characters", name, maxLength))
	}
	return errs
}

func optionalText(errs []string, name, value string, maxLength int) []string {
	if value != "" && utf8.RuneCountInString(value) > maxLength {
		return append(errs, fmt.Sprintf("%s exceeds maximum length of %d characters", name, maxLength))
	}
	return errs
}

// SignalRequest is the generic signal POST body. Summary is an accepted
// alias for content.
type SignalRequest struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
	Content   string `json:"content"`
	Summary   string `json:"summary"`
}

func validateSignal(req SignalRequest) (pipeline.Signal, []string) {
	var errs []string
	if req.Type != "" && !pipeline.ValidSignalType(req.Type) {
		errs = append(errs, "type must be one of: "+strings.Join(pipeline.ValidSignalTypes, ", "))
	}
	content := req.Content
	if content == "" {
		content = req.Summary
	}
	errs = requireText(errs, "content", content, MaxContentLength)
	errs = optionalText(errs, "title", req.Title, MaxTitleLength)
	errs = optionalText(errs, "source", req.Source, MaxSourceLength)
	if len(errs) > 0 {
		return pipeline.Signal{}, errs
	}

	sig := pipeline.Signal{
		ID:        SanitizeString(req.ID, 100),
		Type:      req.Type,
		Title:     SanitizeString(req.Title, MaxTitleLength),
		Source:    SanitizeString(req.Source, MaxSourceLength),
		Timestamp: req.Timestamp,
		Content:   SanitizeString(content, MaxContentLength),
	}
	if sig.Type == "" {
		sig.Type = "screenshot"
	}
	if sig.Title == "" {
		sig.Title = "New Signal"
	}
	if sig.Source == "" {
		sig.Source = "Unknown"
	}
	return sig, nil
}

// SlackIngestRequest mirrors a minimal Slack event payload.
type SlackIngestRequest struct {
	Text    string `json:"text"`
	User    string `json:"user"`
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

func validateSlackIngest(req SlackIngestRequest) (SlackIngestRequest, []string) {
	var errs []string
	errs = requireText(errs, "text", req.Text, MaxContentLength)
	if len(errs) > 0 {
		return SlackIngestRequest{}, errs
	}
	return SlackIngestRequest{
		Text:    SanitizeString(req.Text, MaxContentLength),
		User:    SanitizeString(req.User, 200),
		Channel: SanitizeString(req.Channel, 200),
		TS:      req.TS,
	}, nil
}

// EmailIngestRequest carries one email thread.
type EmailIngestRequest struct {
	Subject   string `json:"subject"`
	From      string `json:"from"`
	Body      string `json:"body"`
	Timestamp string `json:"timestamp"`
}

func validateEmailIngest(req EmailIngestRequest) (EmailIngestRequest, []string) {
	var errs []string
	errs = requireText(errs, "body", req.Body, MaxContentLength)
	if len(errs) > 0 {
		return EmailIngestRequest{}, errs
	}
	return EmailIngestRequest{
		Subject:   SanitizeString(req.Subject, MaxTitleLength),
		From:      SanitizeString(req.From, MaxSourceLength),
		Body:      SanitizeString(req.Body, MaxContentLength),
		Timestamp: req.Timestamp,
	}, nil
}

// MeetingIngestRequest carries one meeting transcript.
type MeetingIngestRequest struct {
	Title        string `json:"title"`
	Participants string `json:"participants"`
	Transcript   string `json:"transcript"`
	Timestamp    string `json:"timestamp"`
}

func validateMeetingIngest(req MeetingIngestRequest) (MeetingIngestRequest, []string) {
	var errs []string
	errs = requireText(errs, "transcript", req.Transcript, MaxContentLength)
	if len(errs) > 0 {
		return MeetingIngestRequest{}, errs
	}
	return MeetingIngestRequest{
		Title:        SanitizeString(req.Title, MaxTitleLength),
		Participants: SanitizeString(req.Participants, 1000),
		Transcript:   SanitizeString(req.Transcript, MaxContentLength),
		Timestamp:    req.Timestamp,
	}, nil
}

// ScreenshotIngestRequest carries OCR text extracted from a screenshot.
type ScreenshotIngestRequest struct {
	Title     string `json:"title"`
	Source    string `json:"source"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

func validateScreenshotIngest(req ScreenshotIngestRequest) (ScreenshotIngestRequest, []string) {
	var errs []string
	errs = requireText(errs, "text", req.Text, MaxContentLength)
	if len(errs) > 0 {
		return ScreenshotIngestRequest{}, errs
	}
	return ScreenshotIngestRequest{
		Title:     SanitizeString(req.Title, MaxTitleLength),
		Source:    SanitizeString(req.Source, MaxSourceLength),
		Text:      SanitizeString(req.Text, MaxContentLength),
		Timestamp: req.Timestamp,
	}, nil
}

func validateQueryText(query string) (string, []string) {
	var errs []string
	errs = requireText(errs, "query", query, MaxQueryLength)
	if len(errs) > 0 {
		return "", errs
	}
	return SanitizeString(query, MaxQueryLength), nil
}

func validateClassificationText(content string) (string, []string) {
	var errs []string
	errs = requireText(errs, "content", content, MaxContentLength)
	if len(errs) > 0 {
		return "", errs
	}
	return SanitizeString(content, MaxContentLength), nil
}

func validateTTSText(text string) (string, []string) {
	var errs []string
	errs = requireText(errs, "text", text, MaxTTSTextLength)
	if len(errs) > 0 {
		return "", errs
	}
	return SanitizeString(text, MaxTTSTextLength), nil
}

func validateSignalID(signalID string) (string, []string) {
	if signalID == "" {
		return "", nil
	}
	sanitized := SanitizeString(signalID, 100)
	if !signalIDPattern.MatchString(sanitized) {
		return "", []string{"signalId must contain only alphanumeric characters, underscores, and hyphens"}
	}
	return sanitized, nil
}
