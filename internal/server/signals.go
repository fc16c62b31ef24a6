package server

import (
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/labstack/echo/v4"

	"orgpulse/internal/pipeline"
	"orgpulse/internal/search"
	"orgpulse/internal/store"
	"orgpulse/internal/telemetry"
)

// SignalsHandler serves the raw signal feed: listing, direct ingest, the
// per-connector ingest shapes and full-text search.
type SignalsHandler struct {
	Store   *store.Store
	Index   *search.Index
	Metrics *telemetry.Telemetry
	Logger  *log.Logger
}

func (h *SignalsHandler) Register(g *echo.Group) {
	g.GET("/signals", h.list)
	g.POST("/signals", h.create)
	g.GET("/signals/search", h.search)
	g.POST("/ingest/slack", h.ingestSlack)
	g.POST("/ingest/email", h.ingestEmail)
	g.POST("/ingest/meeting", h.ingestMeeting)
	g.POST("/ingest/screenshot", h.ingestScreenshot)
}

func (h *SignalsHandler) list(c echo.Context) error {
	signals, err := h.Store.Signals()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, signals)
}

func (h *SignalsHandler) create(c echo.Context) error {
	var req SignalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sig, errs := validateSignal(req)
	if len(errs) > 0 {
		return validationError(c, errs)
	}
	return h.save(c, sig)
}

func (h *SignalsHandler) search(c echo.Context) error {
	q, errs := validateQueryText(c.QueryParam("q"))
	if len(errs) > 0 {
		return validationError(c, errs)
	}
	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	hits, err := h.Index.Search(q, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	results := make([]pipeline.Signal, 0, len(hits))
	for _, hit := range hits {
		sig, err := h.Store.FindSignal(hit.ID)
		if err != nil {
			continue // evicted since indexing
		}
		results = append(results, sig)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"query":   q,
		"results": results,
	})
}

func (h *SignalsHandler) ingestSlack(c echo.Context) error {
	var req SlackIngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	clean, errs := validateSlackIngest(req)
	if len(errs) > 0 {
		return validationError(c, errs)
	}
	title := "Slack Message"
	if clean.Channel != "" {
		title = "#" + clean.Channel
	}
	source := "Slack"
	if clean.User != "" {
		source = clean.User
	}
	return h.save(c, pipeline.Signal{
		Type:      "slack",
		Title:     title,
		Source:    source,
		Timestamp: slackTimestamp(clean.TS),
		Content:   clean.Text,
	})
}

func (h *SignalsHandler) ingestEmail(c echo.Context) error {
	var req EmailIngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	clean, errs := validateEmailIngest(req)
	if len(errs) > 0 {
		return validationError(c, errs)
	}
	title := "Email Thread"
	if clean.Subject != "" {
		title = clean.Subject
	}
	source := "Email"
	if clean.From != "" {
		source = clean.From
	}
	return h.save(c, pipeline.Signal{
		Type:      "email",
		Title:     title,
		Source:    source,
		Timestamp: clean.Timestamp,
		Content:   emailBodyText(clean.Body),
	})
}

func (h *SignalsHandler) ingestMeeting(c echo.Context) error {
	var req MeetingIngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	clean, errs := validateMeetingIngest(req)
	if len(errs) > 0 {
		return validationError(c, errs)
	}
	title := "Meeting Transcript"
	if clean.Title != "" {
		title = clean.Title
	}
	source := "Meeting"
	if clean.Participants != "" {
		source = "Participants: " + clean.Participants
	}
	return h.save(c, pipeline.Signal{
		Type:      "meeting",
		Title:     title,
		Source:    source,
		Timestamp: clean.Timestamp,
		Content:   clean.Transcript,
	})
}

func (h *SignalsHandler) ingestScreenshot(c echo.Context) error {
	var req ScreenshotIngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	clean, errs := validateScreenshotIngest(req)
	if len(errs) > 0 {
		return validationError(c, errs)
	}
	title := "Screenshot"
	if clean.Title != "" {
		title = clean.Title
	}
	source := "Screenshot"
	if clean.Source != "" {
		source = clean.Source
	}
	return h.save(c, pipeline.Signal{
		Type:      "screenshot",
		Title:     title,
		Source:    source,
		Timestamp: clean.Timestamp,
		Content:   clean.Text,
	})
}

// save persists the signal, indexes it for search and returns 201 with the
// stored record (id and timestamp filled in).
func (h *SignalsHandler) save(c echo.Context, sig pipeline.Signal) error {
	if sig.Timestamp == "" {
		sig.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	saved, err := h.Store.AddSignal(sig)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.Index.Add(saved); err != nil {
		h.Logger.Printf("indexing signal %s: %v", saved.ID, err)
	}
	h.Metrics.SignalIngested()
	return c.JSON(http.StatusCreated, saved)
}

// slackTimestamp converts Slack's unix-seconds "ts" value (possibly with a
// fractional part) to RFC3339. Empty or unparseable values mean "now".
func slackTimestamp(ts string) string {
	if ts == "" {
		return ""
	}
	secs, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return ""
	}
	return time.Unix(int64(secs), 0).UTC().Format(time.RFC3339)
}

var emailBaseURL = &url.URL{Scheme: "https", Host: "mail.local"}

// emailBodyText extracts readable text from an HTML email body. Plain-text
// bodies pass through untouched.
func emailBodyText(body string) string {
	if !strings.Contains(body, "<") || !strings.Contains(body, ">") {
		return body
	}
	article, err := readability.FromReader(strings.NewReader(body), emailBaseURL)
	if err != nil {
		return body
	}
	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return body
	}
	return text
}

func validationError(c echo.Context, details []string) error {
	return c.JSON(http.StatusBadRequest, map[string]interface{}{
		"error":   "Validation Error",
		"details": details,
	})
}
