package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"orgpulse/config"
	"orgpulse/internal/llm"
	"orgpulse/internal/pipeline"
	"orgpulse/internal/store"
)

// cannedProvider answers every stage with a fixed response keyed by a
// marker in the prompt.
type cannedProvider struct{}

func (cannedProvider) Chat(_ context.Context, _ string, messages []llm.Message, _ llm.Options) (string, error) {
	prompt := messages[len(messages)-1].Content
	switch {
	case strings.Contains(prompt, "organizational intelligence system"):
		return `{"primary":{"intent":"risk","confidence":0.8}}`, nil
	case strings.Contains(prompt, "knowledge graph"):
		return `{"nodes":[],"edges":[]}`, nil
	case strings.Contains(prompt, "for conflicts"):
		return `{"conflicts":[]}`, nil
	case strings.Contains(prompt, "source of truth"):
		return `{"changes":[]}`, nil
	case strings.Contains(prompt, "suggest action items"):
		return `{"actions":[]}`, nil
	case strings.Contains(prompt, "AI Chief of Staff"):
		return `{"summary":"All quiet.","stakeholders":[],"pendingActions":0,"riskLevel":"Low"}`, nil
	}
	return `{}`, nil
}

func newPipelineHandler(t *testing.T) (*PipelineHandler, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	pipe := pipeline.New(config.LLMConfig{}, cannedProvider{}, st, nil)
	return &PipelineHandler{Pipe: pipe, Logger: log.New(io.Discard, "", 0)}, st
}

func TestProcessNoSignalReturns404(t *testing.T) {
	h, _ := newPipelineHandler(t)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/process", nil)
	rec := httptest.NewRecorder()

	err := h.process(e.NewContext(req, rec))
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", he.Code)
	}
	if he.Message != "No signal found" {
		t.Fatalf("unexpected message: %v", he.Message)
	}
}

func TestProcessLatestSignal(t *testing.T) {
	h, st := newPipelineHandler(t)
	if _, err := st.AddSignal(pipeline.Signal{ID: "sig_a", Content: "Outage in us-east."}); err != nil {
		t.Fatal(err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/process", nil)
	rec := httptest.NewRecorder()
	if err := h.process(e.NewContext(req, rec)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result pipeline.ProcessResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Signal != "sig_a" {
		t.Fatalf("expected latest signal processed, got %q", result.Signal)
	}
	if len(result.TruthVersions) != 1 {
		t.Fatalf("expected one truth version, got %d", len(result.TruthVersions))
	}
}

func TestProcessRejectsMalformedSignalID(t *testing.T) {
	h, _ := newPipelineHandler(t)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/process/..", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("signalId")
	ctx.SetParamValues("../../etc")

	if err := h.process(ctx); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestQueryDefaultsWhenBodyEmpty(t *testing.T) {
	h, _ := newPipelineHandler(t)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.query(e.NewContext(req, rec)); err != nil {
		t.Fatalf("query: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var answer pipeline.QueryAnswer
	if err := json.Unmarshal(rec.Body.Bytes(), &answer); err != nil {
		t.Fatal(err)
	}
	if answer.RiskLevel != "Low" {
		t.Fatalf("unexpected answer: %+v", answer)
	}
}

func TestQueryRejectsOversizedText(t *testing.T) {
	h, _ := newPipelineHandler(t)
	e := echo.New()
	payload, _ := json.Marshal(map[string]string{"query": strings.Repeat("q", MaxQueryLength+1)})
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(string(payload)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.query(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestTruthEndpointEmpty(t *testing.T) {
	h, _ := newPipelineHandler(t)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/truth", nil)
	rec := httptest.NewRecorder()
	if err := h.truth(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty array, got %s", rec.Body.String())
	}
}

func TestClassificationGetComputesAndCaches(t *testing.T) {
	h, st := newPipelineHandler(t)
	if _, err := st.AddSignal(pipeline.Signal{ID: "sig_a", Content: "text"}); err != nil {
		t.Fatal(err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/classification", nil)
	rec := httptest.NewRecorder()
	if err := h.classificationGet(e.NewContext(req, rec)); err != nil {
		t.Fatalf("classificationGet: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var c pipeline.Classification
	if err := json.Unmarshal(rec.Body.Bytes(), &c); err != nil {
		t.Fatal(err)
	}
	if c.Primary.Intent != pipeline.IntentRisk {
		t.Fatalf("unexpected classification: %+v", c)
	}

	state, err := st.State()
	if err != nil {
		t.Fatal(err)
	}
	if state.Classification == nil || state.LastSignalID != "sig_a" {
		t.Fatalf("classification not cached: %+v", state)
	}
}
