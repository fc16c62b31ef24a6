package server

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"orgpulse/internal/pipeline"
)

// PipelineHandler exposes the intelligence endpoints: classification, graph,
// truth timeline, conflicts, actions, full processing and executive query.
type PipelineHandler struct {
	Pipe   *pipeline.Pipeline
	Logger *log.Logger
}

func (h *PipelineHandler) Register(g *echo.Group) {
	g.GET("/classification", h.classificationGet)
	g.GET("/classification/:signalId", h.classificationGet)
	g.POST("/classification", h.classificationPost)
	g.POST("/classification/:signalId", h.classificationReclassify)
	g.GET("/graph", h.graph)
	g.GET("/truth", h.truth)
	g.GET("/conflicts", h.conflicts)
	g.GET("/actions", h.actions)
}

// RegisterQuery and RegisterProcess mount the expensive routes on their own
// groups so each can carry a stricter rate limit than the read endpoints.
func (h *PipelineHandler) RegisterQuery(g *echo.Group) {
	g.POST("/query", h.query)
}

func (h *PipelineHandler) RegisterProcess(g *echo.Group) {
	g.POST("/process", h.process)
	g.POST("/process/:signalId", h.process)
}

func (h *PipelineHandler) classificationGet(c echo.Context) error {
	signalID, errs := validateSignalID(c.Param("signalId"))
	if len(errs) > 0 {
		return validationError(c, errs)
	}
	classification, err := h.Pipe.CachedClassification(c.Request().Context(), signalID)
	if err != nil {
		return h.pipelineError(c, err)
	}
	return c.JSON(http.StatusOK, classification)
}

func (h *PipelineHandler) classificationPost(c echo.Context) error {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	content, errs := validateClassificationText(req.Content)
	if len(errs) > 0 {
		return validationError(c, errs)
	}
	classification, err := h.Pipe.ClassifyText(c.Request().Context(), content)
	if err != nil {
		return h.pipelineError(c, err)
	}
	return c.JSON(http.StatusOK, classification)
}

// classificationReclassify forces a fresh classification of a stored
// signal, bypassing the cache.
func (h *PipelineHandler) classificationReclassify(c echo.Context) error {
	signalID, errs := validateSignalID(c.Param("signalId"))
	if len(errs) > 0 {
		return validationError(c, errs)
	}
	classification, err := h.Pipe.Classify(c.Request().Context(), signalID)
	if err != nil {
		return h.pipelineError(c, err)
	}
	return c.JSON(http.StatusOK, classification)
}

func (h *PipelineHandler) graph(c echo.Context) error {
	bundle, err := h.Pipe.Graph(c.Request().Context())
	if err != nil {
		return h.pipelineError(c, err)
	}
	return c.JSON(http.StatusOK, bundle)
}

func (h *PipelineHandler) truth(c echo.Context) error {
	versions, err := h.Pipe.TruthVersions()
	if err != nil {
		return h.pipelineError(c, err)
	}
	return c.JSON(http.StatusOK, versions)
}

func (h *PipelineHandler) conflicts(c echo.Context) error {
	conflicts, err := h.Pipe.Conflicts(c.Request().Context())
	if err != nil {
		return h.pipelineError(c, err)
	}
	return c.JSON(http.StatusOK, conflicts)
}

func (h *PipelineHandler) actions(c echo.Context) error {
	actions, err := h.Pipe.Actions(c.Request().Context())
	if err != nil {
		return h.pipelineError(c, err)
	}
	return c.JSON(http.StatusOK, actions)
}

func (h *PipelineHandler) process(c echo.Context) error {
	signalID, errs := validateSignalID(c.Param("signalId"))
	if len(errs) > 0 {
		return validationError(c, errs)
	}
	result, err := h.Pipe.ProcessSignal(c.Request().Context(), signalID)
	if err != nil {
		return h.pipelineError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *PipelineHandler) query(c echo.Context) error {
	var req struct {
		Query string `json:"query"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	query := req.Query
	if query != "" {
		clean, errs := validateQueryText(query)
		if len(errs) > 0 {
			return validationError(c, errs)
		}
		query = clean
	}
	answer, err := h.Pipe.Query(c.Request().Context(), query)
	if err != nil {
		return h.pipelineError(c, err)
	}
	return c.JSON(http.StatusOK, answer)
}

// pipelineError maps orchestrator failures to HTTP responses. Upstream LLM
// detail stays in the log; clients get a generic message.
func (h *PipelineHandler) pipelineError(c echo.Context, err error) error {
	if errors.Is(err, pipeline.ErrNoSignal) {
		return echo.NewHTTPError(http.StatusNotFound, "No signal found")
	}
	h.Logger.Printf("pipeline error on %s: %v", c.Path(), err)
	return echo.NewHTTPError(http.StatusInternalServerError, "AI pipeline error")
}
