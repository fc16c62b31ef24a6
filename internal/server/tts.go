package server

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"orgpulse/internal/tts"
)

// TTSHandler turns briefing text into speech via the synthesis backend.
type TTSHandler struct {
	Client *tts.Client
	Logger *log.Logger
}

func (h *TTSHandler) Register(g *echo.Group) {
	g.POST("/tts", h.speak)
}

func (h *TTSHandler) speak(c echo.Context) error {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	text, errs := validateTTSText(req.Text)
	if len(errs) > 0 {
		return validationError(c, errs)
	}
	audio, err := h.Client.Synthesize(c.Request().Context(), text)
	if err != nil {
		if errors.Is(err, tts.ErrNotConfigured) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "TTS service not configured")
		}
		h.Logger.Printf("tts synthesis failed: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "TTS synthesis failed")
	}
	return c.Blob(http.StatusOK, "audio/mpeg", audio)
}
