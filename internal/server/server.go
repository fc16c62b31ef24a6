package server

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orgpulse/config"
	"orgpulse/internal/llm"
	"orgpulse/internal/pipeline"
	"orgpulse/internal/search"
	"orgpulse/internal/store"
	"orgpulse/internal/telemetry"
	"orgpulse/internal/tts"
)

// Server bundles the HTTP surface and its dependencies.
type Server struct {
	Echo    *echo.Echo
	Store   *store.Store
	Pipe    *pipeline.Pipeline
	Index   *search.Index
	Janitor *Janitor
	cfg     *config.Config
	logger  *log.Logger
	stop    chan struct{}
}

// New assembles the full server from config and an LLM provider. The
// provider is injected so tests can stub the model.
func New(cfg *config.Config, provider llm.Provider) (*Server, error) {
	logger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)

	st, err := store.New(cfg.General.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if cfg.General.SeedDemo {
		ensureSeeded(st, logger)
	}

	idx, err := search.NewIndex()
	if err != nil {
		return nil, fmt.Errorf("opening search index: %w", err)
	}
	if signals, err := st.Signals(); err == nil {
		if err := idx.AddAll(signals); err != nil {
			logger.Printf("indexing existing signals: %v", err)
		}
	}

	reg := prometheus.NewRegistry()
	metrics := telemetry.New(reg)
	pipe := pipeline.New(cfg.LLM, provider, st, metrics)

	stop := make(chan struct{})
	limiter := NewRateLimiter(cfg.RateLimit, cfg.Redis, logger, stop)
	verifier := NewVerifier(cfg.Identity)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	e.GET("/api/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"ok":        true,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	auth := AuthMiddleware(cfg.Identity, verifier)
	global := RateLimitMiddleware(limiter, "global", cfg.RateLimit.GlobalMax, metrics, logger)

	api := e.Group("/api", auth, global)

	signalsH := &SignalsHandler{Store: st, Index: idx, Metrics: metrics, Logger: logger}
	signalsH.Register(api)

	pipeH := &PipelineHandler{Pipe: pipe, Logger: logger}
	pipeH.Register(api)
	pipeH.RegisterQuery(e.Group("/api", auth, global,
		RateLimitMiddleware(limiter, "query", cfg.RateLimit.QueryMax, metrics, logger)))
	pipeH.RegisterProcess(e.Group("/api", auth, global,
		RateLimitMiddleware(limiter, "process", cfg.RateLimit.ProcessMax, metrics, logger)))

	ttsH := &TTSHandler{Client: tts.NewClient(cfg.TTS), Logger: logger}
	ttsH.Register(e.Group("/api", auth, global,
		RateLimitMiddleware(limiter, "tts", cfg.RateLimit.TTSMax, metrics, logger)))

	srv := &Server{
		Echo:    e,
		Store:   st,
		Pipe:    pipe,
		Index:   idx,
		Janitor: NewJanitor(cfg.Janitor, st, logger),
		cfg:     cfg,
		logger:  logger,
		stop:    stop,
	}
	return srv, nil
}

// Run starts the janitor and serves until the listener fails.
func (s *Server) Run() error {
	if s.Janitor != nil {
		s.Janitor.Start()
	}
	s.logger.Printf("listening on %s", s.cfg.General.Listen)
	return s.Echo.Start(s.cfg.General.Listen)
}

// Close stops background workers.
func (s *Server) Close() {
	close(s.stop)
	if s.Janitor != nil {
		close(s.Janitor.Stop)
	}
}
