package server

import (
	"log"
	"time"

	"github.com/gorhill/cronexpr"

	"orgpulse/config"
	"orgpulse/internal/store"
)

// Janitor runs periodic store compaction on a cron schedule, dropping
// signals over the retention cap and rewriting the files compactly.
type Janitor struct {
	Store  *store.Store
	Cron   string
	Logger *log.Logger
	Stop   chan struct{}
}

func NewJanitor(cfg config.JanitorConfig, st *store.Store, logger *log.Logger) *Janitor {
	if !cfg.Enabled {
		return nil
	}
	if _, err := cronexpr.Parse(cfg.Cron); err != nil {
		logger.Printf("invalid janitor cron %q: %v", cfg.Cron, err)
		return nil
	}
	return &Janitor{Store: st, Cron: cfg.Cron, Logger: logger, Stop: make(chan struct{})}
}

func (j *Janitor) Start() {
	go func() {
		for {
			next := cronexpr.MustParse(j.Cron).Next(time.Now())
			timer := time.NewTimer(time.Until(next))
			select {
			case <-j.Stop:
				timer.Stop()
				return
			case <-timer.C:
				if err := j.Store.Compact(); err != nil {
					j.Logger.Printf("compaction failed: %v", err)
				}
			}
		}
	}()
}
