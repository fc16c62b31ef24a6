package server

import (
	"log"

	"orgpulse/internal/pipeline"
	"orgpulse/internal/store"
)

const seedContent = `Just got off the phone with Acme Corp. They're pushing the API migration deadline from March 15 to February 28. Sarah from Platform thinks we can make it if we pull two engineers from the mobile team, but Marcus hasn't signed off on this yet. We need to decide by end of week.

Also — the SOC2 audit findings came back. Three critical items directly overlap with the migration work. Compliance is flagging this as a blocker.

Can someone set up a decision meeting for Thursday?`

// SeedDemo writes one demo signal so a fresh deployment has something to
// classify before a connector fires.
func SeedDemo(st *store.Store) error {
	_, err := st.AddSignal(pipeline.Signal{
		ID:        "slack-1",
		Type:      "slack",
		Title:     "#leadership-sync",
		Source:    "David Chen, VP Engineering",
		Timestamp: "2 min ago",
		Content:   seedContent,
	})
	return err
}

// ensureSeeded seeds only when the store is empty.
func ensureSeeded(st *store.Store, logger *log.Logger) {
	signals, err := st.Signals()
	if err != nil || len(signals) > 0 {
		return
	}
	if err := SeedDemo(st); err != nil {
		logger.Printf("seeding demo signal: %v", err)
	}
}
