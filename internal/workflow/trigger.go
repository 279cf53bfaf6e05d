package workflow

import (
	"context"
	"time"
)

// trigger is the auto-ingestion loop: it periodically scans all
// scenarios and enqueues those whose starting date has passed.
func (m *Manager) trigger(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.TriggerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.scanScenarios(time.Now().UTC())
		}
	}
}

func (m *Manager) scanScenarios(now time.Time) {
	scenarios, err := m.store.ListScenarios()
	if err != nil {
		m.logger.Error("auto-trigger cannot list scenarios", "error", err)
		return
	}
	for _, sc := range scenarios {
		if sc.RepeatInterval == 0 || sc.StartingDate.After(now) {
			continue
		}
		next := nextStartingDate(sc.StartingDate, sc.RepeatInterval, now)
		if err := m.store.SetStartingDate(sc.ID, next); err != nil {
			m.logger.Error("cannot advance starting date",
				"ncnID", sc.NcnID, "error", err)
			continue
		}
		m.logger.Debug("auto-trigger enqueues scenario",
			"ncnID", sc.NcnID, "next", next)
		m.Submit(Task{
			Type:       TaskIngestScenario,
			ScenarioID: sc.ID,
			Scripts:    sc.Scripts,
		})
	}
}

// nextStartingDate advances start by multiples of the repeat interval
// until it exceeds now. A scenario that has fallen more than one
// interval behind first snaps to now-interval, so a long outage does
// not replay every missed run.
func nextStartingDate(start time.Time, repeatIntervalSecs int64, now time.Time) time.Time {
	interval := time.Duration(repeatIntervalSecs) * time.Second
	if prev := now.Add(-interval); !start.After(prev) {
		start = prev
	}
	for !start.After(now) {
		start = start.Add(interval)
	}
	return start
}
