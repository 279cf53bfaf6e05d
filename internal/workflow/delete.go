package workflow

import (
	"context"
	"fmt"

	"github.com/eo-tools/eoingest/internal/store"
)

// deleteScenario runs the de-registration scripts and removes the
// scenario with all its rows. A scenario with an active DAR cannot be
// deleted; the user must stop it first.
func (m *Manager) deleteScenario(ctx context.Context, t Task) error {
	scID := t.ScenarioID

	sc, err := m.store.GetScenario(scID)
	if err != nil {
		m.logger.Error("cannot load scenario for deletion",
			"scenarioID", scID, "error", err)
		return err
	}

	st, err := m.store.Status(scID)
	if err != nil {
		m.logger.Error("cannot read scenario status",
			"scenarioID", scID, "error", err)
		return err
	}
	if st.ActiveDAR != "" {
		m.logger.Error("cannot delete, scenario has an active DAR, stop it first",
			"ncnID", sc.NcnID)
		m.store.SetScenarioStatus(scID, true, store.StatusNotDeleted, 0)
		return fmt.Errorf("%s: scenario has an active DAR", sc.NcnID)
	}

	m.store.SetScenarioStatus(scID, false, statusDeregistering, 1)

	scripts := t.Scripts
	if scripts == nil {
		scripts = sc.Scripts
	}
	nErrors, err := m.invoker.Run(ctx, scID, sc.NcnID,
		m.invoker.DeleteArgs(scripts, sc.NcnID, sc.CatRegistration))
	if err != nil {
		nErrors++
	}
	if nErrors > 0 {
		m.logger.Error("deletion scripts failed", "ncnID", sc.NcnID, "nErrors", nErrors)
		m.store.SetScenarioStatus(scID, true, store.StatusNotDeleted, 0)
		return fmt.Errorf("%s: %d errors while de-registering", sc.NcnID, nErrors)
	}

	m.store.SetScenarioStatus(scID, false, statusDeleting, 1)
	if err := m.store.DeleteScenario(scID); err != nil {
		m.logger.Error("cannot delete scenario", "ncnID", sc.NcnID, "error", err)
		return err
	}
	m.logger.Info("scenario deleted", "ncnID", sc.NcnID)
	return nil
}
