package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/eo-tools/eoingest/internal/dm"
	"github.com/eo-tools/eoingest/internal/ingest"
	"github.com/eo-tools/eoingest/internal/product"
	"github.com/eo-tools/eoingest/internal/store"
)

// ingestScenario drives a full scenario run: coverage discovery and
// download through the ingest runner, then per-product manifest
// creation and registration scripts.
func (m *Manager) ingestScenario(ctx context.Context, t Task) error {
	scID := t.ScenarioID
	m.store.SetScenarioStatus(scID, false, statusGeneratingURLs, 1)

	sc, err := m.store.GetScenario(scID)
	if err != nil {
		m.logger.Error("cannot load scenario", "scenarioID", scID, "error", err)
		m.store.SetScenarioStatus(scID, true, store.StatusIngestError, 0)
		return err
	}
	scripts := t.Scripts
	if scripts == nil {
		scripts = sc.Scripts
	}

	m.store.SetIngestionPid(scID, os.Getpid())
	defer m.store.SetIngestionPid(scID, 0)

	res, err := m.runner.Run(ctx, sc)
	switch {
	case errors.Is(err, ingest.ErrStopRequested):
		m.logger.Info("stop request from user, ingestion stopped", "ncnID", sc.NcnID)
		m.store.SetScenarioStatus(scID, true, store.StatusIdle, 0)
		return err
	case err != nil:
		if errors.Is(err, dm.ErrDM) {
			m.metrics.DARsSubmitted.WithLabelValues("failed").Inc()
		}
		m.logger.Error("error while ingesting", "ncnID", sc.NcnID, "error", err)
		m.store.SetScenarioStatus(scID, true, store.StatusIngestError, 0)
		return err
	}
	if res.Code == ingest.CodeNoAction {
		m.store.SetScenarioStatus(scID, true, store.StatusIdle, 0)
		return nil
	}
	m.metrics.DARsSubmitted.WithLabelValues("completed").Inc()

	nErrors := res.Errors
	m.metrics.ProductErrors.Add(float64(res.Errors))

	n, err := m.registerProducts(ctx, sc, scripts, res)
	nErrors += n
	if errors.Is(err, ingest.ErrStopRequested) {
		m.logger.Info("stop request from user, ingestion stopped", "ncnID", sc.NcnID)
		m.store.SetScenarioStatus(scID, true, store.StatusIdle, 0)
		return err
	}

	if nErrors > 0 {
		m.logger.Error("ingestion encountered errors",
			"ncnID", sc.NcnID, "nErrors", nErrors)
		m.store.SetScenarioStatus(scID, true, store.StatusIngestError, 0)
		return fmt.Errorf("%s: ingestion encountered %d errors", sc.NcnID, nErrors)
	}

	m.store.SetScenarioStatus(scID, true, store.StatusIdle, 0)
	m.logger.Info("ingestion completed", "ncnID", sc.NcnID)
	return nil
}

// registerProducts walks the numbered product directories of one run,
// splits each downloaded product, runs the registration scripts and
// archives the coverage ids of cleanly registered products. Directory
// order matches coverage id order: the fixed-width numbering sorts
// lexicographically.
func (m *Manager) registerProducts(ctx context.Context, sc *store.Scenario,
	scripts []string, res ingest.Result) (int, error) {

	entries, err := os.ReadDir(res.DownloadDir)
	if err != nil {
		m.logger.Error("cannot read download dir",
			"dir", res.DownloadDir, "error", err)
		return 1, nil
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}

	nErrors := 0
	for i, name := range dirs {
		mf, err := product.SplitAndCreateManifest(
			filepath.Join(res.DownloadDir, name), sc.NcnID, m.logger)
		if err != nil {
			m.logger.Error("cannot prepare product",
				"ncnID", sc.NcnID, "dir", name, "error", err)
			nErrors++
			continue
		}

		n, err := m.invoker.Run(ctx, sc.ID, sc.NcnID,
			m.invoker.IngestArgs(scripts, mf, sc.CatRegistration))
		nErrors += n
		m.metrics.ProductErrors.Add(float64(n))
		if err != nil {
			return nErrors, err
		}

		if n == 0 && i < len(res.CoverageIDs) {
			if err := m.store.AddToArchive(sc.ID, res.CoverageIDs[i]); err != nil {
				m.logger.Warn("cannot archive coverage",
					"coverageID", res.CoverageIDs[i], "error", err)
			}
		}

		percent := 100 * float64(i+1) / float64(len(dirs))
		if percent < 1 {
			percent = 1
		}
		m.store.SetScenarioStatus(sc.ID, false, statusIngesting, percent)
	}
	return nErrors, nil
}

// ingestLocalProduct registers a product whose metadata and data files
// are already on local disk.
func (m *Manager) ingestLocalProduct(ctx context.Context, t Task, status string) error {
	scID := t.ScenarioID
	m.store.SetScenarioStatus(scID, false, status, 1)
	m.store.SetIngestionPid(scID, os.Getpid())
	defer m.store.SetIngestionPid(scID, 0)

	mf, err := product.CreateManifest(t.Dir, t.NcnID, t.Metadata, t.Data, m.logger)
	if err != nil {
		m.logger.Error("error while ingesting local product",
			"ncnID", t.NcnID, "error", err)
		m.store.SetScenarioStatus(scID, true, store.StatusIngestError, 0)
		return err
	}

	nErrors, err := m.invoker.Run(ctx, scID, t.NcnID,
		m.invoker.IngestArgs(t.Scripts, mf, t.CatRegistration))
	if errors.Is(err, ingest.ErrStopRequested) {
		m.logger.Info("stop request from user, local ingestion stopped", "ncnID", t.NcnID)
		m.store.SetScenarioStatus(scID, true, store.StatusIdle, 0)
		return err
	}
	if nErrors > 0 {
		m.metrics.ProductErrors.Add(float64(nErrors))
		m.store.SetScenarioStatus(scID, true, store.StatusIngestError, 0)
		return fmt.Errorf("%s: local ingestion encountered %d errors", t.NcnID, nErrors)
	}

	m.store.SetScenarioStatus(scID, true, store.StatusIdle, 0)
	return nil
}
