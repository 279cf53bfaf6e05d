// Package ingest turns one scenario into downloaded products: it
// discovers matching coverages over EO-WCS, filters them through the
// predicate chain, submits a DAR to the Download Manager and waits for
// the downloads to finish.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/eo-tools/eoingest/internal/coastline"
	"github.com/eo-tools/eoingest/internal/dm"
	"github.com/eo-tools/eoingest/internal/eowcs"
	"github.com/eo-tools/eoingest/internal/store"
)

// DefaultStatusInterval is the pause between DM status polls.
const DefaultStatusInterval = 30 * time.Second

// Run outcome codes.
const (
	CodeOK       = "OK"
	CodeNoAction = "NO_ACTION"
)

// Config carries the run-level knobs.
type Config struct {
	// StatusInterval is the pause between DM status polls.
	StatusInterval time.Duration
	// CoastlineShapefile is the land-polygon shapefile used when a
	// scenario enables the coastline check.
	CoastlineShapefile string
}

// Runner executes ingestion runs against a shared store, DM controller
// and EO-WCS client.
type Runner struct {
	store              *store.Store
	dmc                *dm.Controller
	wcs                *eowcs.Client
	logger             *slog.Logger
	statusInterval     time.Duration
	coastlineShapefile string
}

func NewRunner(st *store.Store, dmc *dm.Controller, wcs *eowcs.Client,
	cfg Config, logger *slog.Logger) *Runner {

	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StatusInterval == 0 {
		cfg.StatusInterval = DefaultStatusInterval
	}
	return &Runner{
		store:              st,
		dmc:                dmc,
		wcs:                wcs,
		logger:             logger,
		statusInterval:     cfg.StatusInterval,
		coastlineShapefile: cfg.CoastlineShapefile,
	}
}

// Result is the outcome of one ingestion run. Errors counts product
// downloads that ended IN_ERROR; the caller adds script failures.
// CoverageIDs holds the accepted coverage ids in submission order, the
// same order as the numbered product directories.
type Result struct {
	Errors      int
	DownloadDir string
	DarURL      string
	DarUUID     string
	CoverageIDs []string
	Code        string
}

// Run drives one scenario from coverage discovery to completed
// downloads. It returns ErrStopRequested when a stop request was
// honoured at a checkpoint and dm.ErrDM when the Download Manager
// fails the scenario.
func (r *Runner) Run(ctx context.Context, sc *store.Scenario) (Result, error) {
	root := r.dmc.DownloadDir()
	if err := checkWritable(root); err != nil {
		return Result{}, fmt.Errorf("%w: cannot write/read %s: %v", ErrIngestion, root, err)
	}
	if sc.DsrcType != store.DsrcEOWCS {
		return Result{}, fmt.Errorf("%w: data source type %s is not implemented",
			ErrIngestion, sc.DsrcType)
	}

	var coast *coastline.Cache
	if sc.CoastlineCheck {
		var err error
		coast, err = coastline.BuildCache(r.coastlineShapefile, sc.AoiBbox, r.logger)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrIngestion, err)
		}
	}

	urls, coverageIDs, err := r.generateURLs(ctx, sc, coast)
	if err != nil {
		return Result{}, err
	}
	if len(urls) == 0 {
		r.logger.Warn("no GetCoverage requests generated", "ncnID", sc.NcnID)
		return Result{Code: CodeNoAction}, nil
	}
	if err := r.checkStop(sc.ID); err != nil {
		return Result{}, err
	}

	r.logger.Info("submitting URLs to the Download Manager",
		"ncnID", sc.NcnID, "count", len(urls))
	dlDir, res, err := r.requestDownload(sc, urls)
	if err != nil {
		return Result{}, err
	}

	nErrors, err := r.waitForDownload(sc.ID, res.DarURL)
	if err != nil {
		return Result{}, err
	}
	r.logger.Info("products downloaded", "ncnID", sc.NcnID, "dir", dlDir)

	return Result{
		Errors:      nErrors,
		DownloadDir: dlDir,
		DarURL:      res.DarURL,
		DarUUID:     res.DarUUID,
		CoverageIDs: coverageIDs,
		Code:        CodeOK,
	}, nil
}

// requestDownload creates the per-run download subtree, pairs each URL
// with a numbered product directory, submits the DAR and claims it as
// the scenario's active DAR.
func (r *Runner) requestDownload(sc *store.Scenario, urls []string) (string, dm.SubmitResult, error) {
	fullPath, relPath, err := createDownloadDir(r.dmc.DownloadDir(), sc.NcnID)
	if err != nil {
		return "", dm.SubmitResult{}, fmt.Errorf("%w: %v", ErrIngestion, err)
	}

	width := productDirWidth(len(urls))
	products := make([]dm.Product, 0, len(urls))
	for i, u := range urls {
		dir := fmt.Sprintf("%s/p_%s_%0*d", relPath, sc.NcnID, width, i+1)
		products = append(products, dm.Product{
			DownloadDirectory: dir,
			ProductAccessURL:  u,
		})
	}

	res, err := r.dmc.SubmitDAR(dm.BuildDAR(products))
	if err != nil {
		return "", dm.SubmitResult{}, err
	}
	if res.Status != dm.SubmitOK {
		return "", dm.SubmitResult{}, fmt.Errorf("%w: DAR submit problem, status: %s",
			dm.ErrDM, res.Status)
	}
	r.store.SetActiveDAR(sc.ID, res.DarUUID)

	return fullPath, res, nil
}

// checkWritable probes that the download root exists and accepts
// writes.
func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".access-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
