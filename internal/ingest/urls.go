package ingest

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/google/uuid"

	"github.com/eo-tools/eoingest/internal/coastline"
	"github.com/eo-tools/eoingest/internal/eowcs"
	"github.com/eo-tools/eoingest/internal/geom"
	"github.com/eo-tools/eoingest/internal/store"
)

// checkStop returns ErrStopRequested when a stop request is pending
// for the scenario. Every long-running section calls it between units
// of work.
func (r *Runner) checkStop(scenarioID int64) error {
	if r.store.IsStopping(scenarioID) {
		return ErrStopRequested
	}
	return nil
}

// seriesIDs returns the dataset series whose advertised time period
// and WGS84 bbox overlap the scenario's TOI and AOI.
func (r *Runner) seriesIDs(scenarioID int64, summaries []*xmlquery.Node,
	aoi geom.Bbox, toi geom.TimePeriod) ([]string, error) {

	var ids []string
	for _, dss := range summaries {
		if err := r.checkStop(scenarioID); err != nil {
			return nil, err
		}

		period, found := eowcs.ExtractTimePeriod(dss)
		if !found {
			r.logger.Warn("failed to extract time range from dataset series summary")
			continue
		}
		if !toi.Overlaps(period) {
			continue
		}

		bb, found := eowcs.ExtractWGS84Bbox(dss, r.logger)
		if !found {
			r.logger.Warn("failed to extract bbox from dataset series summary")
			continue
		}
		if bb.Overlaps(aoi) {
			ids = append(ids, eowcs.DatasetSeriesID(dss, r.logger))
		}
	}
	return ids, nil
}

// coverageURLs fetches each DescribeEOCoverageSet document, runs the
// predicate chain over its coverage descriptions and emits GetCoverage
// URLs, preserving response order.
func (r *Runner) coverageURLs(ctx context.Context, sc *store.Scenario,
	version string, ids []string, toi geom.TimePeriod,
	coast *coastline.Cache) ([]string, []string, error) {

	r.logger.Info("processing EOCoverageSetDescription urls", "count", len(ids))

	f := newFilter(r.store, sc, toi, coast, r.logger)

	var urls, coverageIDs []string
	for i, eoid := range ids {
		if err := r.checkStop(sc.ID); err != nil {
			return nil, nil, err
		}

		percent := float64(i) / float64(len(ids)) * 100
		if percent < 0.5 {
			percent = 1
		}
		r.store.SetScenarioStatus(sc.ID, false, "Create DAR: get MD", percent)

		r.logger.Info("processing MD for EOID", "eoid", eoid)
		mdURL := eowcs.DescribeCoverageSetURL(
			sc.Dsrc, version, eoid, sc.AoiBbox, sc.FromDate, sc.ToDate)

		root, err := r.wcs.FetchCoverageSet(ctx, mdURL)
		if err != nil {
			r.logger.Error("cannot get coverage set", "url", mdURL, "error", err)
			continue
		}
		if err := r.checkStop(sc.ID); err != nil {
			return nil, nil, err
		}

		if returned, matched, ok := eowcs.ResultCounts(root); ok {
			r.logger.Debug("MD reports result counts",
				"numberReturned", returned, "numberMatched", matched)
		}

		cds := eowcs.CoverageDescriptions(root)
		if len(cds) == 0 {
			r.logger.Warn("no CoverageDescriptions found", "url", mdURL)
		}

		passed := 0
		for _, cd := range cds {
			if err := r.checkStop(sc.ID); err != nil {
				return nil, nil, err
			}
			coverageID, ok, err := f.accept(cd, mdURL)
			if err != nil {
				return nil, nil, err
			}
			if !ok {
				continue
			}
			passed++
			urls = append(urls, eowcs.GetCoverageURL(sc.Dsrc, version, coverageID, sc.AoiBbox))
			coverageIDs = append(coverageIDs, coverageID)
		}
		r.logger.Debug("conditions evaluated",
			"eoid", eoid, "passed", passed, "total", len(cds))
	}

	r.store.SetScenarioStatus(sc.ID, false, "Create DAR: get MD", 100)
	return urls, coverageIDs, nil
}

// generateURLs is the EO-WCS discovery path: capabilities, dataset
// series selection, per-series coverage descriptions, predicate chain.
func (r *Runner) generateURLs(ctx context.Context, sc *store.Scenario,
	coast *coastline.Cache) ([]string, []string, error) {

	parsed, err := url.Parse(sc.Dsrc)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		r.logger.Error("unsupported data source protocol", "dsrc", sc.Dsrc)
		return nil, nil, nil
	}

	caps, err := r.wcs.GetCapabilities(ctx, sc.Dsrc)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: cannot get capabilities from '%s': %v",
			ErrIngestion, sc.Dsrc, err)
	}
	if err := r.checkStop(sc.ID); err != nil {
		return nil, nil, err
	}

	version := eowcs.ExtractServiceTypeVersion(caps, r.logger)
	summaries := eowcs.DatasetSeriesSummaries(caps, r.logger)

	toi, err := geom.NewTimePeriod(sc.FromDate, sc.ToDate)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: bad scenario time range: %v", ErrIngestion, err)
	}

	// use only the requested series when the scenario names them
	ids := sc.EOIDs
	if len(ids) == 0 {
		ids, err = r.seriesIDs(sc.ID, summaries, sc.AoiBbox, toi)
		if err != nil {
			return nil, nil, err
		}
	}
	r.logger.Debug("qualified dataset series", "count", len(ids))

	return r.coverageURLs(ctx, sc, version, ids, toi, coast)
}

// createDownloadDir builds the per-run download subtree
// downloadDir/YYYY/MM/<leaf> where leaf is ncnID_timestamp_random,
// returning both the absolute and the root-relative path.
func createDownloadDir(root, ncnID string) (fullPath, relPath string, err error) {
	now := time.Now().UTC()
	year := strconv.Itoa(now.Year())
	month := strconv.Itoa(int(now.Month()))
	leaf := fmt.Sprintf("%s_%s_%s", ncnID,
		now.Format("060102-150405"), strings.SplitN(uuid.NewString(), "-", 2)[0])

	parent := filepath.Join(root, year, month)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", "", fmt.Errorf("cannot create download dir %s: %w", parent, err)
	}
	fullPath = filepath.Join(parent, leaf)
	if err := os.Mkdir(fullPath, 0o755); err != nil {
		return "", "", fmt.Errorf("cannot create download dir %s: %w", fullPath, err)
	}
	return fullPath, filepath.Join(year, month, leaf), nil
}

// productDirWidth picks the digit width of the per-product directory
// numbering from the request count.
func productDirWidth(nreqs int) int {
	switch {
	case nreqs > 10000:
		return 5
	case nreqs > 1000:
		return 4
	default:
		return 3
	}
}
