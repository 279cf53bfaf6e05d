package ingest

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/eo-tools/eoingest/internal/coastline"
	"github.com/eo-tools/eoingest/internal/eowcs"
	"github.com/eo-tools/eoingest/internal/geom"
	"github.com/eo-tools/eoingest/internal/store"
)

// compiledCondition is one user-defined predicate, compiled once per
// ingestion run.
type compiledCondition struct {
	expr *xpath.Expr
	text string
}

// filter applies the fixed predicate chain to coverage descriptions.
// Missing metadata passes a predicate (a request cannot be disproved
// by an absent field); only a present-and-failing value drops the
// coverage.
type filter struct {
	store      *store.Store
	scenario   *store.Scenario
	toi        geom.TimePeriod
	coast      *coastline.Cache
	conditions []compiledCondition
	condBroken bool
	logger     *slog.Logger
}

func newFilter(st *store.Store, sc *store.Scenario, toi geom.TimePeriod,
	coast *coastline.Cache, logger *slog.Logger) *filter {

	f := &filter{store: st, scenario: sc, toi: toi, coast: coast, logger: logger}
	for _, c := range sc.Conditions {
		if c.XPath == "" {
			continue
		}
		expr, err := xpath.Compile(".//" + c.XPath)
		if err != nil {
			logger.Error("error in custom condition",
				"xpath", c.XPath, "error", err)
			f.condBroken = true
			continue
		}
		f.conditions = append(f.conditions, compiledCondition{expr: expr, text: c.Text})
	}
	return f
}

// accept runs the chain in its fixed order, short-circuiting on the
// first failing predicate. The returned error is non-nil only for a
// malformed request value, which aborts the whole run.
func (f *filter) accept(cd *xmlquery.Node, mdSrc string) (coverageID string, ok bool, err error) {
	coverageID = eowcs.ExtractCoverageID(cd)
	if coverageID == "" {
		f.logger.Error("cannot find CoverageId", "src", mdSrc)
		return "", false, nil
	}

	if f.store.IsArchived(f.scenario.ID, coverageID) {
		f.logger.Debug("coverage is archived, not downloading", "coverageID", coverageID)
		return coverageID, false, nil
	}

	bb, found := eowcs.ExtractGMLBbox(cd, f.logger)
	if !found || !bb.Overlaps(f.scenario.AoiBbox) {
		f.logger.Debug("bbox check failed", "coverageID", coverageID)
		return coverageID, false, nil
	}

	if !f.checkTimePeriod(cd, mdSrc) {
		f.logger.Debug("time period check failed", "coverageID", coverageID)
		return coverageID, false, nil
	}

	if !f.checkText(cd, f.scenario.SensorType, eowcs.SensorTypePath) {
		f.logger.Debug("sensor type check failed", "coverageID", coverageID)
		return coverageID, false, nil
	}

	pass, err := f.checkFloatMax(cd, "view_angle", f.scenario.ViewAngle, eowcs.IncidenceAnglePath)
	if err != nil {
		return coverageID, false, err
	}
	if !pass {
		f.logger.Debug("incidence angle check failed", "coverageID", coverageID)
		return coverageID, false, nil
	}

	pass, err = f.checkFloatMax(cd, "cloud_cover", f.scenario.CloudCover, eowcs.CloudCoverPath)
	if err != nil {
		return coverageID, false, err
	}
	if !pass {
		f.logger.Debug("cloud cover check failed", "coverageID", coverageID)
		return coverageID, false, nil
	}

	if !f.checkCoastline(cd) {
		f.logger.Debug("coastline check failed", "coverageID", coverageID)
		return coverageID, false, nil
	}

	if !f.checkConditions(cd) {
		f.logger.Debug("custom condition check failed", "coverageID", coverageID)
		return coverageID, false, nil
	}

	return coverageID, true, nil
}

func (f *filter) checkTimePeriod(cd *xmlquery.Node, mdSrc string) bool {
	period, found := eowcs.ExtractOMTime(cd, f.logger)
	if !found {
		f.logger.Warn("timePeriod not found in EO metadata", "src", mdSrc)
		return false
	}
	return period.Overlaps(f.toi)
}

// checkText passes unless the request names a value and the metadata
// carries a different one. Comparison is exact and case-sensitive.
func (f *filter) checkText(cd *xmlquery.Node, want, path string) bool {
	if want == "" {
		return true
	}
	got := eowcs.ExtractText(cd, path)
	if got == "" {
		return true
	}
	return want == got
}

// checkFloatMax passes when the metadata value is at most the request
// value. A malformed request value is an error; a malformed metadata
// value is logged and passes.
func (f *filter) checkFloatMax(cd *xmlquery.Node, key, want, path string) (bool, error) {
	if want == "" {
		return true, nil
	}
	limit, err := strconv.ParseFloat(want, 64)
	if err != nil {
		return false, fmt.Errorf("%w: bad value specified for %s: %v", ErrIngestion, key, err)
	}
	got := eowcs.ExtractText(cd, path)
	if got == "" {
		return true, nil
	}
	value, err := strconv.ParseFloat(got, 64)
	if err != nil {
		f.logger.Warn("unexpected error converting value from metadata",
			"key", key, "value", got, "error", err)
		return true, nil
	}
	return value <= limit, nil
}

func (f *filter) checkCoastline(cd *xmlquery.Node) bool {
	if !f.scenario.CoastlineCheck {
		return true
	}
	footprint := eowcs.ExtractFootprint(cd, f.logger)
	return f.coast.Check(footprint, f.logger)
}

// checkConditions implements AND over the custom conditions: each
// XPath must match at least one node, and when a text is requested at
// least one matching node must carry exactly that text.
func (f *filter) checkConditions(cd *xmlquery.Node) bool {
	if f.condBroken {
		return false
	}
	for _, c := range f.conditions {
		nodes := xmlquery.QuerySelectorAll(cd, c.expr)
		if len(nodes) == 0 {
			return false
		}
		if c.text == "" {
			// a node exists but no text to match is requested
			continue
		}
		found := false
		for _, n := range nodes {
			if n.InnerText() == c.text {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
