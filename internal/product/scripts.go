package product

import (
	"context"
	"log/slog"
	"os/exec"
	"path/filepath"

	"github.com/eo-tools/eoingest/internal/ingest"
	"github.com/eo-tools/eoingest/internal/store"
)

// Invoker runs the site's registration and de-registration scripts
// against product manifests. Scripts are external executables; a
// non-zero exit is counted, not fatal, so one bad product does not
// abort the rest of a run.
type Invoker struct {
	store          *store.Store
	scriptsDir     string
	catregScript   string
	catderegScript string
	logger         *slog.Logger
}

func NewInvoker(st *store.Store, scriptsDir, catregScript, catderegScript string,
	logger *slog.Logger) *Invoker {

	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{
		store:          st,
		scriptsDir:     scriptsDir,
		catregScript:   catregScript,
		catderegScript: catderegScript,
		logger:         logger,
	}
}

// IngestArgs pairs each ingestion script with the manifest path, plus
// the catalogue-registration helper when the scenario asks for it.
func (v *Invoker) IngestArgs(scripts []string, manifest string, catReg bool) [][]string {
	var catRegArg string
	if catReg {
		catRegArg = "-catreg=" + filepath.Join(v.scriptsDir, v.catregScript)
	}
	args := make([][]string, 0, len(scripts))
	for _, s := range scripts {
		if catReg {
			args = append(args, []string{s, manifest, catRegArg})
		} else {
			args = append(args, []string{s, manifest})
		}
	}
	return args
}

// DeleteArgs pairs each deletion script with the scenario's ncn id,
// plus the catalogue de-registration helper when the scenario was
// catalogue-registered.
func (v *Invoker) DeleteArgs(scripts []string, ncnID string, catReg bool) [][]string {
	var catRegArg string
	if catReg {
		catRegArg = "-catreg=" + filepath.Join(v.scriptsDir, v.catderegScript)
	}
	args := make([][]string, 0, len(scripts))
	for _, s := range scripts {
		if catReg {
			args = append(args, []string{s, ncnID, catRegArg})
		} else {
			args = append(args, []string{s, ncnID})
		}
	}
	return args
}

// Run executes each prepared script invocation in order, rechecking
// the scenario's stop flag between scripts. It returns the number of
// failed invocations; ingest.ErrStopRequested aborts the remainder.
func (v *Invoker) Run(ctx context.Context, scenarioID int64, ncnID string,
	argsList [][]string) (int, error) {

	nErrors := 0
	for _, args := range argsList {
		if v.store.IsStopping(scenarioID) {
			return nErrors, ingest.ErrStopRequested
		}
		v.logger.Info("running script", "ncnID", ncnID, "script", args[0])

		cmd := exec.CommandContext(ctx, args[0], args[1:]...)
		if err := cmd.Run(); err != nil {
			nErrors++
			v.logger.Error("script failed",
				"ncnID", ncnID, "script", args[0], "error", err)
		}
	}
	return nErrors, nil
}
