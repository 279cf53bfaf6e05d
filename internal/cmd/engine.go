package cmd

import (
	"time"

	"github.com/spf13/viper"

	"github.com/eo-tools/eoingest/internal/dm"
	"github.com/eo-tools/eoingest/internal/eowcs"
	"github.com/eo-tools/eoingest/internal/ingest"
	"github.com/eo-tools/eoingest/internal/metrics"
	"github.com/eo-tools/eoingest/internal/product"
	"github.com/eo-tools/eoingest/internal/store"
	"github.com/eo-tools/eoingest/internal/workflow"
)

func init() {
	viper.SetDefault("dm.port_wait_max", 60*time.Second)
	viper.SetDefault("dm.status_interval", ingest.DefaultStatusInterval)
	viper.SetDefault("workflow.workers", 1)
	viper.SetDefault("workflow.trigger_interval", workflow.DefaultTriggerInterval)
	viper.SetDefault("scripts.dir", "scripts")
	viper.SetDefault("scripts.default_catreg", "catreg.sh")
	viper.SetDefault("scripts.default_catdereg", "catdereg.sh")
}

// engine bundles the long-lived components every command variant needs:
// the scenario store, the Download Manager controller and the workflow
// manager wired on top of them.
type engine struct {
	store   *store.Store
	dmc     *dm.Controller
	metrics *metrics.Metrics
	manager *workflow.Manager
}

func newEngine(wf workflow.Config) (*engine, error) {
	st, err := store.Open(viper.GetString("db"), logger)
	if err != nil {
		return nil, err
	}

	dmc := dm.NewController(dm.Config{
		ConfigPath:  viper.GetString("dm.config"),
		IEPort:      viper.GetString("server.port"),
		MaxPortWait: viper.GetDuration("dm.port_wait_max"),
	}, nil, logger)
	listening, err := dmc.Configure()
	if err != nil {
		st.Close() // nolint:errcheck
		return nil, err
	}
	if !listening {
		logger.Warn("download manager port not detected, proceeding anyway")
	}

	wcs := eowcs.NewClient(nil, logger)
	runner := ingest.NewRunner(st, dmc, wcs, ingest.Config{
		StatusInterval:     viper.GetDuration("dm.status_interval"),
		CoastlineShapefile: viper.GetString("ingest.coastline_shapefile"),
	}, logger)
	invoker := product.NewInvoker(st,
		viper.GetString("scripts.dir"),
		viper.GetString("scripts.default_catreg"),
		viper.GetString("scripts.default_catdereg"),
		logger)

	m := metrics.New()
	mgr := workflow.New(st, runner, dmc, invoker, m, wf, logger)

	return &engine{store: st, dmc: dmc, metrics: m, manager: mgr}, nil
}

func (e *engine) close() {
	if err := e.store.Close(); err != nil {
		logger.Warn("cannot close store", "error", err)
	}
}
