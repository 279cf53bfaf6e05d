package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eo-tools/eoingest/internal/ingest"
	"github.com/eo-tools/eoingest/internal/server"
	"github.com/eo-tools/eoingest/internal/workflow"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ingestion engine (workers, auto-trigger and HTTP server)",
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Int("workers", 1, "Number of workflow workers")
	runCmd.Flags().Duration("trigger-interval", workflow.DefaultTriggerInterval, "Pause between auto-trigger scans")
	runCmd.Flags().Duration("max-port-wait", 60*time.Second, "Startup wait ceiling for the Download Manager listener")
	runCmd.Flags().Duration("status-interval", ingest.DefaultStatusInterval, "Pause between Download Manager status polls")
	runCmd.Flags().String("scripts-dir", "scripts", "Directory holding the site ingestion scripts")
	runCmd.Flags().String("catreg-script", "catreg.sh", "Default catalogue registration script")
	runCmd.Flags().String("catdereg-script", "catdereg.sh", "Default catalogue de-registration script")
	runCmd.Flags().String("coastline-shapefile", "", "Land-polygon shapefile for the coastline check")

	mustBind := func(key string, name string) {
		if err := viper.BindPFlag(key, runCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}

	mustBind("workflow.workers", "workers")
	mustBind("workflow.trigger_interval", "trigger-interval")
	mustBind("dm.port_wait_max", "max-port-wait")
	mustBind("dm.status_interval", "status-interval")
	mustBind("scripts.dir", "scripts-dir")
	mustBind("scripts.default_catreg", "catreg-script")
	mustBind("scripts.default_catdereg", "catdereg-script")
	mustBind("ingest.coastline_shapefile", "coastline-shapefile")
}

func runRun(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	eng, err := newEngine(workflow.Config{
		Workers:         viper.GetInt("workflow.workers"),
		TriggerInterval: viper.GetDuration("workflow.trigger_interval"),
	})
	if err != nil {
		return err
	}
	defer eng.close()

	eng.manager.Start()
	defer eng.manager.Stop()

	addr := ":" + viper.GetString("server.port")
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.New(eng.dmc, eng.metrics.Handler(), logger).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ingestion engine listening",
			"addr", addr,
			"workers", viper.GetInt("workflow.workers"),
			"db", viper.GetString("db"),
			"download_dir", eng.dmc.DownloadDir(),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown", "error", err)
		}
	}
	return nil
}
