package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eo-tools/eoingest/internal/store"
	"github.com/eo-tools/eoingest/internal/workflow"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <scenario-id>",
	Short: "Ingest one scenario now and wait for it to finish",
	Long: `Ingest runs a single scenario to completion: coverage discovery,
filtering, download and product registration. With --metadata/--data it
skips the discovery and registers the given local files instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().String("metadata", "", "Local metadata file to ingest instead of downloading")
	ingestCmd.Flags().String("data", "", "Local data file to ingest instead of downloading")
	ingestCmd.Flags().String("dir", "", "Directory the manifest for local files is written to")
}

func runIngest(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid scenario id %q", args[0])
	}
	metadata, _ := cmd.Flags().GetString("metadata")
	data, _ := cmd.Flags().GetString("data")
	dir, _ := cmd.Flags().GetString("dir")

	// Keep the auto-trigger out of the way for a one-shot run.
	eng, err := newEngine(workflow.Config{Workers: 1, TriggerInterval: 24 * time.Hour})
	if err != nil {
		return err
	}
	defer eng.close()

	sc, err := eng.store.GetScenario(id)
	if err != nil {
		return fmt.Errorf("cannot load scenario %d: %w", id, err)
	}

	task := workflow.Task{Type: workflow.TaskIngestScenario, ScenarioID: id}
	if metadata != "" || data != "" {
		if dir == "" {
			return fmt.Errorf("--dir is required with --metadata/--data")
		}
		task = workflow.Task{
			Type:            workflow.TaskIngestLocalProduct,
			ScenarioID:      id,
			NcnID:           sc.NcnID,
			Dir:             dir,
			Metadata:        metadata,
			Data:            data,
			CatRegistration: sc.CatRegistration,
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng.manager.Start()
	defer eng.manager.Stop()
	eng.manager.Submit(task)

	status, err := waitForScenario(ctx, eng, id)
	if err != nil {
		return err
	}
	logger.Info("scenario finished", "scenarioID", id, "ncnID", sc.NcnID, "status", status)
	if status == store.StatusIngestError {
		return fmt.Errorf("scenario %s ended with status %q", sc.NcnID, status)
	}
	return nil
}

// waitForScenario polls the status row until the run reaches a terminal
// state. A signal propagates a stop request and keeps waiting, so the
// worker can unwind cleanly.
func waitForScenario(ctx context.Context, eng *engine, id int64) (string, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	sig := ctx.Done()
	for {
		select {
		case <-sig:
			sig = nil
			logger.Info("stop requested", "scenarioID", id)
			eng.manager.StopScenario(id)
		case <-ticker.C:
			st, err := eng.store.Status(id)
			if err != nil {
				return "", err
			}
			switch st.Status {
			case store.StatusIdle, store.StatusIngestError:
				return st.Status, nil
			}
			logger.Debug("scenario running", "scenarioID", id,
				"status", st.Status, "done", st.Done)
		}
	}
}
