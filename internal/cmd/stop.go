package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eo-tools/eoingest/internal/dm"
	"github.com/eo-tools/eoingest/internal/store"
)

var stopCmd = &cobra.Command{
	Use:   "stop <scenario-id>",
	Short: "Request a running scenario to stop",
	Long: `Stop flags the scenario's status row so the owning worker unwinds at
its next checkpoint, and cancels any active data access request at the
Download Manager.`,
	Args: cobra.ExactArgs(1),
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid scenario id %q", args[0])
	}

	st, err := store.Open(viper.GetString("db"), logger)
	if err != nil {
		return err
	}
	defer st.Close() // nolint:errcheck

	status, err := st.Status(id)
	if err != nil {
		return fmt.Errorf("cannot read scenario %d: %w", id, err)
	}

	// The recorded pid belongs to the engine process; trusting it here
	// lets the stop request reach a run owned by another process.
	activeDAR := st.RequestStop(id, status.IngestionPid)
	if activeDAR != "" {
		if err := cancelDAR(activeDAR); err != nil {
			logger.Warn("cannot cancel active DAR", "darUuid", activeDAR, "error", err)
		}
	}

	after, err := st.Status(id)
	if err != nil {
		return err
	}
	logger.Info("stop requested", "scenarioID", id, "status", after.Status)
	return nil
}

func cancelDAR(darUUID string) error {
	dmc := dm.NewController(dm.Config{
		ConfigPath:  viper.GetString("dm.config"),
		IEPort:      viper.GetString("server.port"),
		MaxPortWait: viper.GetDuration("dm.port_wait_max"),
	}, nil, logger)
	if _, err := dmc.Configure(); err != nil {
		return err
	}
	return dmc.CancelDAR(darUUID)
}
