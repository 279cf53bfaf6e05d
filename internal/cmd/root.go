package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "eoingest",
	Short: "Earth-Observation product ingestion engine",
	Long: `eoingest discovers Earth-Observation coverages over EO-WCS, filters
them against scenario criteria, hands the accepted products to the
Download Manager and registers the downloaded files through site
scripts.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("db", "eoingest.db", "Path of the scenario database")
	rootCmd.PersistentFlags().String("dm-config", "", "Path of the Download Manager properties file")
	rootCmd.PersistentFlags().String("port", "8000", "Port of the engine's own HTTP server")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose logging")

	mustBind := func(key string, name string) {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}

	mustBind("db", "db")
	mustBind("dm.config", "dm-config")
	mustBind("server.port", "port")
	mustBind("verbose", "verbose")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("EOINGEST")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

func initLogging() {
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}
