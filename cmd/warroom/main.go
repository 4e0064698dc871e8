package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/warroom-labs/warroom/internal/config"
	"github.com/warroom-labs/warroom/internal/models"
)

const (
	appName = "warroom"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	if lvl, err := zerolog.ParseLevel(os.Getenv("WARROOM_LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Autonomous market monitoring and paper-trading orchestrator",
		Version: version,
		Long: `warroom watches bond yields, the VIX, market drawdown, news, macro
releases, and congressional disclosures, distills them into a DEFCON
alert level, and paper-trades defensive crisis packages on escalation.

Run 'warroom continuous' to start the monitoring loop, then steer it
from another terminal with 'warroom cmd <command>'.`,
	}
	rootCmd.PersistentFlags().String("config", "", "Path to the JSON config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (trace|debug|info|warn|error)")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		if raw, _ := cmd.Flags().GetString("log-level"); raw != "" {
			if lvl, err := zerolog.ParseLevel(raw); err == nil {
				zerolog.SetGlobalLevel(lvl)
			} else {
				log.Warn().Str("level", raw).Msg("unknown log level, keeping default")
			}
		}
	}

	continuousCmd := &cobra.Command{
		Use:   "continuous [interval-minutes]",
		Short: "Run the monitoring loop until stopped",
		Long: `Starts the orchestrator: monitoring cycles on the configured interval,
operator commands drained between cycles, briefings at their windows.
Stops cleanly on SIGINT/SIGTERM or an operator stop/estop command.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runContinuous,
	}
	continuousCmd.Flags().String("broker", "", "Override broker mode (disabled|semi_auto|full_auto)")

	testCmd := &cobra.Command{
		Use:   "test",
		Short: "Run a single monitoring cycle and exit",
		RunE:  runTest,
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Validate config, database, and credentials",
		RunE:  runHealth,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print the latest recorded cycle snapshot",
		RunE:  runStatus,
	}

	cmdCmd := &cobra.Command{
		Use:   "cmd COMMAND [ARGS...]",
		Short: "Send a command to a running orchestrator",
		Long: `Drops the command on the file bus and waits for the orchestrator's
response. Run 'warroom cmd help' for the command set.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCmd,
	}

	rootCmd.AddCommand(continuousCmd, testCmd, healthCmd, statusCmd, cmdCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// loadConfig reads the config honoring the --config flag and applies the
// continuous-mode overrides shared by the subcommands.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("WARROOM_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("broker") {
		mode, _ := cmd.Flags().GetString("broker")
		if _, ok := models.ParseBrokerMode(mode); !ok {
			return nil, fmt.Errorf("invalid --broker %q (disabled|semi_auto|full_auto)", mode)
		}
		cfg.BrokerMode = mode
	}
	return cfg, nil
}
