package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tradeledger/internal/config"
	"tradeledger/internal/logging"
)

// Version information, set with -ldflags at build time.
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

// skipConfig marks commands that run without loading config.toml.
const skipConfig = "skip-config"

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	app := &App{Logger: logger}

	rootCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Event-sourced portfolio ledger",
		Long: `ledger rebuilds cash, holdings, cost basis and profit of a portfolio by
replaying its append-only order log against daily prices.

Order files are appended with 'ledger run'; every run replays the full log.
Use 'ledger config init' to create the configuration files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if cmd.Annotations[skipConfig] == "" {
				dir, _ := cmd.Flags().GetString("config")
				cfg, err := config.Load(dir)
				if err != nil {
					return err
				}
				app.Config = cfg
				app.Logger = logging.NewLoggerWithConfig(cfg.LogConfig())
			}
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/tradeledger)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")

	addLedgerCommands(rootCmd, app)
	addOrderCommands(rootCmd, app)
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Show version information",
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("ledger %s (built %s)\n", Version, BuildDate)
			return nil
		},
	}
}
