package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"tradeledger/internal/config"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View, validate and create the configuration files.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg := redacted(app.Config)
			if output.IsJSON() {
				return output.JSON(cfg)
			}
			showConfig(output, cfg)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "path",
		Short:       "Show configuration directory path",
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			dir := configDir(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": dir})
			}
			output.Println(dir)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "validate",
		Short:       "Validate configuration files",
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if _, err := config.Load(configDir(cmd)); err != nil {
				if !output.IsJSON() {
					output.Error("Configuration validation failed: %v", err)
				}
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("Configuration is valid")
			return nil
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Create config.toml and credentials.toml templates",
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			written, err := config.WriteTemplates(configDir(cmd), force)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string][]string{"written": written})
			}
			if len(written) == 0 {
				output.Info("Configuration files already exist (use --force to overwrite)")
				return nil
			}
			for _, path := range written {
				output.Success("Created %s", path)
			}
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")
	cmd.AddCommand(initCmd)

	return cmd
}

// configDir returns the --config directory or the default one.
func configDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("config")
	if dir == "" {
		return config.DefaultConfigDir()
	}
	return dir
}

// redacted returns a copy of cfg with secrets masked.
func redacted(cfg *config.Config) config.Config {
	out := *cfg
	out.Credentials.EODHD.APIKey = mask(cfg.Credentials.EODHD.APIKey)
	out.Credentials.Kite.APIKey = mask(cfg.Credentials.Kite.APIKey)
	out.Credentials.Kite.AccessToken = mask(cfg.Credentials.Kite.AccessToken)
	return out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}

func showConfig(output *Output, cfg config.Config) {
	output.Bold("Ledger")
	output.Printf("  Initial Cash:    %.2f %s\n", cfg.Ledger.InitialCash, cfg.Ledger.Currency)
	output.Printf("  Commission:      %.4f%%\n", cfg.Ledger.CommissionRate*100)
	output.Printf("  Cost Basis:      %s\n", cfg.Ledger.CostBasisPolicy)
	output.Printf("  Missing Price:   %s\n", cfg.Ledger.MissingPricePolicy)
	output.Printf("  Strict Fills:    %v\n", cfg.Ledger.StrictFills)
	output.Println()

	output.Bold("Storage")
	output.Printf("  Database:        %s\n", cfg.Storage.DBPath)
	output.Println()

	output.Bold("Prices")
	output.Printf("  Provider:        %s\n", cfg.Prices.Provider)
	switch cfg.Prices.Provider {
	case "csv":
		output.Printf("  CSV Dir:         %s\n", cfg.Prices.CSVDir)
	case "eodhd":
		output.Printf("  Base URL:        %s\n", cfg.Prices.BaseURL)
		output.Printf("  API Key:         %s\n", orNotSet(cfg.Credentials.EODHD.APIKey))
	case "kite":
		output.Printf("  Access Token:    %s\n", orNotSet(cfg.Credentials.Kite.AccessToken))
	}
	output.Printf("  Lookback:        %d days\n", cfg.Prices.LookbackDays)
	output.Printf("  Parallelism:     %d\n", cfg.Prices.Parallelism)
	output.Printf("  Rate Limit:      %.1f/s\n", cfg.Prices.RatePerSecond)
	output.Printf("  Retry:           %d attempts, %s to %s\n", cfg.Prices.RetryAttempts, cfg.Prices.RetryInitialDelay, cfg.Prices.RetryMaxDelay)
	output.Println()

	output.Bold("Cache")
	output.Printf("  Backend:         %s\n", cfg.Cache.Backend)
	if cfg.Cache.Backend == "redis" {
		output.Printf("  Redis:           %s/%d\n", cfg.Cache.RedisAddr, cfg.Cache.RedisDB)
	}
	output.Printf("  TTL:             %s\n", cfg.Cache.TTL)
	output.Println()

	output.Bold("Ingest")
	output.Printf("  Trade Date:      %s\n", cfg.Ingest.TradeDatePolicy)
	output.Printf("  Default Suffix:  %s\n", cfg.Ingest.DefaultSuffix)
	output.Printf("  Symbol Mappings: %d\n", len(cfg.Ingest.Symbols))
	output.Println()

	output.Bold("Reports")
	output.Printf("  Enabled:         %v\n", cfg.Reports.Enabled)
	output.Printf("  Directory:       %s\n", cfg.Reports.Dir)
	output.Printf("  Formats:         %s\n", strings.Join(cfg.Reports.Formats, ", "))
	output.Println()

	output.Bold("Notify")
	webhook := "(not set)"
	if cfg.Notify.WebhookURL != "" {
		webhook = "set"
	}
	output.Printf("  Webhook:         %s\n", webhook)
	output.Println()

	output.Bold("Server")
	output.Printf("  Address:         %s\n", cfg.Server.Addr)
	output.Printf("  Refresh Cron:    %s\n", orNotSet(cfg.Server.RefreshCron))
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}
