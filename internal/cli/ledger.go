package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	apperrors "tradeledger/internal/errors"
	"tradeledger/internal/ingest"
	"tradeledger/internal/models"
	"tradeledger/internal/report"
	"tradeledger/internal/session"
)

func addLedgerCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newReplayCmd(app))
	rootCmd.AddCommand(newReportCmd(app))
}

// reportFlags are shared by the commands that print a replay.
type reportFlags struct {
	asOf   string
	format string
	days   int
}

func (f *reportFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.asOf, "as-of", "", "treat this date (YYYY-MM-DD) as today")
	cmd.Flags().StringVarP(&f.format, "format", "f", "text", "output format: text, json, yaml, csv")
	cmd.Flags().IntVar(&f.days, "days", 10, "trailing daily values listed in text output")
}

func (f *reportFlags) asOfDate() (time.Time, error) {
	if f.asOf == "" {
		return time.Time{}, nil
	}
	return models.ParseDay(f.asOf)
}

func (f *reportFlags) outputFormat(output *Output) (report.Format, error) {
	if output.IsJSON() {
		return report.FormatJSON, nil
	}
	return report.ParseFormat(f.format)
}

func newRunCmd(app *App) *cobra.Command {
	var (
		flags     reportFlags
		orderDate string
	)

	cmd := &cobra.Command{
		Use:   "run <portfolio> <order-file|order-dir>",
		Short: "Append an order file to a portfolio and replay it",
		Long: `Append the orders of a CSV order form to a portfolio's log, then replay
the full log and print the result.

The order date is taken from --order-date, else from a YYYYMMDD parent
directory (orders/20260105/order.csv). A directory argument is searched for
the order form. Resubmitting a batch that is already in the log is skipped.`,
		Example: `  ledger run main orders/20260105
  ledger run main orders.csv --order-date 2026-01-05 --format json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			format, err := flags.outputFormat(output)
			if err != nil {
				return err
			}
			asOf, err := flags.asOfDate()
			if err != nil {
				return err
			}

			path, err := resolveOrderFile(args[1])
			if err != nil {
				return err
			}
			var date time.Time
			if orderDate != "" {
				if date, err = models.ParseDay(orderDate); err != nil {
					return err
				}
			}

			if err := app.Open(asOf); err != nil {
				return err
			}
			defer app.Close()

			orders, err := ingest.ParseFile(path, app.IngestOptions(date))
			if err != nil {
				return err
			}
			app.Logger.Info().Str("file", path).Int("orders", len(orders)).Msg("Order file parsed")

			run, err := app.Session.RunIncremental(cmd.Context(), args[0], orders)
			if err != nil {
				return err
			}
			return printRun(output, run, format, app.Currency(), flags.days)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&orderDate, "order-date", "", "order date of the batch (YYYY-MM-DD)")
	return cmd
}

// resolveOrderFile accepts an order form or a directory holding one.
func resolveOrderFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return ingest.FindOrderFile(path)
	}
	return path, nil
}

func newReplayCmd(app *App) *cobra.Command {
	var flags reportFlags

	cmd := &cobra.Command{
		Use:   "replay <portfolio>",
		Short: "Rebuild a portfolio from its order log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			format, err := flags.outputFormat(output)
			if err != nil {
				return err
			}
			asOf, err := flags.asOfDate()
			if err != nil {
				return err
			}
			if err := app.Open(asOf); err != nil {
				return err
			}
			defer app.Close()

			run, err := replayExisting(cmd, app, args[0], true)
			if err != nil {
				return err
			}
			return printRun(output, run, format, app.Currency(), flags.days)
		},
	}

	flags.register(cmd)
	return cmd
}

func newReportCmd(app *App) *cobra.Command {
	var (
		flags     reportFlags
		out       string
		positions bool
	)

	cmd := &cobra.Command{
		Use:   "report <portfolio>",
		Short: "Replay a portfolio and write its report",
		Example: `  ledger report main --format yaml --out main.yaml
  ledger report main --format csv --positions --out positions.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			format, err := flags.outputFormat(output)
			if err != nil {
				return err
			}
			asOf, err := flags.asOfDate()
			if err != nil {
				return err
			}
			if err := app.Open(asOf); err != nil {
				return err
			}
			defer app.Close()

			run, err := replayExisting(cmd, app, args[0], false)
			if err != nil {
				return err
			}

			write := func(w io.Writer) error {
				if positions {
					return report.WritePositionsCSV(w, run.Result)
				}
				opts := report.TextOptions{
					Currency: app.Currency(),
					Color:    out == "" && output.ColorEnabled(),
					Days:     flags.days,
				}
				return report.Write(w, format, run.PortfolioID, run.Result, opts)
			}
			if out == "" {
				return write(output.Writer())
			}
			if err := writeReportFile(out, write); err != nil {
				return err
			}
			if !output.IsJSON() {
				output.Success("Report written to %s", out)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	cmd.Flags().BoolVar(&positions, "positions", false, "write per-symbol daily positions as CSV")
	return cmd
}

func writeReportFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// replayExisting replays a portfolio that must already have orders. With
// notify false the configured reporters are not run.
func replayExisting(cmd *cobra.Command, app *App, portfolioID string, notify bool) (*session.Run, error) {
	replay := app.Session.Valuation
	if notify {
		replay = app.Session.Replay
	}
	run, err := replay(cmd.Context(), portfolioID)
	if err != nil {
		return nil, err
	}
	if run.Orders == 0 {
		return nil, fmt.Errorf("%w: portfolio %q has no orders", apperrors.ErrDataNotFound, portfolioID)
	}
	return run, nil
}

// printRun prints a run summary followed by the replay in format.
func printRun(output *Output, run *session.Run, format report.Format, currency string, days int) error {
	opts := report.TextOptions{Currency: currency, Color: output.ColorEnabled(), Days: days}
	if format != report.FormatText {
		return report.Write(output.Writer(), format, run.PortfolioID, run.Result, opts)
	}

	if n := len(run.Appended); n > 0 {
		output.Success("Appended %d orders to %s (%d in log)", n, run.PortfolioID, run.Orders)
	} else {
		output.Info("No new orders for %s (%d in log)", run.PortfolioID, run.Orders)
	}
	for _, batch := range run.SkippedBatches {
		output.Warning("Skipped batch %s: already in the log", batch)
	}
	for _, w := range run.Warnings {
		output.Warning("%s", w)
	}
	output.Dim("Replayed in %s", run.Duration.Round(time.Millisecond))
	output.Println()

	return report.WriteText(output.Writer(), run.PortfolioID, run.Result, opts)
}
