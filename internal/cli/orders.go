package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tradeledger/internal/models"
	"tradeledger/internal/orderlog"
)

func addOrderCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newOrdersCmd(app))
	rootCmd.AddCommand(newPortfoliosCmd(app))
}

func newOrdersCmd(app *App) *cobra.Command {
	var symbol string

	cmd := &cobra.Command{
		Use:   "orders <portfolio>",
		Short: "List the order log of a portfolio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Open(time.Time{}); err != nil {
				return err
			}
			defer app.Close()

			orders, err := app.Session.Orders(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if symbol != "" {
				orders = filterSymbol(orders, models.NormalizeSymbol(symbol))
			}

			if output.IsJSON() {
				return output.JSON(orders)
			}
			if len(orders) == 0 {
				output.Info("No orders for %s", args[0])
				return nil
			}

			summary := orderlog.Summary(args[0], orders)
			output.Bold("Order log: %s", args[0])
			output.Dim("%d orders, %s to %s", summary.TotalOrders,
				models.FormatDay(summary.FirstTradeDate), models.FormatDay(summary.LastTradeDate))
			output.Println()

			table := NewTable(output, "Seq", "Trade Date", "Order Date", "Symbol", "Side", "Qty", "Batch").AlignRight(0, 5)
			for _, o := range orders {
				table.AddRow(
					fmt.Sprintf("%d", o.Seq),
					models.FormatDay(o.TradeDate),
					models.FormatDay(o.OrderDate),
					o.Symbol,
					output.Side(string(o.Side)),
					fmt.Sprintf("%d", o.Quantity),
					o.BatchKey,
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "only list orders for this symbol")
	return cmd
}

func filterSymbol(orders []models.Order, symbol string) []models.Order {
	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out
}

func newPortfoliosCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "portfolios",
		Aliases: []string{"ls"},
		Short:   "List portfolios with a persisted order log",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Open(time.Time{}); err != nil {
				return err
			}
			defer app.Close()

			summaries, err := app.Session.Summaries(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(summaries)
			}
			if len(summaries) == 0 {
				output.Info("No portfolios yet. Add orders with 'ledger run <portfolio> <file>'.")
				return nil
			}

			table := NewTable(output, "Portfolio", "Orders", "First Trade", "Last Trade", "Batches", "Symbols").AlignRight(1, 4)
			for _, s := range summaries {
				table.AddRow(
					s.PortfolioID,
					fmt.Sprintf("%d", s.TotalOrders),
					models.FormatDay(s.FirstTradeDate),
					models.FormatDay(s.LastTradeDate),
					fmt.Sprintf("%d", len(s.BatchDates)),
					strings.Join(s.Symbols, ", "),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.AddCommand(newPortfolioRemoveCmd(app))
	return cmd
}

func newPortfolioRemoveCmd(app *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "rm <portfolio>",
		Short: "Delete the whole order log of a portfolio",
		Long: `Delete every order of a portfolio. The order log is otherwise
append-only, so this is the only way to start a portfolio over.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if !yes {
				return fmt.Errorf("refusing to delete portfolio %q without --yes", args[0])
			}
			if err := app.Open(time.Time{}); err != nil {
				return err
			}
			defer app.Close()

			n, err := app.Session.DeletePortfolio(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]any{"portfolio": args[0], "deleted": n})
			}
			output.Success("Deleted %d orders from %s", n, args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the deletion")
	return cmd
}
