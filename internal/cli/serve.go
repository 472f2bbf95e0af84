package cli

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"tradeledger/internal/server"
)

func newServeCmd(app *App) *cobra.Command {
	var (
		addr      string
		noRefresh bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run scheduled refreshes",
		Long: `Serve the portfolio API, health probes and Prometheus metrics.

Unless --no-refresh is set, every portfolio is replayed on the
[server] refresh_cron schedule so report files stay current.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Open(time.Time{}); err != nil {
				return err
			}
			defer app.Close()

			if addr == "" {
				addr = app.Config.Server.Addr
			}
			debug, _ := cmd.Flags().GetBool("debug")
			if !debug {
				gin.SetMode(gin.ReleaseMode)
			}

			ctx := cmd.Context()
			srv := server.New(server.Options{
				Session:  app.Session,
				Pinger:   app,
				Metrics:  app.Metrics,
				Logger:   app.Logger,
				Currency: app.Currency(),
			})

			if spec := app.Config.Server.RefreshCron; spec != "" && !noRefresh {
				sched := server.NewScheduler(ctx, app.Logger)
				if _, err := sched.Add(spec, server.RefreshJob(app.Session, app.Logger)); err != nil {
					return err
				}
				sched.Start()
				defer sched.Stop()
			}

			return srv.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: [server] addr)")
	cmd.Flags().BoolVar(&noRefresh, "no-refresh", false, "disable the scheduled refresh")
	return cmd
}
