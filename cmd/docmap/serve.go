package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/docmap/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured store over HTTP",
		Long: `Serve the configured store over HTTP.

Routes:
  GET    /healthz
  GET    /collections/{collection}/{id}
  GET    /collections/{collection}?id=a&id=b
  PUT    /collections/{collection}
  DELETE /collections/{collection}/{id}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ds, err := openDatastore(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer ds.Close()

			if addr == "" {
				addr = a.cfg.Server.Address()
			}
			color.New(color.FgCyan).Fprintf(cmd.OutOrStdout(), "→ serving %s store on http://%s\n", a.cfg.Store.Backend, addr)
			return server.New(ds, server.WithLogger(a.logger)).Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.host:server.port)")
	return cmd
}
