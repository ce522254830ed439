package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ziadkadry99/crystal-viewer/internal/config"
)

var serverPort int

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the crystal viewer web server",
	Long:  `Starts the HTTP server that serves the viewer page, its structure endpoints, health checks and Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, func(cfg *config.Config) {
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = serverPort
			}
		})
		if err != nil {
			return err
		}
		defer a.Close()

		srv, err := a.Server()
		if err != nil {
			return fmt.Errorf("building server: %w", err)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(srv.Start)
		g.Go(func() error {
			a.SweepCache(gctx)
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			a.Logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		a.Logger.Info("crystalviewer starting",
			"version", Version,
			"addr", a.Config.ListenAddr(),
			"prefix", a.Config.Server.PathPrefix,
			"cache", a.Config.Cache.Backend,
		)
		return g.Wait()
	},
}

func init() {
	serverCmd.Flags().IntVar(&serverPort, "port", config.DefaultPort, "Port to listen on")
	rootCmd.AddCommand(serverCmd)
}
