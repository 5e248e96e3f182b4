package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"voxelcascade.ai/internal/transport/httpapi"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run regions in real time behind an HTTP API",
	Long: `Opens the given regions, steps them at tick_rate_hz and serves block reads,
writes, switch toggles, pending ticks and Prometheus metrics over HTTP.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		ids, _ := cmd.Flags().GetStringSlice("regions")
		demo, _ := cmd.Flags().GetBool("demo")

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		h, err := a.host()
		if err != nil {
			return err
		}
		for _, id := range ids {
			r, restored, err := h.Open(cmd.Context(), id)
			if err != nil {
				return err
			}
			if demo && !restored {
				if _, err := seedDemo(r); err != nil {
					return err
				}
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := &http.Server{
			Addr:              addr,
			Handler:           httpapi.NewHandler(h, a.registry, a.log),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			err := h.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			a.log.WithFields(logrus.Fields{"addr": addr, "regions": ids}).Info("serving")
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			a.log.Info("shutting down")
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				a.log.WithError(err).Warn("graceful shutdown did not complete")
				return srv.Close()
			}
			return nil
		})

		err = g.Wait()
		a.log.Info("stopped")
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", ":8080", "http listen address")
	serveCmd.Flags().StringSlice("regions", []string{"demo"}, "region ids to host")
	serveCmd.Flags().Bool("demo", true, "seed a demo scenario into fresh regions")
}
