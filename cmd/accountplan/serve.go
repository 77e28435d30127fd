package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/accountplan/internal/server"
	"github.com/mohammad-safakhou/accountplan/internal/store"
)

func serveCMD() *cobra.Command {
	var addr string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			eng, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			logger := log.New(log.Writer(), "[SERVE] ", log.LstdFlags)

			var history server.RunHistory
			if dsn := eng.cfg.Storage.Postgres.URL; dsn != "" {
				rs, err := store.NewRunStore(ctx, dsn)
				if err != nil {
					logger.Printf("run history unavailable (%v), continuing without it", err)
				} else {
					history = rs
					defer rs.Close()
				}
			}

			var metrics http.Handler
			if eng.telemetry != nil {
				metrics = eng.telemetry.Handler()
			}
			srv := server.New(eng.orchestrator, history, metrics)

			if eng.cfg.Sources.Corpus.Watch {
				go func() {
					if err := eng.corpus.Watch(ctx); err != nil && ctx.Err() == nil {
						logger.Printf("corpus watcher stopped: %v", err)
					}
				}()
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			if addr == "" {
				addr = eng.cfg.Server.Addr
			}
			logger.Printf("listening on %s", addr)
			if err := srv.Start(addr); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")

	return serve
}
