package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/clashsub/internal/httpapi"
	"github.com/John-Robertt/clashsub/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve on-demand conversions over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("listen", "", "HTTP listen address (default 127.0.0.1:25500)")
	f.String("template", "", "template path or URL (default: builtin)")
	f.Duration("convert-timeout", 0, "upper bound for one conversion, fetch included")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, map[string]string{
		"http.addr":            "listen",
		"template":             "template",
		"http.convert_timeout": "convert-timeout",
	})
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	srv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httpapi.NewRouter(httpapi.Options{
			ConvertTimeout: cfg.HTTP.ConvertTimeout,
			FetchTimeout:   cfg.Fetch.Timeout,
			FetchRetries:   cfg.Fetch.Retries,
			Template:       cfg.Template,
			Workers:        cfg.Subscription.Workers,
			DropDuplicates: cfg.Subscription.DropDuplicates,
			Logger:         log,
			Metrics:        metrics.New(),
		}),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	log.Infof("listening on http://%s", cfg.HTTP.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")

		shCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			log.WithError(err).Warn("graceful shutdown failed")
			_ = srv.Close()
		}

		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
