package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/John-Robertt/clashsub/internal/config"
	"github.com/John-Robertt/clashsub/internal/fetch"
	"github.com/John-Robertt/clashsub/internal/logging"
	"github.com/John-Robertt/clashsub/internal/metrics"
	"github.com/John-Robertt/clashsub/internal/pipeline"
	"github.com/John-Robertt/clashsub/internal/publish"
)

var errNoSubscription = errors.New("subscription URL is required (--url, CLASHSUB_SUBSCRIPTION_URL or SUBSCRIPTION_URL)")

// loadConfig reads the config with the named flags of cmd layered on top.
// bindings maps config keys to flag names.
func loadConfig(cmd *cobra.Command, bindings map[string]string) (*config.Config, error) {
	flags := map[string]*pflag.Flag{
		"log.level":  cmd.Flags().Lookup("log-level"),
		"log.format": cmd.Flags().Lookup("log-format"),
	}
	for key, name := range bindings {
		flags[key] = cmd.Flags().Lookup(name)
	}
	file, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(config.LoadOptions{File: file, Flags: flags})
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logrus.Logger {
	return logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
}

func fetchOptions(cfg *config.Config) fetch.Options {
	return fetch.Options{
		Timeout:       cfg.Fetch.Timeout,
		MaxBytes:      cfg.Fetch.MaxBytes,
		UserAgent:     cfg.Fetch.UserAgent,
		Retries:       cfg.Fetch.Retries,
		RetryInterval: cfg.Fetch.RetryInterval,
	}
}

// convertAndPublish runs one conversion and promotes its files into the
// output directory. An empty result leaves the previous outputs in place.
func convertAndPublish(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, m *metrics.Metrics) error {
	if cfg.Subscription.URL == "" {
		return errNoSubscription
	}
	art, err := pipeline.Run(ctx, pipeline.Options{
		SubscriptionURL: cfg.Subscription.URL,
		Template:        cfg.Template,
		AllowFiles:      true,
		Fetch:           fetchOptions(cfg),
		Workers:         cfg.Subscription.Workers,
		DropDuplicates:  cfg.Subscription.DropDuplicates,
		Logger:          log,
		Metrics:         m,
	})
	if err != nil {
		return err
	}
	for _, w := range art.Report.Warnings {
		log.WithFields(logrus.Fields{"code": w.Code, "line": w.Line, "snippet": w.Snippet}).Warn(w.Message)
	}
	if err := publish.Write(cfg.Output.Dir, art.Files()); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"dir": cfg.Output.Dir, "nodes": art.Report.Nodes}).Info("outputs published")
	return nil
}

func writeTextfile(cfg *config.Config, log logrus.FieldLogger, m *metrics.Metrics) {
	if cfg.Output.Textfile == "" {
		return
	}
	if err := m.WriteTextfile(cfg.Output.Textfile); err != nil {
		log.WithError(err).Warn("write metrics textfile")
	}
}
