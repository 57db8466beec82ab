package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/clashsub/internal/metrics"
	"github.com/John-Robertt/clashsub/internal/schedule"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Refresh the output files on a cron schedule",
	Args:  cobra.NoArgs,
	RunE:  runSchedule,
}

func init() {
	f := scheduleCmd.Flags()
	f.String("url", "", "subscription URL or local file")
	f.String("template", "", "template path or URL (default: builtin)")
	f.String("out", "", "output directory (default: output)")
	f.String("spec", "", `cron spec, seconds optional (default "@every 6h")`)
	f.String("textfile", "", "write run metrics to this node_exporter textfile after each run")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, map[string]string{
		"subscription.url": "url",
		"template":         "template",
		"output.dir":       "out",
		"schedule.spec":    "spec",
		"output.textfile":  "textfile",
	})
	if err != nil {
		return err
	}
	if cfg.Subscription.URL == "" {
		return errNoSubscription
	}
	log := newLogger(cfg)
	m := metrics.New()

	s := schedule.New(schedule.Options{Logger: log, Timeout: cfg.Schedule.Timeout})
	id, err := s.Register(cfg.Schedule.Spec, schedule.JobFunc{
		JobName: "convert",
		Fn: func(ctx context.Context) error {
			err := convertAndPublish(ctx, cfg, log, m)
			writeTextfile(cfg, log, m)
			return err
		},
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s.Start()
	log.WithField("next", s.Next(id)).Info("scheduler started")
	if cfg.Schedule.RunOnStart {
		go s.Trigger(id)
	}

	<-ctx.Done()
	log.Info("shutdown signal received, waiting for running jobs")
	<-s.Stop().Done()
	return nil
}
