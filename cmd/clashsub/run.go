package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/clashsub/internal/metrics"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Convert the subscription once and write the output files",
	Args:  cobra.NoArgs,
	RunE:  runOnce,
}

func init() {
	f := runCmd.Flags()
	f.String("url", "", "subscription URL or local file")
	f.String("template", "", "template path or URL (default: builtin)")
	f.String("out", "", "output directory (default: output)")
	f.String("textfile", "", "write run metrics to this node_exporter textfile")
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, map[string]string{
		"subscription.url": "url",
		"template":         "template",
		"output.dir":       "out",
		"output.textfile":  "textfile",
	})
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	err = convertAndPublish(ctx, cfg, log, m)
	writeTextfile(cfg, log, m)
	return err
}
