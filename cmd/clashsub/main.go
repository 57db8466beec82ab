package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/clashsub/internal/pipeline"
)

// Build info - injected via ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "clashsub",
	Short: "Convert proxy subscriptions into Clash configurations",
	Long: `clashsub fetches a VMess/VLESS/Shadowsocks/Trojan subscription and writes
nodes.json, clash.yaml, clash_meta.yaml and subscription.txt.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default ./config.yaml or /etc/clashsub/config.yaml)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: text or json")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 when the subscription decoded to nothing, 1 for every other
// failure.
func exitCode(err error) int {
	var empty *pipeline.EmptyResultError
	if errors.As(err, &empty) {
		return 2
	}
	return 1
}
