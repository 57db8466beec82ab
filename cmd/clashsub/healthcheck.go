package main

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Probe a running server's /healthz (for container health checks)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, map[string]string{"http.addr": "listen"})
		if err != nil {
			return err
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")
		target, err := deriveHealthzURL(cfg.HTTP.Addr)
		if err != nil {
			return err
		}
		return runHealthcheck(target, timeout)
	},
}

func init() {
	healthcheckCmd.Flags().String("listen", "", "server listen address or base URL")
	healthcheckCmd.Flags().Duration("timeout", 3*time.Second, "probe timeout")
	rootCmd.AddCommand(healthcheckCmd)
}

// deriveHealthzURL turns a listen address into a probe URL. Wildcard and
// empty hosts are probed on loopback.
func deriveHealthzURL(listen string) (string, error) {
	listen = strings.TrimSpace(listen)
	if listen == "" {
		return "", fmt.Errorf("empty listen address")
	}
	if strings.HasPrefix(listen, "http://") || strings.HasPrefix(listen, "https://") {
		u, err := url.Parse(listen)
		if err != nil || u.Host == "" {
			return "", fmt.Errorf("invalid base URL %q", listen)
		}
		u.Path = strings.TrimSuffix(u.Path, "/") + "/healthz"
		u.RawQuery = ""
		u.Fragment = ""
		return u.String(), nil
	}
	if !strings.Contains(listen, ":") {
		listen = ":" + listen
	}
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "", fmt.Errorf("invalid listen address %q: %w", listen, err)
	}
	switch host {
	case "", "0.0.0.0":
		host = "127.0.0.1"
	case "::":
		host = "::1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/healthz", nil
}

func runHealthcheck(target string, timeout time.Duration) error {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("healthcheck: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck: unexpected status %d", resp.StatusCode)
	}
	return nil
}
