// Package config loads clashsub settings from defaults, an optional YAML file,
// the environment and command-line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "CLASHSUB"

type Config struct {
	Subscription SubscriptionConfig `mapstructure:"subscription"`
	Template     string             `mapstructure:"template"`
	Output       OutputConfig       `mapstructure:"output"`
	Fetch        FetchConfig        `mapstructure:"fetch"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Schedule     ScheduleConfig     `mapstructure:"schedule"`
	Log          LogConfig          `mapstructure:"log"`
}

type SubscriptionConfig struct {
	URL            string `mapstructure:"url"`
	Workers        int    `mapstructure:"workers"`
	DropDuplicates bool   `mapstructure:"drop_duplicates"`
}

type OutputConfig struct {
	Dir string `mapstructure:"dir"`
	// Textfile, when set, receives the run metrics for the node_exporter
	// textfile collector.
	Textfile string `mapstructure:"textfile"`
}

type FetchConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	Retries       int           `mapstructure:"retries"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	MaxBytes      int64         `mapstructure:"max_bytes"`
	UserAgent     string        `mapstructure:"user_agent"`
}

type HTTPConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ConvertTimeout    time.Duration `mapstructure:"convert_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type ScheduleConfig struct {
	Spec       string        `mapstructure:"spec"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RunOnStart bool          `mapstructure:"run_on_start"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type LoadOptions struct {
	// File is an explicit config file. Without it, config.yaml is looked up
	// in the working directory and /etc/clashsub, and may be absent.
	File string

	// Flags maps config keys to the flags that override them. A flag only
	// wins when it was set on the command line.
	Flags map[string]*pflag.Flag
}

func Load(opt LoadOptions) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if opt.File != "" {
		v.SetConfigFile(opt.File)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/clashsub/")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// SUBSCRIPTION_URL is what the workflow-driven setup always used.
	if err := v.BindEnv("subscription.url", envPrefix+"_SUBSCRIPTION_URL", "SUBSCRIPTION_URL"); err != nil {
		return nil, fmt.Errorf("bind env subscription.url: %w", err)
	}

	for key, flag := range opt.Flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opt.File != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Subscription.URL = strings.TrimSpace(cfg.Subscription.URL)
	cfg.Template = strings.TrimSpace(cfg.Template)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("subscription.url", "")
	v.SetDefault("subscription.workers", 0)
	v.SetDefault("subscription.drop_duplicates", false)

	v.SetDefault("template", "")

	v.SetDefault("output.dir", "output")
	v.SetDefault("output.textfile", "")

	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.retries", 2)
	v.SetDefault("fetch.retry_interval", "500ms")
	v.SetDefault("fetch.max_bytes", 0)
	v.SetDefault("fetch.user_agent", "")

	v.SetDefault("http.addr", "127.0.0.1:25500")
	v.SetDefault("http.read_header_timeout", "5s")
	v.SetDefault("http.convert_timeout", "60s")
	v.SetDefault("http.shutdown_timeout", "10s")

	v.SetDefault("schedule.spec", "@every 6h")
	v.SetDefault("schedule.timeout", "5m")
	v.SetDefault("schedule.run_on_start", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}
