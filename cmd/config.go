package cmd

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultAddr         = "127.0.0.1:8080"
	defaultDatabase     = "headgrade.db"
	defaultProbeTimeout = 10 * time.Second
	defaultRateLimit    = 5
	defaultRateBurst    = 10
)

// Settings captures runtime configuration shared across commands.
// Precedence: flags over environment over config file over defaults.
type Settings struct {
	Addr         string
	Database     string
	Mode         string
	ProbeTimeout time.Duration
	RateLimit    int
	RateBurst    int
	LogFormat    string
}

// loadSettings resolves settings from viper after flags have been bound.
func loadSettings(flags *pflag.FlagSet) Settings {
	bind := func(key, flag string) {
		if f := flags.Lookup(flag); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}
	bind("addr", "addr")
	bind("database", "database")
	bind("mode", "mode")
	bind("probe_timeout", "probe-timeout")
	bind("rate_limit", "rate-limit")
	bind("rate_burst", "rate-burst")
	bind("log_format", "log-format")

	viper.SetDefault("addr", defaultAddr)
	viper.SetDefault("database", defaultDatabase)
	viper.SetDefault("mode", "strict")
	viper.SetDefault("probe_timeout", defaultProbeTimeout)
	viper.SetDefault("rate_limit", defaultRateLimit)
	viper.SetDefault("rate_burst", defaultRateBurst)
	viper.SetDefault("log_format", "json")

	return Settings{
		Addr:         viper.GetString("addr"),
		Database:     viper.GetString("database"),
		Mode:         viper.GetString("mode"),
		ProbeTimeout: viper.GetDuration("probe_timeout"),
		RateLimit:    viper.GetInt("rate_limit"),
		RateBurst:    viper.GetInt("rate_burst"),
		LogFormat:    viper.GetString("log_format"),
	}
}
