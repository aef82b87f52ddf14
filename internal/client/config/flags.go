package config

import (
	"time"

	"github.com/spf13/pflag"
)

const (
	flagConfig   = "config"
	flagServer   = "server"
	flagInterval = "interval"
	flagDataDir  = "data-dir"
	flagGateway  = "gateway"
	flagOrigin   = "origin"
	flagLogLevel = "log-level"
)

// RegisterFlags declares the agent flags on fs with the built-in defaults
// shown in help output.
func RegisterFlags(fs *pflag.FlagSet) {
	var d Config
	d.LoadDefaults()

	fs.StringP(flagConfig, "c", "", "path to a JSON or TOML config file")
	fs.StringP(flagServer, "a", d.ServerURL, "base URL of the sync server")
	fs.IntP(flagInterval, "i", int(d.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.String(flagDataDir, d.DataDir, "directory holding the local databases")
	fs.StringP(flagGateway, "g", d.GatewayAddr, "listen address of the fetch gateway")
	fs.StringP(flagOrigin, "o", d.WebOrigin, "web origin proxied by the gateway")
	fs.StringP(flagLogLevel, "l", d.LogLevel, "log level (debug, info, warn, error)")
}

// applyFlags copies the flags changed on the command line into cfg, so
// unset flags never hide values read from the config file.
func applyFlags(cfg *Config, fs *pflag.FlagSet) error {
	var err error
	strs := map[string]*string{
		flagServer:   &cfg.ServerURL,
		flagDataDir:  &cfg.DataDir,
		flagGateway:  &cfg.GatewayAddr,
		flagOrigin:   &cfg.WebOrigin,
		flagLogLevel: &cfg.LogLevel,
	}
	for name, dst := range strs {
		if !fs.Changed(name) {
			continue
		}
		if *dst, err = fs.GetString(name); err != nil {
			return err
		}
	}

	if fs.Changed(flagInterval) {
		secs, err := fs.GetInt(flagInterval)
		if err != nil {
			return err
		}
		cfg.OnlineCheckInterval = time.Duration(secs) * time.Second
	}
	return nil
}
