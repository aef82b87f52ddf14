package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Config holds runtime settings for the FleetZen agent.
type Config struct {
	ServerURL           string
	OnlineCheckInterval time.Duration
	ReconnectPulse      time.Duration
	RequestTimeout      time.Duration
	DataDir             string
	DebounceDelay       time.Duration
	DrainInterval       time.Duration
	GatewayAddr         string
	WebOrigin           string
	CacheVersion        string
	PrecacheURLs        []string
	OfflinePage         string
	LogLevel            string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.OnlineCheckInterval = 3 * time.Second
	c.ReconnectPulse = 3 * time.Second
	c.RequestTimeout = 15 * time.Second
	c.DataDir = ".fleetzen"
	c.DebounceDelay = 2 * time.Second
	c.DrainInterval = time.Minute
	c.GatewayAddr = "127.0.0.1:8088"
	c.WebOrigin = "http://127.0.0.1:3000"
	c.CacheVersion = "v1"
	c.PrecacheURLs = []string{"/", "/offline.html", "/manifest.json"}
	c.OfflinePage = "/offline.html"
	c.LogLevel = "info"
}

// LoadConfig constructs a Config from defaults, then the file named by
// --config (if any), then the flags of fs the user actually set. fs must
// have been prepared with RegisterFlags.
func LoadConfig(fs *pflag.FlagSet) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	path, err := fs.GetString(flagConfig)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := parseFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := applyFlags(cfg, fs); err != nil {
		return nil, err
	}
	return cfg, nil
}
