package config

import (
	"time"

	"github.com/dmitrijs2005/fleetzen/internal/filex"
	"github.com/dmitrijs2005/fleetzen/internal/timex"
)

// FileConfig is the on-disk shape of the agent configuration. Only the keys
// present in the file override the current values.
type FileConfig struct {
	ServerURL           *string         `json:"server_url" toml:"server_url"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval" toml:"online_check_interval"`
	ReconnectPulse      *timex.Duration `json:"reconnect_pulse" toml:"reconnect_pulse"`
	RequestTimeout      *timex.Duration `json:"request_timeout" toml:"request_timeout"`
	DataDir             *string         `json:"data_dir" toml:"data_dir"`
	DebounceDelay       *timex.Duration `json:"debounce_delay" toml:"debounce_delay"`
	DrainInterval       *timex.Duration `json:"drain_interval" toml:"drain_interval"`
	GatewayAddr         *string         `json:"gateway_addr" toml:"gateway_addr"`
	WebOrigin           *string         `json:"web_origin" toml:"web_origin"`
	CacheVersion        *string         `json:"cache_version" toml:"cache_version"`
	PrecacheURLs        []string        `json:"precache_urls" toml:"precache_urls"`
	OfflinePage         *string         `json:"offline_page" toml:"offline_page"`
	LogLevel            *string         `json:"log_level" toml:"log_level"`
}

func parseFile(cfg *Config, path string) error {
	var fc FileConfig
	if err := filex.DecodeConfigFile(path, &fc); err != nil {
		return err
	}
	fc.apply(cfg)
	return nil
}

func (fc *FileConfig) apply(cfg *Config) {
	for dst, v := range map[*string]*string{
		&cfg.ServerURL:    fc.ServerURL,
		&cfg.DataDir:      fc.DataDir,
		&cfg.GatewayAddr:  fc.GatewayAddr,
		&cfg.WebOrigin:    fc.WebOrigin,
		&cfg.CacheVersion: fc.CacheVersion,
		&cfg.OfflinePage:  fc.OfflinePage,
		&cfg.LogLevel:     fc.LogLevel,
	} {
		if v != nil {
			*dst = *v
		}
	}

	for dst, v := range map[*time.Duration]*timex.Duration{
		&cfg.OnlineCheckInterval: fc.OnlineCheckInterval,
		&cfg.ReconnectPulse:      fc.ReconnectPulse,
		&cfg.RequestTimeout:      fc.RequestTimeout,
		&cfg.DebounceDelay:       fc.DebounceDelay,
		&cfg.DrainInterval:       fc.DrainInterval,
	} {
		if v != nil {
			*dst = v.Duration
		}
	}

	if fc.PrecacheURLs != nil {
		cfg.PrecacheURLs = fc.PrecacheURLs
	}
}
