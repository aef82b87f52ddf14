// Package config loads runtime configuration for the FleetZen agent.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON or TOML file selected via --config/-c.
//  3. Command-line flags explicitly set by the user.
//
// Supported flags
//
//	-a, --server string      base URL of the sync server
//	-i, --interval int       online status check interval (seconds)
//	    --data-dir string    directory holding the local databases
//	-g, --gateway string     listen address of the fetch gateway
//	-o, --origin string      web origin proxied by the gateway
//	-l, --log-level string   log level
//
// # File schema
//
// Durations use timex.Duration, so values can be strings like "3s" or
// integer nanoseconds:
//
//	{
//	  "server_url": "https://sync.fleetzen.io",
//	  "online_check_interval": "3s",
//	  "data_dir": "/var/lib/fleetzen",
//	  "precache_urls": ["/", "/offline.html"]
//	}
package config
