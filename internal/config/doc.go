// Package config handles configuration loading for bellhop.
//
// # Overview
//
// Configuration is loaded from a YAML file with environment variable
// expansion. The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from BELLHOP_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/bellhop/bellhop.yaml
//  3. ~/.config/bellhop/bellhop.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	channels:
//	  discord:
//	    token: "${DISCORD_BOT_TOKEN}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	engine:
//	  idle_timeout: "24h"
//	  sweep_interval: "10m"
//
// # Configuration Sections
//
// Server:
//
//	server:
//	  http_addr: ":8080"
//
// Database (driver is sqlite, redis or memory):
//
//	database:
//	  driver: "sqlite"
//	  path: "bellhop.db"
//
// Engine tuning:
//
//	engine:
//	  idle_timeout: "24h"
//	  sweep_interval: "10m"
//	  max_invalid_inputs: 3
//	  max_party_size: 10
//
// Channels:
//
//	channels:
//	  matrix:
//	    enabled: true
//	    homeserver: "https://matrix.example.org"
//	    user_id: "@bellhop:example.org"
//	    access_token: "${MATRIX_ACCESS_TOKEN}"
//	  discord:
//	    enabled: true
//	    token: "${DISCORD_BOT_TOKEN}"
//	  slack:
//	    enabled: true
//	    bot_token: "${SLACK_BOT_TOKEN}"
//
// Artifact handoff:
//
//	sinks:
//	  webhook_url: "https://crm.example.com/hooks/bellhop"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - The database driver and its required fields
//   - Engine limits (non-negative threshold, party size of at least 1)
//   - Each enabled channel's credentials
//   - Duration format validity
package config
