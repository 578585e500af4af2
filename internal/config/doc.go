// Package config handles configuration loading for hearthd.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from HEARTHD_CONFIG environment variable
//  2. ./config.yaml (current directory)
//  3. ~/.config/hearth/hearthd.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${HEARTH_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	feed:
//	  fetch_timeout: "5s"
//	unread:
//	  recompute_delay: "2s"
//	cache:
//	  ttl: "24h"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Database and local snapshot cache:
//
//	database:
//	  path: "/var/lib/hearth/hearth.db"
//	cache:
//	  path: "/var/lib/hearth/snapshots.db"
//	  ttl: "24h"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${HEARTH_JWT_SECRET}"  # Required, at least 32 bytes
//	  issuer: "hearth"
//	  audience: "hearth-app"
//	  admin_token: "${HEARTH_ADMIN_TOKEN}"  # Empty disables admin endpoints
//
// Web Push:
//
//	push:
//	  enabled: true
//	  vapid_public_key: "${HEARTH_VAPID_PUBLIC}"
//	  vapid_private_key: "${HEARTH_VAPID_PRIVATE}"
//	  subscriber: "mailto:ops@example.com"
//
// Onboarding tour:
//
//	tour:
//	  steps_path: "/etc/hearth/tour.toml"
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
//   - JWT secret presence and minimum length (32 bytes)
//   - Server address and database path presence
//   - VAPID key material when push is enabled
//   - Duration format validity
package config
