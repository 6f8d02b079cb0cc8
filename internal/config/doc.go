// Package config handles configuration loading for toolgate.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation of the fields every deployment needs.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${TOOLGATE_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string, which
// fails validation for required fields.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	gateway:
//	  handshake_timeout: "10s"
//	  forward_timeout: "30s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # Gateway and management API
//
// Database:
//
//	database:
//	  path: "/var/lib/toolgate/toolgate.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${TOOLGATE_JWT_SECRET}"   # Required
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
//	cfg, err := config.Load("/etc/toolgate/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
