// ABOUTME: Package documentation for configuration loading
// ABOUTME: Documents the file, environment, and default layers

// Package config loads pkggate configuration from a YAML file and the
// environment.
//
// Settings layer in a fixed order: values from the YAML file (if one is
// given), then any PKGGATE_-prefixed environment variables, then built-in
// defaults for whatever remains unset. ${VAR_NAME} references inside the
// YAML file are expanded before parsing, which keeps secrets like api_key
// out of the file itself.
//
// A minimal file:
//
//	server:
//	  http_addr: "127.0.0.1:8315"
//	auth:
//	  enabled: true
//	  user_auth: true
//	  users_file: "/var/lib/pkggate/users.json"
//	policy:
//	  blocked_packages:
//	    - "crypto-miner-*"
//	audit:
//	  database: "/var/lib/pkggate/audit.db"
//	logging:
//	  level: info
//	  format: text
package config
