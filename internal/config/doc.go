// Package config handles configuration loading for flickr-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion. The file extension picks the parser: .toml is TOML, anything
// else is YAML. Empty fields are filled with defaults before validation.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from FLICKR_GATEWAY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/flickr-gateway/config.yaml
//  3. ~/.config/flickr-gateway/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	flickr:
//	  api_key: "${FLICKR_API_KEY}"
//	  api_secret: "${FLICKR_API_SECRET}"
//
// Only the ${VAR_NAME} form is expanded. Unset variables become empty strings.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	flickr:
//	  timeout: "15s"
//	cache:
//	  ttl: "24h"
//	session:
//	  max_age: "720h"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:8080"
//	  base_url: "https://photos.example.com"
//
//	flickr:
//	  api_key: "${FLICKR_API_KEY}"
//	  api_secret: "${FLICKR_API_SECRET}"
//	  perms: read            # read, write or delete
//	  format: json           # json, php, xml or raw
//	  discovery: lazy        # eager, lazy or disabled
//	  preload: [flickr.photos.search]
//	  permission_code: 99
//	  history_size: 16
//	  hosts:
//	    api: api.flickr.com
//	    auth: www.flickr.com
//
//	cache:
//	  adapter: sqlite        # memory, sqlite or redis
//	  ttl: "24h"
//
//	session:
//	  adapter: sqlite
//	  cookie_name: flickr_session
//	  secret: "${FLICKR_GATEWAY_SESSION_SECRET}"
//
//	database:
//	  path: "~/.local/share/flickr-gateway/gateway.db"
//
//	redis:
//	  addr: "localhost:6379"
//
//	logging:
//	  level: info            # debug, info, warn, error
//	  format: text           # text or json
//
// # Validation
//
// Load fails when the Flickr credentials or the session secret are missing,
// when an enumerated field holds an unknown value, or when a selected adapter
// lacks its connection settings.
package config
