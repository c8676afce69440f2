// Package config provides configuration management for the forwarder.
//
// Configuration is read from a YAML file, completed with defaults, overridden
// by FORWARDER_* environment variables and validated. The resolved structure
// is read-only once the server starts.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// An empty path loads the defaults. ResolvePath picks the file from an
// explicit flag, then FORWARDER_CONFIG, then ./config.yaml if present.
//
// # Environment Variable Overrides
//
//   - FORWARDER_PROXY_PORT overrides proxy.port
//   - FORWARDER_AUTH_TYPE overrides auth.type
//   - FORWARDER_LOG_LEVEL overrides telemetry.logging.level
//
// Values that cannot be parsed are logged and ignored.
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Example
//
//	proxy:
//	  name: forwarder
//	  host: 0.0.0.0
//	  port: 8080
//	  request_timeout: 30s
//	ssl:
//	  cert_path: cert/localhost.crt
//	  key_path: cert/localhost.key
//	auth:
//	  type: proxy-auth
//	  username: u
//	  password: p
//
// # Singleton Pattern
//
//	if err := config.Initialize(flagPath); err != nil {
//	    return err
//	}
//	cfg := config.GetConfig()
//
// For testing, prefer passing explicit Config instances.
package config
