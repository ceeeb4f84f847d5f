// Package config handles loading and validating ShellyManager configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (SHELLYMANAGER_*)
//   - Validation of required fields, the site time zone and the refresh cron spec
//   - Default value handling
//
// Security Considerations:
//   - Device and broker credentials should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	loc := cfg.Location()
package config
