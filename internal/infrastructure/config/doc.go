// Package config handles loading and validating Graychat Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (GRAYCHAT_*)
//   - Struct-tag validation via go-playground/validator
//   - Default value handling
//
// Security Considerations:
//   - The JWT secret should be set via GRAYCHAT_JWT_SECRET, not committed to a file
//   - The config file should have restricted permissions (0600)
//   - environment: production turns on Secure session cookies
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.API.Port)
package config
