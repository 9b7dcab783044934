// Package config handles loading and validating NeoBin Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading secrets from an optional .env file beside the YAML file
//   - Overriding with environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - The device credential, JWT secret, and API password hash should be set
//     via environment variables (NEOBIN_DEVICE_CREDENTIAL, NEOBIN_JWT_SECRET,
//     NEOBIN_API_PASSWORD_HASH)
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Device.Name)
package config
