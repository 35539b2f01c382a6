// Package config loads the gateway configuration.
//
// Configuration is YAML with ${VAR} and ${VAR:-default} environment
// substitution ("$$" escapes a literal dollar). Loading applies defaults;
// ValidateConfig reports every problem with its field path. A Watcher
// reloads the file on change and hands validated configurations to a
// callback.
//
//	cfg, err := config.LoadConfig("mcpguard.yaml")
//	if err != nil {
//	    return err
//	}
//	if err := config.ValidateConfig(cfg); err != nil {
//	    return err
//	}
package config
