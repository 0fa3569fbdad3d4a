// Command line entry points for netbricks binaries
package config

import (
	"flag"
	"fmt"
	"os"
)

// ParseFlags reads the standard flags and loads the configuration.
// Exits with code 1 when the configuration cannot be loaded, matching the
// init-failure contract.
func ParseFlags() *Configuration {
	configPath := flag.String("config", "", "path to the configuration file")
	duration := flag.Int("duration", 0, "test mode: exit after this many seconds")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "--config is required")
		os.Exit(1)
	}
	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *duration > 0 {
		cfg.Duration = *duration
	}
	return cfg
}
