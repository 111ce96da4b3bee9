package main

import (
	"flag"
	"os"
	"strings"
)

type cliFlags struct {
	configPath string
	listenAddr string
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

// parseFlags parses flags and environment variables.
// Priority: flags > env > defaults.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvDefault("PEERGRAM_CONFIG", "peergram.yaml"), "Path to the YAML config file")
	addr := flag.String("addr", getEnvDefault("PEERGRAM_ADDR", ""), "Gateway listen address override (e.g., :6080)")
	flag.Parse()

	return cliFlags{
		configPath: *configPath,
		listenAddr: *addr,
	}
}
