// Package main provides the registry-api server for aircraft registry
// lookups.
//
// This is a standalone REST API server over a consolidated registry
// database produced by "registry_db migrate". It's designed to be
// queried by ADS-B tracking applications to resolve ICAO 24-bit
// addresses and tail numbers to registration details.
//
// Usage:
//
//	registry-api [options]
//
// Options:
//
//	-db PATH            SQLite database path (default: ./lib/db/static.db, env: DB_PATH)
//	-port N             HTTP port (default: 8081)
//	-auth               Enable API key authentication
//	-api-keys KEYS      Comma-separated list of valid API keys
//
// API Endpoints:
//
//	GET /api/v1/health
//	    Health check endpoint.
//
//	GET /api/v1/aircraft/{icao24}
//	    Look up one aircraft by ICAO 24-bit address.
//
//	GET /api/v1/registration/{n_number}
//	    Look up one aircraft by tail number.
//
//	GET /api/v1/aircraft?manufacturer=&model=&operator=&aircraft_type=&owner_type=&state=&limit=&offset=
//	    Search the registry.
//
//	GET /api/v1/stats
//	    Registry statistics.
//
// Authentication:
//
//	When -auth is enabled, requests must include an API key via:
//	  - X-API-Key header
//	  - Authorization: Bearer <key> header
//	  - ?api_key=<key> query parameter
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"registry_db/internal/api"
	"registry_db/internal/storage"
)

func main() {
	dbPath := flag.String("db", envOrDefault("DB_PATH", "./lib/db/static.db"), "SQLite database path")

	// API server flags.
	port := flag.Int("port", 8081, "HTTP port for API server")
	authEnabled := flag.Bool("auth", false, "Enable API key authentication")
	apiKeys := flag.String("api-keys", "", "Comma-separated list of valid API keys (when auth enabled)")

	flag.Parse()

	// Open the consolidated registry.
	store, err := storage.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	// Parse API keys.
	var keys []string
	if *apiKeys != "" {
		keys = strings.Split(*apiKeys, ",")
		for i := range keys {
			keys[i] = strings.TrimSpace(keys[i])
		}
	}

	// Create and run server.
	server := api.NewRegistryServer(store, api.Config{
		Port:        *port,
		AuthEnabled: *authEnabled,
		APIKeys:     keys,
	})

	if err := server.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
