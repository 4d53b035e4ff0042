// Package main is the entry point for the qybridge API server
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/james-see/qybridge/pkg/api"
	"github.com/james-see/qybridge/pkg/config"
	"github.com/james-see/qybridge/pkg/logging"
)

func main() {
	configPath := flag.String("config", "qybridge.yaml", "YAML configuration file")
	port := flag.Int("port", 0, "Server port (overrides the configuration)")
	flag.Parse()

	explicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})

	cfg, err := config.Load(*configPath, !explicit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}

	logger, closer, err := logging.Setup(cfg.Logs, "qybridge-server")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging error: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	template, err := cfg.LoadTemplate()
	if err != nil {
		logger.Fatalf("template: %v", err)
	}

	logger.Printf("Starting qybridge API server on port %d", cfg.Port)
	logger.Printf("Swagger docs available at http://localhost:%d/swagger/index.html", cfg.Port)

	if err := api.StartServer(cfg, template, logger); err != nil {
		logger.Printf("Server error: %v", err)
		closer.Close()
		os.Exit(1)
	}
}
