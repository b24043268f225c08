// Package main is the entry point for the skipper registry server
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/james-see/skipper/pkg/api"
	"github.com/james-see/skipper/pkg/config"
)

func main() {
	configPath := flag.String("config", "", "Config file")
	port := flag.Int("port", 0, "Server port (default from config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if *port == 0 {
		*port = cfg.Server.Port
	}
	staging, err := cfg.Server.StagingPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	}

	fmt.Printf("Starting skipper registry server on port %d...\n", *port)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", *port)

	if err := api.StartServer(*port, staging, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
