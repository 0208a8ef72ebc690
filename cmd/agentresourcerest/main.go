package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// Parse command line flags
	fs := flag.NewFlagSet("agentresourcerest", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file (default ./"+DefaultConfigFile+")")
	printConfig := fs.Bool("print-config", false, "Print the effective config with secrets redacted and exit")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return ExitConfigError
	}

	// Handle version flag
	if *showVersion {
		fmt.Printf("agentresourcerest %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	// Load configuration
	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}

	if *printConfig {
		if err := PrintConfig(os.Stdout, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			return ExitConfigError
		}
		return ExitSuccess
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}

	// Setup logger
	logger, logCloser, err := SetupLogger(cfg, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log setup error: %v\n", err)
		return ExitLogError
	}
	defer logCloser.Close()

	logger.Info("starting agentresourcerest",
		"version", Version,
		"config", *configPath,
		"address", cfg.Server.Address(),
	)

	// Create server
	server, err := NewServer(cfg, logger)
	if err != nil {
		var sErr *ServerError
		if errors.As(err, &sErr) {
			logger.Error("failed to create server",
				"error", sErr.Err,
				"operation", sErr.Op,
			)
			return sErr.ExitCode
		}
		logger.Error("failed to create server", "error", err)
		return ExitConfigError
	}

	// Start server
	if err := server.Start(context.Background()); err != nil {
		var sErr *ServerError
		if errors.As(err, &sErr) {
			logger.Error("server error",
				"error", sErr.Err,
				"operation", sErr.Op,
			)
			return sErr.ExitCode
		}
		logger.Error("server error", "error", err)
		return ExitServerError
	}

	return ExitSuccess
}
