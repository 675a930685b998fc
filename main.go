package main

import (
	"fmt"
	"os"

	"interviewrec/internal/app"
	"interviewrec/internal/cli"
	"interviewrec/internal/config"
	"interviewrec/internal/logger"
	"interviewrec/internal/output"
)

func main() {
	if err := run(); err != nil {
		output.NewFormatter(os.Stderr).Error(err.Error())
		os.Exit(1)
	}
}

func run() error {
	path := config.FilePath()
	if p := os.Getenv(config.EnvPrefix + "CONFIG"); p != "" {
		path = p
	}
	cfg, err := config.LoadFrom(path, ".env")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	deps := &cli.Dependencies{
		App:    app.New(cfg, log),
		Config: cfg,
		Log:    log,
		Out:    output.NewFormatter(os.Stdout),
	}

	return cli.NewRootCmd(deps).Execute()
}
