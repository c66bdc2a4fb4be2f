package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/jamesainslie/filenotify/pkg/filenotify/config"
	"github.com/jamesainslie/filenotify/pkg/filenotify/logging"
)

// loadConfig decodes the prepared viper state and starts logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Decode(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if err := initLogging(cfg, getVerbose(), getQuiet()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// initLogging starts file logging and mirrors warnings (or everything, when
// verbose) to stderr.
func initLogging(cfg *config.Config, verbose, quiet bool) error {
	lc, err := cfg.LoggingConfig()
	if err != nil {
		return err
	}

	switch {
	case verbose:
		lc.Level = "debug"
		lc.ConsoleLevel = "debug"
		lc.Components = nil
	case quiet:
		lc.ConsoleLevel = "error"
	default:
		lc.ConsoleLevel = "warn"
	}

	if err := logging.Init(lc); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	return nil
}
