package cli

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/carlink/policydb/internal/store"
)

// Settings is the optional YAML settings file. Anything not set falls
// back to the store defaults.
type Settings struct {
	DBPath           string `yaml:"db_path"`
	OpenAttempts     int    `yaml:"open_attempts"`
	AttemptTimeoutMS int    `yaml:"attempt_timeout_ms"`
}

// LoadSettings reads a settings file. Unknown fields are rejected so
// a typo fails loudly instead of silently using a default.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}

	var settings Settings
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&settings); err != nil {
		return nil, fmt.Errorf("parse settings file: %w", err)
	}
	return &settings, nil
}

// resolveSettings merges the settings file (when given) with the
// --db flag. The flag wins.
func resolveSettings(opts *RootOptions) (*Settings, error) {
	settings := &Settings{}
	if opts.ConfigPath != "" {
		loaded, err := LoadSettings(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		settings = loaded
	}
	if opts.DBPath != "" {
		settings.DBPath = opts.DBPath
	}
	if settings.DBPath == "" {
		return nil, fmt.Errorf("no database path: pass --db or set db_path in the settings file")
	}
	return settings, nil
}

// openStore builds a store from the resolved settings. Verbose mode
// routes store logs to stderr; otherwise they are discarded, keeping
// command output clean.
func openStore(cmd *cobra.Command, opts *RootOptions) (*store.Store, error) {
	settings, err := resolveSettings(opts)
	if err != nil {
		return nil, NewExitError(ExitCommandError, err.Error())
	}

	logger := slog.New(slog.DiscardHandler)
	if opts.Verbose {
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}

	cfg := store.Config{
		Path:         settings.DBPath,
		Logger:       logger,
		OpenAttempts: settings.OpenAttempts,
	}
	if settings.AttemptTimeoutMS > 0 {
		cfg.AttemptTimeout = time.Duration(settings.AttemptTimeoutMS) * time.Millisecond
	}

	s, err := store.New(cfg)
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, Message: "opening policy database", Err: err}
	}
	return s, nil
}
