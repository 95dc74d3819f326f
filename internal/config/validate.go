package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	// Buffer must hold at least one packet per stage plus slack.
	// Two stages minimum (input + output), so anything under 2 is useless.
	if cfg.BufferPackets < 2 {
		errs = append(errs, ValidationError{
			Field:   "buffer_packets",
			Message: fmt.Sprintf("must be at least 2 (got %d)", cfg.BufferPackets),
		})
	}

	if cfg.MaxInputBatch < 1 {
		errs = append(errs, ValidationError{
			Field:   "max_input_batch",
			Message: "must be at least 1",
		})
	}

	if cfg.MaxInputBatch > cfg.BufferPackets {
		errs = append(errs, ValidationError{
			Field:   "max_input_batch",
			Message: fmt.Sprintf("must not exceed buffer size %d (got %d)", cfg.BufferPackets, cfg.MaxInputBatch),
		})
	}

	if cfg.WaitTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "wait_timeout",
			Message: "must not be negative",
		})
	}

	// Chain stages need names; markers without names are caught at parse
	// time, so empty names here mean a broken DefaultConfig override.
	for _, ref := range cfg.Chain() {
		if ref.Name == "" {
			errs = append(errs, ValidationError{
				Field:   ref.Kind,
				Message: "stage name must not be empty",
			})
		}
	}

	// Log format must be valid
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	// Log level must be valid
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.LogLevel)] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be one of: debug, info, warn, error (got %q)", cfg.LogLevel),
		})
	}

	// Status URL must be a well-formed http(s) URL if provided
	if cfg.StatusURL != "" {
		if err := validateURL(cfg.StatusURL); err != nil {
			errs = append(errs, ValidationError{
				Field:   "status",
				Message: err.Error(),
			})
		}
	}

	// TUI owns stdout; a file output to stdout would corrupt the display
	if cfg.TUIEnabled && cfg.Output.Name == "file" && len(cfg.Output.Args) == 0 {
		errs = append(errs, ValidationError{
			Field:   "tui",
			Message: "-tui cannot be combined with output to stdout; give -O file a path or use -O drop",
		})
	}

	// Return combined errors
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// validateURL checks if the URL is valid and uses http or https.
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https (got %q)", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must have a host")
	}

	return nil
}
