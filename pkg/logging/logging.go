// Package logging builds the logrus logger shared by every component.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sirupsen/logrus"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config selects the level and format of the logger.
type Config struct {
	Level  string
	Format string
	// Output defaults to stderr.
	Output io.Writer
}

// DefaultConfig logs info and above as text.
func DefaultConfig() Config {
	return Config{Level: "info", Format: FormatText}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Level, validation.By(func(any) error {
			if c.Level == "" {
				return nil
			}
			_, err := logrus.ParseLevel(c.Level)
			return err
		})),
		validation.Field(&c.Format, validation.In(FormatText, FormatJSON, "")),
	)
}

// New returns a logger configured by cfg.
func New(cfg Config) (*logrus.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if cfg.Output != nil {
		logger.SetOutput(cfg.Output)
	}

	level := logrus.InfoLevel
	if cfg.Level != "" {
		level, _ = logrus.ParseLevel(cfg.Level)
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, FormatJSON) {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}
