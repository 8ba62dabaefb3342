// Package logging builds the process logger from configuration.
package logging

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/go-jupyter/kernel/internal/config"
)

// New creates a logrus logger per the logging configuration. Unknown levels
// fall back to info.
func New(cfg *config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.ToLower(cfg.Format) == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
