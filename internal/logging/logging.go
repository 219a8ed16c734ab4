// Package logging builds the logrus logger shared by all Go2NetShield binaries.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"

	"Go2NetShield/internal/config"
)

// New returns a logger configured from cfg. Unknown levels fall back to info.
func New(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

// Security marks an entry as a security event so it can be filtered downstream.
func Security(log logrus.FieldLogger) *logrus.Entry {
	return log.WithField("security", true)
}
