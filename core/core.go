// Package core holds what every part of the texture pipeline shares:
// configuration, time services, logging setup, assertions and image
// helpers.
package core

import (
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Service describes a pipeline component that is driven by the main
// loop. Once created it is ready to use.
type Service interface {
	// Update is polled once per frame on the main goroutine
	// to finish work that other goroutines handed back
	Update()

	// Flush blocks until every pending piece of work is done
	Flush()

	// Close flushes and releases internal members
	Close() error
}

// ConfigureLogging applies cfg to the standard logrus logger.
func ConfigureLogging(cfg LogConfiguration) error {
	level := strings.TrimSpace(cfg.Level)
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return errors.Wrap(err, "log level")
	}
	log.SetLevel(lvl)

	if cfg.JSON {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}
