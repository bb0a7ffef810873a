package main

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// setupLogging configures the global logger. verbose wins over level.
func setupLogging(level string, verbose bool, out io.Writer) {
	if out == nil {
		out = os.Stderr
	}
	log.SetOutput(out)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Printf("Warning: unknown log level %q, using info", level)
		lvl = log.InfoLevel
	}
	if verbose {
		lvl = log.DebugLevel
	}
	log.SetLevel(lvl)
}
