package config

import (
	"io"
	"os"
	"strings"

	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
)

// SetupLogger points the standard logrus logger at the configured output and level.
// The returned closer releases a log file, if one was opened.
func SetupLogger(conf LogConfig) (io.Closer, error) {
	level, err := log.ParseLevel(strings.ToLower(conf.Severity))
	if err != nil {
		return nil, trace.BadParameter("invalid log.severity %q", conf.Severity)
	}
	log.SetLevel(level)

	switch strings.ToLower(conf.Output) {
	case "", "stderr", "error", "2":
		log.SetOutput(os.Stderr)
		return nopCloser{}, nil
	case "stdout", "out", "1":
		log.SetOutput(os.Stdout)
		return nopCloser{}, nil
	}

	f, err := os.OpenFile(conf.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0660)
	if err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	log.SetOutput(f)
	log.SetFormatter(&log.TextFormatter{DisableColors: true, FullTimestamp: true})
	return f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
