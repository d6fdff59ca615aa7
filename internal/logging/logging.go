// Package logging builds the logrus loggers used by the binaries.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options mirrors the logging section of the configuration.
type Options struct {
	Level  string
	Format string
	// Output is "stdout", "stderr" or a file path.
	Output string
}

// New returns a logger for opts and a close function for its output.
// stdout and stderr are never closed.
func New(opts Options) (*logrus.Logger, func() error, error) {
	level, err := logrus.ParseLevel(strings.ToLower(defaultString(opts.Level, "info")))
	if err != nil {
		return nil, nil, fmt.Errorf("logging: %w", err)
	}

	var formatter logrus.Formatter
	switch strings.ToLower(defaultString(opts.Format, "text")) {
	case "text":
		formatter = &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000000",
		}
	case "json":
		formatter = &logrus.JSONFormatter{}
	default:
		return nil, nil, fmt.Errorf("logging: unknown format %q", opts.Format)
	}

	out, closeFn, err := openOutput(defaultString(opts.Output, "stderr"))
	if err != nil {
		return nil, nil, err
	}

	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(formatter)
	l.SetOutput(out)
	return l, closeFn, nil
}

func openOutput(target string) (io.Writer, func() error, error) {
	noop := func() error { return nil }
	switch target {
	case "stdout":
		return os.Stdout, noop, nil
	case "stderr":
		return os.Stderr, noop, nil
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: open %s: %w", target, err)
	}
	return f, f.Close, nil
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
