// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package log

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Options describes how a client logger is built. Output accepts "stdout",
// "stderr", "null" or a file path.
type Options struct {
	Level         string         `json:"level" mapstructure:"level"`
	Format        string         `json:"format" mapstructure:"format"`
	Output        string         `json:"output" mapstructure:"output"`
	FormatOptions *FormatOptions `json:"format_options" mapstructure:"format_options"`
}

// FormatOptions is a serializable subset of logrus.TextFormatter.
type FormatOptions struct {
	// Set to true to bypass checking for a TTY before outputting colors.
	ForceColors bool `json:"force_colors" mapstructure:"force_colors"`

	// Force disabling colors.
	DisableColors bool `json:"disable_colors" mapstructure:"disable_colors"`

	// Disable timestamp logging. useful when output is redirected to logging
	// system that already adds timestamps.
	DisableTimestamp bool `json:"disable_timestamp" mapstructure:"disable_timestamp"`

	// Enable logging the full timestamp when a TTY is attached instead of just
	// the time passed since beginning of execution.
	FullTimestamp bool `json:"full_timestamp" mapstructure:"full_timestamp"`

	// TimestampFormat to use for display when a full timestamp is printed
	TimestampFormat string `json:"timestamp_format" mapstructure:"timestamp_format"`
}

// New creates a logrus logger from the supplied options. A nil options value
// yields an info level text logger writing to stderr.
func New(opts *Options) (*logrus.Logger, error) {
	logger := logrus.New()
	if opts == nil {
		return logger, nil
	}

	if opts.Level != "" {
		level, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid log level '%s'", opts.Level)
		}
		logger.SetLevel(level)
	}

	out, err := prepareOutput(opts.Output)
	if err != nil {
		return nil, err
	}
	logger.SetOutput(out)

	switch strings.ToLower(opts.Format) {
	case "", "text":
		logger.SetFormatter(CreateTextFormatter(opts.FormatOptions))
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, errors.Errorf("unknown log format '%s'", opts.Format)
	}
	return logger, nil
}

// CreateTextFormatter takes *FormatOptions and returns the pointer to a new
// logrus.TextFormatter instance.
func CreateTextFormatter(opts *FormatOptions) *logrus.TextFormatter {
	if opts == nil {
		return &logrus.TextFormatter{}
	}
	return &logrus.TextFormatter{
		ForceColors:      opts.ForceColors,
		DisableColors:    opts.DisableColors,
		DisableTimestamp: opts.DisableTimestamp,
		FullTimestamp:    opts.FullTimestamp,
		TimestampFormat:  opts.TimestampFormat,
	}
}

// NewEntry returns an entry tagged with the component name.
func NewEntry(logger *logrus.Logger, component string) *logrus.Entry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return logger.WithField("component", component)
}

// Discard returns an entry that drops everything.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

// OrDiscard returns entry, or a discarding entry when entry is nil.
func OrDiscard(entry *logrus.Entry) *logrus.Entry {
	if entry == nil {
		return Discard()
	}
	return entry
}

func prepareOutput(target string) (io.Writer, error) {
	switch target {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	case "null":
		return io.Discard, nil
	}
	fp, err := os.OpenFile(target, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0600)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open log file '%s'", target)
	}
	return fp, nil
}
