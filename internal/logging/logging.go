// Package logging builds the process loggers: stderr plus a rotating
// file so long-running daemons don't fill the disk.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures log output.
type Options struct {
	// Path is the log file. Empty disables file output.
	Path string

	// Quiet suppresses the stderr copy.
	Quiet bool
}

// New returns a prefixed logger and a closer for the underlying file
// writer. The file is size-rotated and old logs are pruned.
func New(prefix string, opts Options) (*log.Logger, io.Closer) {
	var writers []io.Writer
	var closer io.Closer = nopCloser{}

	if !opts.Quiet {
		writers = append(writers, os.Stderr)
	}
	if opts.Path != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		writers = append(writers, rotator)
		closer = rotator
	}

	var out io.Writer = io.Discard
	if len(writers) > 0 {
		out = io.MultiWriter(writers...)
	}
	return log.New(out, prefix, log.LstdFlags), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
