// Package logging wires up the structured logger used where the core loop
// handles a failure: transient I/O logs at Warn, unknown-source rejections
// at Error, and configuration errors are the only case allowed to be Fatal
// (and only at startup, never from inside the run loop). Malformed frames
// are not logged; the destination only counts them (Receiver.CountDrop).
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the logger sink and verbosity.
type Options struct {
	Level string // debug|info|warn|error
	File  string // empty = stderr only
}

// New builds a logrus.Logger per opts. When File is set, output is
// duplicated to stderr and to a size/age-rotated file (lumberjack), so a
// long-running 600s+ testbed run doesn't need external logrotate config.
func New(opts Options) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	var out io.Writer = os.Stderr
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    100, // MB
			MaxAge:     30,  // days
			MaxBackups: 5,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stderr, rotator)
	}
	log.SetOutput(out)
	return log
}
