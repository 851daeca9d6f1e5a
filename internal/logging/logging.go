// Package logging builds the process-wide hclog logger.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

// Options configures New.
type Options struct {
	Level  string
	JSON   bool
	Output io.Writer
}

// New returns the root logger. An empty level means info.
func New(opts Options) (hclog.Logger, error) {
	level := hclog.Info
	if opts.Level != "" {
		level = hclog.LevelFromString(opts.Level)
		if level == hclog.NoLevel {
			return nil, fmt.Errorf("invalid log level %q", opts.Level)
		}
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       "capledger",
		Level:      level,
		Output:     out,
		JSONFormat: opts.JSON,
	}), nil
}
