package logging

import (
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// EnvLevel overrides the configured log level when set.
const EnvLevel = "SIFT_LOG_LEVEL"

// Options controls logger construction.
type Options struct {
	// Level is the configured level name (trace, debug, info, warn, error).
	Level string
	// JSON switches to JSON-formatted lines.
	JSON bool
	// Output defaults to stderr; stdout carries the MCP transport.
	Output io.Writer
}

// New creates a named hclog.Logger. The level comes from SIFT_LOG_LEVEL first,
// then opts.Level, and defaults to INFO.
func New(name string, opts Options) hclog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:        name,
		Level:       determineLevel(opts.Level, out),
		JSONFormat:  opts.JSON,
		Output:      out,
		DisableTime: opts.JSON,
	})
}

func determineLevel(configured string, out io.Writer) hclog.Level {
	if env := os.Getenv(EnvLevel); env != "" {
		return parseLevel(env, out)
	}
	if configured == "" {
		return hclog.Info
	}
	return parseLevel(configured, out)
}

func parseLevel(s string, out io.Writer) hclog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return hclog.Trace
	case "DEBUG":
		return hclog.Debug
	case "INFO":
		return hclog.Info
	case "WARN", "WARNING":
		return hclog.Warn
	case "ERROR":
		return hclog.Error
	case "OFF":
		return hclog.Off
	default:
		hclog.New(&hclog.LoggerOptions{
			Level:       hclog.Warn,
			DisableTime: true,
			Output:      out,
		}).Warn("unrecognized log level, defaulting to INFO", "provided_level", s)
		return hclog.Info
	}
}
