package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/javanstorm/capledger/internal/store"
)

// ValidationError represents a configuration issue.
type ValidationError struct {
	Field   string
	Message string
	Fatal   bool // true = can't proceed, false = will be ignored
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Check returns every problem found in the configuration.
func (c *Config) Check() []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, ValidationError{Field: "data_dir", Message: "must not be empty", Fatal: true})
	}

	switch c.StoreBackend {
	case store.BackendJSON, store.BackendBolt:
	default:
		errs = append(errs, ValidationError{
			Field:   "store_backend",
			Message: fmt.Sprintf("unknown backend %q (want %s or %s)", c.StoreBackend, store.BackendJSON, store.BackendBolt),
			Fatal:   true,
		})
	}

	if c.LockTimeout < 0 {
		errs = append(errs, ValidationError{Field: "lock_timeout", Message: "must not be negative", Fatal: true})
	} else if c.LockTimeout == 0 && c.StoreBackend == store.BackendBolt {
		errs = append(errs, ValidationError{
			Field:   "lock_timeout",
			Message: "zero waits forever for a locked ledger database",
		})
	}

	if _, _, err := net.SplitHostPort(c.HTTPAddr); err != nil {
		errs = append(errs, ValidationError{Field: "http_addr", Message: err.Error(), Fatal: true})
	}

	if c.LogLevel != "" && hclog.LevelFromString(c.LogLevel) == hclog.NoLevel {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("unknown level %q", c.LogLevel),
			Fatal:   true,
		})
	}

	for _, d := range []struct {
		field string
		value int64
	}{
		{"default_cpu", c.DefaultCPU},
		{"default_memory", c.DefaultMemory},
		{"default_storage", c.DefaultStorage},
	} {
		if d.value < 0 {
			errs = append(errs, ValidationError{Field: d.field, Message: "must not be negative", Fatal: true})
		}
	}

	return errs
}

// Validate returns the fatal problems from Check as a single error.
func (c *Config) Validate() error {
	var result *multierror.Error
	for _, e := range c.Check() {
		if e.Fatal {
			result = multierror.Append(result, e)
		}
	}
	return result.ErrorOrNil()
}

// FormatValidationErrors returns human-readable error summary.
func FormatValidationErrors(errors []ValidationError) string {
	if len(errors) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Configuration warnings:\n")
	for _, e := range errors {
		prefix := "Warning"
		if e.Fatal {
			prefix = "Error"
		}
		fmt.Fprintf(&b, "  %s [%s]: %s\n", prefix, e.Field, e.Message)
	}
	return b.String()
}
