package config

import (
	"fmt"
	"strings"

	apperrors "github.com/gitviz/gitviz/internal/errors"
)

// ValidationResult collects everything wrong (or questionable) with a
// configuration so the user sees all problems at once.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result.
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result.
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors.
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message.
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  ❌ %s\n", err))
	}
	if len(vr.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  ⚠️  %s\n", warn))
		}
	}
	return sb.String()
}

// Validate checks the whole configuration.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{Valid: true}

	if _, _, err := c.DateRange(); err != nil {
		result.AddError("%v", err)
	}

	if c.SecondsPerDay <= 0 {
		result.AddError("seconds_per_day must be positive, got %g", c.SecondsPerDay)
	}
	if c.TimeScale <= 0 {
		result.AddError("time_scale must be positive, got %g", c.TimeScale)
	}
	if c.Output == "" {
		result.AddError("output path must not be empty")
	}

	if c.Scan.Workers < 0 {
		result.AddError("scan workers must not be negative, got %d", c.Scan.Workers)
	}

	if dsn := c.Store.PostgresDSN; dsn != "" {
		if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
			result.AddError("store postgres_dsn must start with postgres:// or postgresql://")
		}
	}

	if c.Encode.CRF < 0 || c.Encode.CRF > 51 {
		result.AddWarning("encode crf %d is outside the usual 0-51 range", c.Encode.CRF)
	}
	if c.Render.Framerate <= 0 {
		result.AddWarning("render framerate %d is invalid, the renderer default applies", c.Render.Framerate)
	}
	if c.Render.Viewport != "" && !strings.Contains(c.Render.Viewport, "x") {
		result.AddWarning("render viewport %q does not look like WIDTHxHEIGHT", c.Render.Viewport)
	}

	return result
}

// Validated runs Validate and converts the outcome into a typed error:
// a bad date range keeps its own kind so the exit code is right, anything
// else is reported as one combined validation failure.
func (c *Config) Validated() error {
	if _, _, err := c.DateRange(); err != nil {
		return err
	}
	result := c.Validate()
	if result.HasErrors() {
		return apperrors.New(apperrors.KindInternal, result.Error())
	}
	return nil
}
