package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration against the struct validation tags
// plus a few cross-field rules the tags cannot express. Errors are
// flattened into one message listing every failing field and the rule it
// broke, so a bad config surfaces everything at once.
func Validate(cfg *Config) error {
	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry is enabled but no endpoint is configured")
	}
	if cfg.Telemetry.Profiling.Enabled && cfg.Telemetry.Profiling.Endpoint == "" {
		return fmt.Errorf("profiling is enabled but no endpoint is configured")
	}

	v := validator.New()

	err := v.Struct(cfg)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("config validation: %w", err)
	}

	msg := "invalid configuration:"
	for _, fieldErr := range validationErrors {
		msg += fmt.Sprintf("\n  %s: failed %q validation (value: %v)",
			fieldErr.Namespace(), fieldErr.Tag(), fieldErr.Value())
	}
	return fmt.Errorf("%s", msg)
}
