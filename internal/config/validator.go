package config

import (
	"errors"
	"fmt"
	"net"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

var validate = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report yaml names in field paths.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("listen_addr", func(fl validator.FieldLevel) bool {
		_, port, err := net.SplitHostPort(fl.Field().String())
		return err == nil && port != ""
	})

	return v
}

// ValidateConfig validates a gateway configuration.
func ValidateConfig(cfg *Config) error {
	v := &configValidator{errors: make(ValidationErrors, 0)}
	return v.validate(cfg)
}

type configValidator struct {
	errors ValidationErrors
}

func (v *configValidator) validate(cfg *Config) error {
	if cfg == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateStruct(cfg)

	if cfg.Security != nil {
		v.addErr("security", cfg.Security.Validate())
	}
	v.addErr("credentials", cfg.Credentials.APIKeyConfig().Validate())
	v.addErr("credentials.store", cfg.Credentials.Store.Validate())
	if cfg.RateLimit.IsEnabled() {
		lc := cfg.RateLimit.LimiterConfig()
		v.addErr("rateLimit", lc.Validate())
	}

	if cfg.Server.MetricsPath != "" && cfg.Server.MetricsPath == cfg.Server.HealthPath {
		v.addError("server.healthPath", "healthPath and metricsPath must differ")
	}

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *configValidator) validateStruct(cfg *Config) {
	err := validate.Struct(cfg)
	if err == nil {
		return
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		v.addError("", err.Error())
		return
	}
	for _, fe := range fieldErrs {
		path := strings.TrimPrefix(fe.Namespace(), "Config.")
		v.addError(path, describe(fe))
	}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "notblank":
		return "must not be blank"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "listen_addr":
		return fmt.Sprintf("invalid listen address %q", fe.Value())
	case "http_url":
		return fmt.Sprintf("invalid http(s) URL %q", fe.Value())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

func (v *configValidator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *configValidator) addErr(path string, err error) {
	if err != nil {
		v.addError(path, err.Error())
	}
}
