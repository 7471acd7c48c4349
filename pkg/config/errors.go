package config

import (
	"errors"

	"github.com/hyp3rd/ewrap"
)

// ParseError reports a configuration source that was present but unusable:
// a boolean literal outside the accepted set, malformed YAML, or a value
// that cannot decode into its field.
type ParseError struct {
	Field  string
	Source string
	err    *ewrap.Error
}

func newParseError(field, source, format string, args ...any) *ParseError {
	return &ParseError{
		Field:  field,
		Source: source,
		err: ewrap.Newf(format, args...).WithContext(&ewrap.ErrorContext{
			Severity: ewrap.SeverityError,
			Type:     ewrap.ErrorTypeConfiguration,
		}),
	}
}

func wrapParseError(cause error, field, source, msg string) *ParseError {
	return &ParseError{
		Field:  field,
		Source: source,
		err: ewrap.Wrap(cause, msg).WithContext(&ewrap.ErrorContext{
			Severity: ewrap.SeverityError,
			Type:     ewrap.ErrorTypeConfiguration,
		}),
	}
}

// Error implements error.
func (e *ParseError) Error() string {
	if e == nil || e.err == nil {
		return ""
	}

	return e.err.Error()
}

// Unwrap implements errors.Wrapper.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.err
}

// Is implements errors.Is.
func (*ParseError) Is(target error) bool {
	_, ok := target.(*ParseError)

	return ok
}

// IsParseError reports whether err carries a *ParseError anywhere in its chain.
func IsParseError(err error) bool {
	if err == nil {
		return false
	}

	var target *ParseError

	return errors.As(err, &target)
}

// MissingFieldError reports a field that a downstream feature requires but no
// configuration source provided. It is raised at the point the feature is
// used, never by Load itself.
type MissingFieldError struct {
	Field   string
	Feature string
	err     *ewrap.Error
}

// NewMissingFieldError builds a MissingFieldError for the named field and the
// feature that needed it.
func NewMissingFieldError(field, feature string) *MissingFieldError {
	return &MissingFieldError{
		Field:   field,
		Feature: feature,
		err: ewrap.Newf("configuration field %q is required by %s but was not provided", field, feature).
			WithContext(&ewrap.ErrorContext{
				Severity: ewrap.SeverityError,
				Type:     ewrap.ErrorTypeConfiguration,
			}),
	}
}

// Error implements error.
func (e *MissingFieldError) Error() string {
	if e == nil || e.err == nil {
		return ""
	}

	return e.err.Error()
}

// Unwrap implements errors.Wrapper.
func (e *MissingFieldError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.err
}

// Is implements errors.Is.
func (*MissingFieldError) Is(target error) bool {
	_, ok := target.(*MissingFieldError)

	return ok
}

// IsMissingFieldError reports whether err carries a *MissingFieldError
// anywhere in its chain.
func IsMissingFieldError(err error) bool {
	if err == nil {
		return false
	}

	var target *MissingFieldError

	return errors.As(err, &target)
}
