// Package errs defines the failures a logical request can end with.
package errs

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/adamwoolhether/httpmulti/client/handle"
)

var (
	// ErrConfiguration is the sentinel wrapped by [ConfigurationError].
	ErrConfiguration = errors.New("invalid request configuration")
	// ErrTransport is the sentinel wrapped by [TransportError].
	ErrTransport = errors.New("transport failure")
	// ErrCancelled reports a request cancelled before it completed.
	ErrCancelled = errors.New("transfer cancelled")
	// ErrShutdown reports a request dropped because the engine shut down.
	// It matches ErrCancelled.
	ErrShutdown = fmt.Errorf("%w: engine shut down", ErrCancelled)
)

// ConfigurationError is returned for a request rejected before any I/O.
type ConfigurationError struct {
	Field  string
	Reason string
	Fields FieldErrors
}

// NewConfigurationError constructs a ConfigurationError for field.
func NewConfigurationError(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}

func (e *ConfigurationError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%v: %s", ErrConfiguration, e.Fields.Error())
	}
	return fmt.Sprintf("%v: %s: %s", ErrConfiguration, e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() []error {
	if len(e.Fields) > 0 {
		return []error{ErrConfiguration, e.Fields}
	}
	return []error{ErrConfiguration}
}

// TransportError carries the numeric code and message of a failed exchange.
type TransportError struct {
	Code    handle.Code
	Message string
}

func (e *TransportError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v (%d): %s", ErrTransport, int(e.Code), e.Code)
	}
	return fmt.Sprintf("%v (%d): %s", ErrTransport, int(e.Code), e.Message)
}

func (e *TransportError) Unwrap() error {
	return ErrTransport
}

// Timeout reports whether the exchange was abandoned for taking too long
// or stalling below the low-speed threshold.
func (e *TransportError) Timeout() bool {
	return e.Code.Timeout()
}

// IsConfiguration reports whether err is a [ConfigurationError].
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsTimeout reports whether err is a [TransportError] caused by a timeout.
func IsTimeout(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Timeout()
}

// /////////////////////////////////////////////////////////////////////////////////////////////

// FieldError is used to indicate an error with a specific request field.
type FieldError struct {
	Field string `json:"field"`
	Err   string `json:"error"`
}

// FieldErrors represents a collection of field errors.
type FieldErrors []FieldError

// Error implements the error interface.
func (fe FieldErrors) Error() string {
	d, err := json.Marshal(fe)
	if err != nil {
		return err.Error()
	}
	return string(d)
}

// Fields returns the fields that failed validation
func (fe FieldErrors) Fields() map[string]string {
	m := make(map[string]string)
	for _, fld := range fe {
		m[fld.Field] = fld.Err
	}
	return m
}

// GetFieldErrors returns the FieldErrors carried by err, if any.
func GetFieldErrors(err error) FieldErrors {
	var fe FieldErrors
	if !errors.As(err, &fe) {
		return nil
	}
	return fe
}
