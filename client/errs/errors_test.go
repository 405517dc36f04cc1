package errs_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/adamwoolhether/httpmulti/client/errs"
	"github.com/adamwoolhether/httpmulti/client/handle"
)

func TestConfigurationError(t *testing.T) {
	err := fmt.Errorf("configure: %w", errs.NewConfigurationError("method", `unknown method "TRACE"`))

	if !errs.IsConfiguration(err) {
		t.Fatal("expected configuration error")
	}
	if errors.Is(err, errs.ErrTransport) {
		t.Fatal("configuration error must not match ErrTransport")
	}

	var ce *errs.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatal("errors.As should find *ConfigurationError")
	}
	if ce.Field != "method" {
		t.Errorf("Field = %q, want method", ce.Field)
	}
	if !strings.Contains(err.Error(), "TRACE") {
		t.Errorf("Error() = %q, want it to mention the method", err.Error())
	}
}

func TestConfigurationError_Fields(t *testing.T) {
	ce := &errs.ConfigurationError{
		Fields: errs.FieldErrors{{Field: "url", Err: "url must be a valid URL"}},
	}

	fe := errs.GetFieldErrors(ce)
	if fe == nil {
		t.Fatal("expected field errors to be reachable")
	}
	if got := fe.Fields()["url"]; got != "url must be a valid URL" {
		t.Errorf("Fields()[url] = %q", got)
	}
	if !errors.Is(ce, errs.ErrConfiguration) {
		t.Error("expected ErrConfiguration to match")
	}
}

func TestTransportError(t *testing.T) {
	tests := []struct {
		name    string
		err     *errs.TransportError
		timeout bool
		want    string
	}{
		{
			name:    "timeout",
			err:     &errs.TransportError{Code: handle.CodeOperationTimedOut, Message: "operation timed out after 1ms"},
			timeout: true,
			want:    "transport failure (28): operation timed out after 1ms",
		},
		{
			name: "connect",
			err:  &errs.TransportError{Code: handle.CodeCouldntConnect},
			want: "transport failure (7): couldn't connect to server",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
			if got := errs.IsTimeout(tt.err); got != tt.timeout {
				t.Errorf("IsTimeout = %v, want %v", got, tt.timeout)
			}
			if !errors.Is(tt.err, errs.ErrTransport) {
				t.Error("expected ErrTransport to match")
			}
		})
	}
}

func TestErrShutdownIsCancelled(t *testing.T) {
	if !errors.Is(errs.ErrShutdown, errs.ErrCancelled) {
		t.Fatal("ErrShutdown should match ErrCancelled")
	}
}
