package nethttp

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/adamwoolhether/httpmulti/client/handle"
)

// abortError is the cancel cause of a transfer stopped from outside its
// goroutine: a timeout, a stall or a removal.
type abortError struct {
	code handle.Code
	msg  string
}

func (e *abortError) Error() string { return e.msg }

var errRemoved = &abortError{code: handle.CodeAbortedByCallback, msg: "transfer removed"}

// transferError carries a code chosen where the failure happened, so the
// classification below does not have to guess.
type transferError struct {
	code handle.Code
	err  error
}

func (e *transferError) Error() string { return e.err.Error() }
func (e *transferError) Unwrap() error { return e.err }

func failf(code handle.Code, format string, args ...any) *transferError {
	return &transferError{code: code, err: fmt.Errorf(format, args...)}
}

// classify maps an exchange error to a transfer code and message.
func classify(ctx context.Context, err error) (handle.Code, string) {
	var abort *abortError
	if errors.As(context.Cause(ctx), &abort) {
		return abort.code, abort.msg
	}

	var te *transferError
	if errors.As(err, &te) {
		return te.code, te.err.Error()
	}

	var (
		dnsErr    *net.DNSError
		certErr   *tls.CertificateVerificationError
		unknownCA x509.UnknownAuthorityError
		hostErr   x509.HostnameError
		invalid   x509.CertificateInvalidError
		recordErr tls.RecordHeaderError
		alertErr  tls.AlertError
		opErr     *net.OpError
		netErr    net.Error
	)

	switch {
	case errors.As(err, &dnsErr):
		return handle.CodeCouldntResolveHost, fmt.Sprintf("Could not resolve host: %s", dnsErr.Name)
	case errors.As(err, &certErr), errors.As(err, &unknownCA), errors.As(err, &hostErr), errors.As(err, &invalid):
		return handle.CodePeerFailedVerification, "SSL peer certificate or SSH remote key was not OK: " + err.Error()
	case errors.As(err, &recordErr), errors.As(err, &alertErr):
		return handle.CodeSSLConnectError, "SSL connect error: " + err.Error()
	case errors.As(err, &netErr) && netErr.Timeout():
		return handle.CodeOperationTimedOut, "Connection timed out: " + err.Error()
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return handle.CodeCouldntConnect, "Failed to connect: " + err.Error()
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return handle.CodeGotNothing, "Empty reply from server"
	case strings.Contains(err.Error(), "unsupported protocol scheme"):
		return handle.CodeUnsupportedProtocol, err.Error()
	case strings.Contains(err.Error(), "tls: "):
		return handle.CodeSSLConnectError, "SSL connect error: " + err.Error()
	}

	return handle.CodeRecvError, "Failure when receiving data from the peer: " + err.Error()
}
