//go:build !unix

package client

import (
	"errors"
	"log/slog"

	"github.com/adamwoolhether/httpmulti/client/handle"
)

func defaultBackend(*slog.Logger) handle.Factory { return nil }

func newLoop(*slog.Logger) (ownedLoop, error) {
	return nil, errors.New("no default event loop on this platform, use WithEventLoop")
}
