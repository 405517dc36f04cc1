//go:build unix

package client

import (
	"log/slog"

	"github.com/adamwoolhether/httpmulti/client/eventloop"
	"github.com/adamwoolhether/httpmulti/client/handle"
	"github.com/adamwoolhether/httpmulti/client/nethttp"
)

func defaultBackend(logger *slog.Logger) handle.Factory {
	return nethttp.Factory{Logger: logger}
}

func newLoop(logger *slog.Logger) (ownedLoop, error) {
	l, err := eventloop.New(logger)
	if err != nil {
		return nil, err
	}

	return l, nil
}
