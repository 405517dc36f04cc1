// Package httpmulti exposes the client builder.
//
// Requests submitted to a client share a fixed pool of transfer handles
// and are driven by a single event loop, see package client.
package httpmulti

import (
	"github.com/adamwoolhether/httpmulti/client"
)

// NewClient instantiates a new *Client with the provided options.
// If not specified, the net/http backend and an owned event loop are used.
func NewClient(opts ...client.Option) (*client.Client, error) {
	return client.Build(opts...)
}
