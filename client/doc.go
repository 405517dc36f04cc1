// Package client is an HTTP engine that multiplexes many concurrent
// requests over a small pool of reusable transfer handles, driven by a
// single-goroutine event loop.
//
// # Building a Client
//
// Use [Build] to create a [Client] with functional options:
//
//	c, err := client.Build(
//		client.WithPoolSize(8),
//		client.WithTimeout(10 * time.Second),
//		client.WithUserAgent("myapp/1.0"),
//	)
//	defer c.Close()
//
// # Making Requests
//
// The verb helpers build, submit and await a request in one call:
//
//	resp, err := c.Get(ctx, "https://api.example.com/v1/items",
//		client.WithParams(map[string]string{"page": "2"}),
//	)
//	id := resp.Path("items.0.id").String()
//
// For full control, construct a [Request] with [NewRequest] and run it
// with [Client.Do]:
//
//	req, err := client.NewRequest(http.MethodPost, u, client.WithJSON(payload))
//	resp, err := c.Do(ctx, req,
//		client.WithExpectStatus(http.StatusCreated),
//		client.WithDestination(&result),
//	)
//
// # Async Requests
//
// [Client.Submit] returns a [Result] immediately. At most the pool size of
// requests transfer at once, the rest wait for a free handle:
//
//	r, err := c.Submit(ctx, req)
//	// ... do other work ...
//	resp, err := r.Response()
//
// # Errors
//
// Invalid requests fail synchronously with an errs.ConfigurationError.
// Network failures surface through the Result as an errs.TransportError
// carrying a numeric code. Cancelled requests, and requests still pending
// at [Client.Close], fail with an error matching errs.ErrCancelled.
//
// # Downloading Files
//
// Stream a response body directly to disk with optional checksum
// verification and progress reporting:
//
//	err = c.Download(ctx, req, http.StatusOK, "/tmp/file.bin",
//		client.WithChecksum(sha256.New(), expectedHex),
//		client.WithProgress(),
//	)
package client
