// Package download streams response bodies to disk with optional
// checksum validation and progress reporting.
//
// A [File] is a body sink: the engine writes body bytes into it as they
// arrive, and the caller commits it once the exchange completes:
//
//	f, err := download.Create(destPath, logger,
//		download.WithChecksum(sha256.New(), expectedHex),
//	)
//	// ... bytes flow into f.Write ...
//	err = f.Commit()
//
// Data lands in a temporary file alongside the destination, which is
// renamed on success and removed on failure. Most callers should use
// Client.Download in the parent package, which drives a File internally.
package download
