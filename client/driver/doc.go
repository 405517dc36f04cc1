// Package driver advances many transfer handles over shared sockets from a
// single event loop.
//
// # Model
//
// The [Driver] owns a [handle.Multi]. The multi reports which descriptors
// it needs watched and when it wants a timer; the driver mirrors that into
// an external [Loop] and calls back into the multi when the loop reports
// readiness or the timer fires. After every advance the driver compares the
// number of running transfers with its pending table and drains finished
// transfers on a mismatch, resolving one [Signal] per transfer.
//
// # Threading
//
// A Driver is not safe for concurrent use. Every method, and every callback
// it registers, must run on the loop goroutine; other goroutines reach it
// through [Loop.Post]. Signals may be awaited from any goroutine.
package driver
