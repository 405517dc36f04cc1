// Package handle defines the transfer capability consumed by the engine.
//
// A [Handle] performs one HTTP exchange at a time and can be reset for
// reuse. A [Multi] advances many handles over shared sockets and reports
// the descriptors and timeouts it needs through the [SocketFunc] and
// [TimerFunc] hooks, leaving the actual waiting to an external event loop.
//
// The package carries no implementation. See
// [github.com/adamwoolhether/httpmulti/client/nethttp] for a backend built
// on [net/http] and [github.com/adamwoolhether/httpmulti/client/handle/handletest]
// for a scripted fake.
package handle
