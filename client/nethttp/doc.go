// Package nethttp implements the transfer capability on top of [net/http].
//
// Each transfer runs its exchange on its own goroutine and reports
// completion by writing to a pipe. The [Multi] exposes the read end of that
// pipe as its only socket, so an event loop watching it learns about
// finished transfers without polling. Overall timeouts and low-speed stalls
// are enforced from the single timer the multi asks for, which is how a
// socket-driven engine handles them.
//
// Handle callbacks (header lines, body bytes, body reads) run on the
// transfer goroutine. Once [Multi.Remove] returns, or the transfer has been
// reported by [Multi.InfoRead], no callback of that handle runs again.
package nethttp
