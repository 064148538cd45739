// Package backoff implements bounded retry policies with an injectable
// sleeper, so retry loops can be tested without real time passing.
//
// It replaces ad-hoc sleep loops: callers build a Policy once and run
// operations through Retry, which guarantees termination after the
// configured attempt bound.
package backoff
