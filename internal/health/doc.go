// Package health verifies that a deployed or locally started workload
// actually answers its health endpoint.
//
// Verification is a small state machine: an initial settle delay
// absorbing process startup, then bounded backed-off polling until the
// endpoint answers 200 or the attempt budget is spent. Any transient
// resource the harness owns (a local probe container) is released
// exactly once on every exit path, with trailing logs captured first
// when verification fails.
package health
