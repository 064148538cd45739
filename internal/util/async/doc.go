// Package async provides bounded parallel task execution.
//
// The [RunBounded] function executes independent operations concurrently
// under a configurable ceiling. Failures are collected per task and do
// not interrupt the others.
package async
