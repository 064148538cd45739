// Package pipeline coordinates deploy-then-verify runs across multiple
// targets with bounded concurrency, aggregating per-target outcomes
// into a final report and exit status.
package pipeline
