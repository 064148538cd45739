// Package deploy turns a deployment target into the single idempotent
// remote command that updates the workload's image, and classifies the
// remote exit code.
package deploy
