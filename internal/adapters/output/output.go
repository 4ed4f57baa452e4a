// Package output renders upnextctl results: tracker snapshots and popup
// timing computations, as JSON for scripts or pterm tables for people.
package output

// Printer renders one command result to stdout.
type Printer interface {
	Print(v any) error
}
