// Package cli implements the command-line interface for canyon-gpx.
//
// The cli package provides the Cobra-based commands: convert (one canyon to a
// GPX file), region (every canyon of a regional listing merged into one file)
// and serve (the HTTP API). It wires configuration, logging, the scraper and
// the converter together.
package cli
