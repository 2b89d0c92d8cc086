// Package cli provides shared configuration and formatting helpers for
// the minibatch command line tools: the corpus manifest format, storage
// backend wiring, and human-readable output formatting.
package cli
