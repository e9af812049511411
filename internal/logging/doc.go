// Package logging configures the slog logger shared by every dartup
// component: a human-oriented console handler for terminals, a JSON handler
// for machine consumption, and attribute helpers that keep field names
// consistent across the run log.
package logging
