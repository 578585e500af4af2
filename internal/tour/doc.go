// Package tour drives the first-run onboarding tour.
//
// Operators define the steps in a TOML file; the service serves the next
// incomplete step per member and records completions in the store.
package tour
