// Package cli constructs the houston command-line interface, wiring the
// Cobra command hierarchy, configuration loader, structured logging, and the
// catalog server session shared by the channel lifecycle commands.
package cli
