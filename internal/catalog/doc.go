// Package catalog defines the remote package-catalog data model and the
// client capability surface consumed by the channel lifecycle engines.
package catalog
