// Package shared holds the collaborator interfaces, stage sequencing, and
// batch reporting types used by every channel lifecycle engine.
package shared
