package shared

import "sync"

// OutcomeStatus classifies the result of one item within a batch operation.
type OutcomeStatus string

// Possible per-item outcomes.
const (
	OutcomeSucceeded    OutcomeStatus = "succeeded"
	OutcomeWarned       OutcomeStatus = "warned"
	OutcomeFailed       OutcomeStatus = "failed"
	OutcomeNotAttempted OutcomeStatus = "not_attempted"
)

// WarningType classifies non-fatal per-package findings.
type WarningType string

// Possible warning classifications.
const (
	WarningVersionConflict WarningType = "version_conflict"
	WarningUnavailable     WarningType = "unavailable"
)

// Warning records one non-fatal per-package finding within an item outcome.
type Warning struct {
	Type    WarningType
	Package string
	Detail  string
}

// ItemOutcome records the result of processing one named item in a batch.
type ItemOutcome struct {
	Name     string
	Status   OutcomeStatus
	Warnings []Warning
	Error    string
}

// BatchReport aggregates per-item outcomes. Batches never abort on a single
// item failure, so the report is the only channel through which partial
// failure reaches the caller.
type BatchReport struct {
	mutex sync.Mutex
	Items []ItemOutcome
}

// Record appends an item outcome. Safe for concurrent use by batch workers.
func (report *BatchReport) Record(outcome ItemOutcome) {
	report.mutex.Lock()
	defer report.mutex.Unlock()
	report.Items = append(report.Items, outcome)
}

// CountByStatus returns the number of items with the provided status.
func (report *BatchReport) CountByStatus(status OutcomeStatus) int {
	count := 0
	for _, outcome := range report.Items {
		if outcome.Status == status {
			count++
		}
	}
	return count
}

// Succeeded returns the number of items that completed cleanly.
func (report *BatchReport) Succeeded() int {
	return report.CountByStatus(OutcomeSucceeded)
}

// Warned returns the number of items that completed with warnings.
func (report *BatchReport) Warned() int {
	return report.CountByStatus(OutcomeWarned)
}

// Failed returns the number of items that failed.
func (report *BatchReport) Failed() int {
	return report.CountByStatus(OutcomeFailed)
}

// PartialFailure reports whether at least one item failed while another
// succeeded or warned.
func (report *BatchReport) PartialFailure() bool {
	return report.Failed() > 0 && report.Failed() < len(report.Items)
}

// TotalFailure reports whether every attempted item failed.
func (report *BatchReport) TotalFailure() bool {
	return len(report.Items) > 0 && report.Failed() == len(report.Items)
}

// Outcome locates the recorded outcome for a named item.
func (report *BatchReport) Outcome(itemName string) (ItemOutcome, bool) {
	for _, outcome := range report.Items {
		if outcome.Name == itemName {
			return outcome, true
		}
	}
	return ItemOutcome{}, false
}
