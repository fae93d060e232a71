package shared

import (
	"strings"
	"time"
)

const (
	// DefaultConcurrencyLimit bounds fan-out against the catalog server.
	DefaultConcurrencyLimit = 8

	stageLabelSeparatorConstant = "-"
)

// DefaultStageSequence orders the rollout environments from first to final.
var DefaultStageSequence = StageSequence{"dev", "qa", "stage", "prod"}

// Clock abstracts time acquisition for deterministic testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time source.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// StageSequence is an ordered list of rollout stage labels.
type StageSequence []string

// Contains reports whether the sequence defines the provided stage.
func (sequence StageSequence) Contains(stageLabel string) bool {
	for _, candidate := range sequence {
		if candidate == stageLabel {
			return true
		}
	}
	return false
}

// First returns the initial stage of the sequence.
func (sequence StageSequence) First() string {
	if len(sequence) == 0 {
		return ""
	}
	return sequence[0]
}

// Next returns the stage following the provided one, with false when the
// stage is unknown or already final.
func (sequence StageSequence) Next(stageLabel string) (string, bool) {
	for stageIndex, candidate := range sequence {
		if candidate == stageLabel && stageIndex+1 < len(sequence) {
			return sequence[stageIndex+1], true
		}
	}
	return "", false
}

// StageOfLabel extracts the stage prefix of a channel label, with false when
// the prefix does not name a configured stage.
func (sequence StageSequence) StageOfLabel(channelLabel string) (string, bool) {
	prefix, _, found := strings.Cut(channelLabel, stageLabelSeparatorConstant)
	if !found || !sequence.Contains(prefix) {
		return "", false
	}
	return prefix, true
}

// SwapStagePrefix replaces a label's stage prefix with another stage.
func SwapStagePrefix(channelLabel string, currentStage string, nextStage string) string {
	remainder := strings.TrimPrefix(channelLabel, currentStage+stageLabelSeparatorConstant)
	return nextStage + stageLabelSeparatorConstant + remainder
}
