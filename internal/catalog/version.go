package catalog

import (
	"strconv"
	"unicode"
)

const defaultEpochSegmentConstant = "0"

// Compare orders two references to the same package by epoch, then version,
// then release. Each field is compared as a sequence of numeric and
// alphabetic segments: numeric segments compare by value, a numeric segment
// outranks an alphabetic one, and when one sequence is a prefix of the other
// the longer sequence orders greater. The result is negative, zero, or
// positive when reference orders before, equal to, or after other.
func (reference PackageReference) Compare(other PackageReference) int {
	if comparison := compareSegmentedLabel(reference.epochSegmentSource(), other.epochSegmentSource()); comparison != 0 {
		return comparison
	}
	if comparison := compareSegmentedLabel(reference.Version, other.Version); comparison != 0 {
		return comparison
	}
	return compareSegmentedLabel(reference.Release, other.Release)
}

// Newer reports whether reference orders strictly after other.
func (reference PackageReference) Newer(other PackageReference) bool {
	return reference.Compare(other) > 0
}

// Older reports whether reference orders strictly before other.
func (reference PackageReference) Older(other PackageReference) bool {
	return reference.Compare(other) < 0
}

func (reference PackageReference) epochSegmentSource() string {
	epoch := reference.epochValue()
	if len(epoch) == 0 {
		return defaultEpochSegmentConstant
	}
	return epoch
}

func compareSegmentedLabel(leftLabel string, rightLabel string) int {
	leftSegments := splitLabelSegments(leftLabel)
	rightSegments := splitLabelSegments(rightLabel)

	commonLength := len(leftSegments)
	if len(rightSegments) < commonLength {
		commonLength = len(rightSegments)
	}

	for segmentIndex := 0; segmentIndex < commonLength; segmentIndex++ {
		if comparison := compareLabelSegment(leftSegments[segmentIndex], rightSegments[segmentIndex]); comparison != 0 {
			return comparison
		}
	}

	switch {
	case len(leftSegments) > len(rightSegments):
		return 1
	case len(leftSegments) < len(rightSegments):
		return -1
	default:
		return 0
	}
}

func compareLabelSegment(leftSegment string, rightSegment string) int {
	leftNumeric := isNumericSegment(leftSegment)
	rightNumeric := isNumericSegment(rightSegment)

	switch {
	case leftNumeric && !rightNumeric:
		return 1
	case !leftNumeric && rightNumeric:
		return -1
	case leftNumeric && rightNumeric:
		leftValue, _ := strconv.ParseInt(leftSegment, 10, 64)
		rightValue, _ := strconv.ParseInt(rightSegment, 10, 64)
		switch {
		case leftValue > rightValue:
			return 1
		case leftValue < rightValue:
			return -1
		default:
			return 0
		}
	case leftSegment > rightSegment:
		return 1
	case leftSegment < rightSegment:
		return -1
	default:
		return 0
	}
}

// splitLabelSegments breaks a version or release label into maximal runs of
// digits or letters; separator characters only delimit segments.
func splitLabelSegments(label string) []string {
	segments := make([]string, 0, len(label))
	segmentStart := -1
	segmentIsDigit := false

	flush := func(endIndex int) {
		if segmentStart >= 0 {
			segments = append(segments, label[segmentStart:endIndex])
			segmentStart = -1
		}
	}

	for byteIndex, character := range label {
		switch {
		case unicode.IsDigit(character):
			if segmentStart >= 0 && !segmentIsDigit {
				flush(byteIndex)
			}
			if segmentStart < 0 {
				segmentStart = byteIndex
				segmentIsDigit = true
			}
		case unicode.IsLetter(character):
			if segmentStart >= 0 && segmentIsDigit {
				flush(byteIndex)
			}
			if segmentStart < 0 {
				segmentStart = byteIndex
				segmentIsDigit = false
			}
		default:
			flush(byteIndex)
		}
	}
	flush(len(label))

	return segments
}

func isNumericSegment(segment string) bool {
	if len(segment) == 0 {
		return false
	}
	for _, character := range segment {
		if !unicode.IsDigit(character) {
			return false
		}
	}
	return true
}
