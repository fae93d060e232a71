// Package naming derives deterministic channel labels for clones and
// rollout twins.
package naming

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/peteches/houston/internal/channels/shared"
)

const (
	cloneNameTemplateConstant        = "%s-%s-%s-%s-%s"
	fieldValueEmptyMessageConstant   = "must not be empty"
	fieldValueUnsafeTemplateConstant = "contains characters unsafe for a channel label: %q"
	invalidNameErrorTemplateConstant = "invalid %s: %s"
	projectFieldNameConstant         = "project"
	tagFieldNameConstant             = "tag"
	sourceLabelFieldNameConstant     = "source channel label"
	stageLabelFieldNameConstant      = "stage label"
	monthAbbreviationLayoutConstant  = "Jan"
)

// Channel labels are flat identifiers on the catalog server; anything beyond
// this set risks being interpreted as path hierarchy or shell metacharacters.
var safeLabelPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// InvalidNameError reports malformed naming policy input.
type InvalidNameError struct {
	FieldName string
	Message   string
}

// Error describes the invalid field.
func (invalidNameError InvalidNameError) Error() string {
	return fmt.Sprintf(invalidNameErrorTemplateConstant, invalidNameError.FieldName, invalidNameError.Message)
}

// DeriveCloneName produces the deterministic label
// <stage>-<project>-<month3>-<tag>-<sourceLabel>, where month3 is the
// lowercase three-letter month abbreviation of the clock's current time.
func DeriveCloneName(project string, tag string, sourceLabel string, stageLabel string, clock shared.Clock) (string, error) {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if len(stageLabel) == 0 {
		stageLabel = shared.DefaultStageSequence.First()
	}

	if validationError := validateField(projectFieldNameConstant, project); validationError != nil {
		return "", validationError
	}
	if validationError := validateField(tagFieldNameConstant, tag); validationError != nil {
		return "", validationError
	}
	if validationError := validateField(sourceLabelFieldNameConstant, sourceLabel); validationError != nil {
		return "", validationError
	}
	if validationError := validateField(stageLabelFieldNameConstant, stageLabel); validationError != nil {
		return "", validationError
	}

	monthAbbreviation := strings.ToLower(clock.Now().Format(monthAbbreviationLayoutConstant))
	return fmt.Sprintf(cloneNameTemplateConstant, stageLabel, project, monthAbbreviation, tag, sourceLabel), nil
}

func validateField(fieldName string, fieldValue string) error {
	if len(fieldValue) == 0 {
		return InvalidNameError{FieldName: fieldName, Message: fieldValueEmptyMessageConstant}
	}
	if !safeLabelPattern.MatchString(fieldValue) {
		return InvalidNameError{FieldName: fieldName, Message: fmt.Sprintf(fieldValueUnsafeTemplateConstant, fieldValue)}
	}
	return nil
}
