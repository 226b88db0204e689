package harvest

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Failure classes. Match with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrUpstreamModel     = errors.New("upstream model error")
	ErrMalformedResponse = errors.New("malformed upstream response")
	ErrPersistence       = errors.New("persistence error")
	ErrMetricsUpdate     = errors.New("metrics update error")
)

// Stage names a step of the pipeline.
type Stage string

// Pipeline stages in execution order.
const (
	StageValidating      Stage = "validating"
	StageInvoking        Stage = "invoking"
	StageSanitizing      Stage = "sanitizing"
	StagePersisting      Stage = "persisting"
	StageUpdatingMetrics Stage = "updating_metrics"
	StageDone            Stage = "done"
)

const (
	// RawExcerptChars bounds how much model output is echoed back in diagnostics.
	RawExcerptChars = 200
	// MaxDetailChars bounds any diagnostic carried by a StageError.
	MaxDetailChars = 500
)

// StageError reports which stage failed, the failure class and a bounded detail.
type StageError struct {
	Stage  Stage
	Kind   error
	Detail string
	Err    error
}

func newStageError(stage Stage, kind error, detail string, cause error) *StageError {
	return &StageError{
		Stage:  stage,
		Kind:   kind,
		Detail: Truncate(detail, MaxDetailChars),
		Err:    cause,
	}
}

func (e *StageError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Stage, e.Kind, e.Detail)
}

// Unwrap exposes both the failure class and the underlying cause.
func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
