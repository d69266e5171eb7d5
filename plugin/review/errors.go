package review

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Use errors.Is to check.
var (
	ErrInvalidGrade      = errors.New("review: invalid grade")
	ErrInvalidState      = errors.New("review: invalid scheduling state")
	ErrInvalidConfig     = errors.New("review: invalid engine config")
	ErrInvalidThresholds = errors.New("review: invalid mastery thresholds")
	ErrEngineOverflow    = errors.New("review: value clamped")
)

// Clamp records a computed value that was forced onto a boundary.
type Clamp struct {
	Field    string  `json:"field"`
	Computed float64 `json:"computed"`
	Applied  float64 `json:"applied"`
}

// OverflowError reports clamps applied during a transition. The transition itself
// is still valid; callers log this and carry on.
type OverflowError struct {
	Clamps []Clamp
}

func (e *OverflowError) Error() string {
	parts := make([]string, 0, len(e.Clamps))
	for _, c := range e.Clamps {
		parts = append(parts, fmt.Sprintf("%s %.4g -> %.4g", c.Field, c.Computed, c.Applied))
	}
	return ErrEngineOverflow.Error() + ": " + strings.Join(parts, ", ")
}

func (e *OverflowError) Unwrap() error {
	return ErrEngineOverflow
}
