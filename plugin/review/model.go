// Package review implements the spaced-repetition recurrence that decides when an
// item should be reviewed next.
package review

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// DefaultStrength is the initial strength for new items.
const DefaultStrength = 2.5

// MinStrength is the floor that keeps intervals from collapsing.
const MinStrength = 1.3

// MinIntervalDays is the shortest interval an item can have.
const MinIntervalDays = 1

// DefaultMaxIntervalDays caps intervals at one year.
const DefaultMaxIntervalDays = 365

// DefaultTargetRetention is the recall probability the base recurrence is tuned for.
const DefaultTargetRetention = 0.9

// Grade is the learner's self-reported recall quality, 0 (blackout) to 5 (perfect).
type Grade int

const (
	GradeBlackout  Grade = 0
	GradeWrong     Grade = 1
	GradeFamiliar  Grade = 2
	GradeDifficult Grade = 3
	GradeHesitant  Grade = 4
	GradePerfect   Grade = 5
)

// IsValid reports whether g is within 0..5.
func (g Grade) IsValid() bool {
	return g >= GradeBlackout && g <= GradePerfect
}

// Validate returns ErrInvalidGrade for grades outside 0..5.
func (g Grade) Validate() error {
	if !g.IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidGrade, int(g))
	}
	return nil
}

// Bucket classifies a valid grade as fail or pass.
func (g Grade) Bucket() GradeBucket {
	if g >= GradeDifficult {
		return GradePass
	}
	return GradeFail
}

// IsPass reports whether g counts as a successful recall.
func (g Grade) IsPass() bool {
	return g.IsValid() && g.Bucket() == GradePass
}

// GradeBucket is the closed set of grade outcomes.
type GradeBucket int

const (
	GradeFail GradeBucket = iota + 1 // grades 0-2
	GradePass                        // grades 3-5
)

func (b GradeBucket) String() string {
	switch b {
	case GradeFail:
		return "fail"
	case GradePass:
		return "pass"
	default:
		return fmt.Sprintf("GradeBucket(%d)", int(b))
	}
}

// State is the scheduling state of one item.
type State struct {
	Strength       float64    `json:"strength"`
	IntervalDays   int        `json:"interval_days"`
	Repetitions    int        `json:"repetitions"`
	DueAt          time.Time  `json:"due_at"`
	LastReviewedAt *time.Time `json:"last_reviewed_at"` // nil before first review.
}

// NewState returns the state of an item first encountered at now. It is due immediately.
func NewState(now time.Time) State {
	return State{
		Strength:     DefaultStrength,
		IntervalDays: MinIntervalDays,
		Repetitions:  0,
		DueAt:        now,
	}
}

// Validate checks the data-model invariants.
func (s State) Validate() error {
	if math.IsNaN(s.Strength) || math.IsInf(s.Strength, 0) || s.Strength < MinStrength {
		return fmt.Errorf("%w: strength %v below %v", ErrInvalidState, s.Strength, MinStrength)
	}
	if s.IntervalDays < MinIntervalDays {
		return fmt.Errorf("%w: interval %d below %d", ErrInvalidState, s.IntervalDays, MinIntervalDays)
	}
	if s.Repetitions < 0 {
		return fmt.Errorf("%w: negative repetitions %d", ErrInvalidState, s.Repetitions)
	}
	if s.DueAt.IsZero() {
		return fmt.Errorf("%w: missing due date", ErrInvalidState)
	}
	return nil
}

// clone returns a copy with its own LastReviewedAt.
func (s State) clone() State {
	out := s
	if s.LastReviewedAt != nil {
		v := *s.LastReviewedAt
		out.LastReviewedAt = &v
	}
	return out
}

// MasteryBucket groups items by strength for statistics.
type MasteryBucket int

const (
	MasteryNew MasteryBucket = iota + 1
	MasteryLearning
	MasteryMastered
)

var masteryNames = [...]string{MasteryNew: "new", MasteryLearning: "learning", MasteryMastered: "mastered"}

func (m MasteryBucket) String() string {
	if m >= MasteryNew && m <= MasteryMastered {
		return masteryNames[m]
	}
	return fmt.Sprintf("MasteryBucket(%d)", int(m))
}

// MarshalJSON encodes the bucket by name.
func (m MasteryBucket) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// Thresholds are the strength boundaries between mastery buckets.
type Thresholds struct {
	Mastered float64 `json:"mastered"`
	Learning float64 `json:"learning"`
}

// DefaultThresholds returns mastered >= 2.5, learning >= 1.5.
func DefaultThresholds() Thresholds {
	return Thresholds{Mastered: 2.5, Learning: 1.5}
}

// Validate requires 0 < Learning < Mastered.
func (t Thresholds) Validate() error {
	if t.Learning <= 0 || t.Mastered <= t.Learning {
		return fmt.Errorf("%w: learning %v, mastered %v", ErrInvalidThresholds, t.Learning, t.Mastered)
	}
	return nil
}

// Classify returns the mastery bucket for strength.
func (t Thresholds) Classify(strength float64) MasteryBucket {
	switch {
	case strength >= t.Mastered:
		return MasteryMastered
	case strength >= t.Learning:
		return MasteryLearning
	default:
		return MasteryNew
	}
}

// Config configures an Engine. Zero values are replaced with defaults.
type Config struct {
	MaxIntervalDays int     `json:"max_interval_days"` // zero -> 365
	TargetRetention float64 `json:"target_retention"`  // zero -> 0.9
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		MaxIntervalDays: DefaultMaxIntervalDays,
		TargetRetention: DefaultTargetRetention,
	}
}
