package review

import (
	"fmt"
	"math"
	"time"
)

// Engine computes scheduling transitions. It holds only configuration and is safe
// for concurrent use.
type Engine struct {
	maxIntervalDays int
	targetRetention float64
	// modifier scales pass intervals so that the target retention is met
	// under an exponential forgetting curve tuned for DefaultTargetRetention.
	modifier float64
}

// NewEngine creates an Engine from cfg.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.MaxIntervalDays == 0 {
		cfg.MaxIntervalDays = DefaultMaxIntervalDays
	}
	if cfg.TargetRetention == 0 {
		cfg.TargetRetention = DefaultTargetRetention
	}
	if cfg.MaxIntervalDays < MinIntervalDays {
		return nil, fmt.Errorf("%w: max interval %d", ErrInvalidConfig, cfg.MaxIntervalDays)
	}
	if cfg.TargetRetention <= 0 || cfg.TargetRetention >= 1 {
		return nil, fmt.Errorf("%w: target retention %v out of (0, 1)", ErrInvalidConfig, cfg.TargetRetention)
	}
	return &Engine{
		maxIntervalDays: cfg.MaxIntervalDays,
		targetRetention: cfg.TargetRetention,
		modifier:        intervalModifier(cfg.TargetRetention),
	}, nil
}

// MustNewEngine is NewEngine for configurations known to be valid.
func MustNewEngine(cfg Config) *Engine {
	e, err := NewEngine(cfg)
	if err != nil {
		panic(err)
	}
	return e
}

// WithTargetRetention returns a copy of the engine tuned for target.
func (e *Engine) WithTargetRetention(target float64) (*Engine, error) {
	return NewEngine(Config{MaxIntervalDays: e.maxIntervalDays, TargetRetention: target})
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return Config{MaxIntervalDays: e.maxIntervalDays, TargetRetention: e.targetRetention}
}

func intervalModifier(target float64) float64 {
	if target == DefaultTargetRetention {
		return 1
	}
	return math.Log(target) / math.Log(DefaultTargetRetention)
}

// Outcome is the result of one transition.
type Outcome struct {
	State  State   `json:"state"`
	Clamps []Clamp `json:"clamps,omitempty"`
}

// Overflow returns an *OverflowError when a boundary was applied, nil otherwise.
func (o Outcome) Overflow() error {
	if len(o.Clamps) == 0 {
		return nil
	}
	return &OverflowError{Clamps: o.Clamps}
}

// Advance applies grade to state at now and returns the next state.
// The input is not mutated and identical inputs always produce identical output.
func (e *Engine) Advance(state State, grade Grade, now time.Time) (Outcome, error) {
	if err := grade.Validate(); err != nil {
		return Outcome{}, err
	}
	if err := state.Validate(); err != nil {
		return Outcome{}, err
	}

	next := state.clone()
	var clamps []Clamp

	switch grade.Bucket() {
	case GradeFail:
		next.Repetitions = 0
		next.IntervalDays = MinIntervalDays
		penalty := 0.2 + float64(GradeFamiliar-grade)*0.15
		next.Strength, clamps = floorStrength(state.Strength-penalty, clamps)
	case GradePass:
		next.Repetitions = state.Repetitions + 1
		computed := int(math.Round(float64(state.IntervalDays) * state.Strength * e.modifier))
		grown := min(computed, e.maxIntervalDays)
		// A stored interval above a since-lowered cap is kept, never shortened.
		grown = max(grown, state.IntervalDays)
		if computed > grown {
			clamps = append(clamps, Clamp{Field: "interval_days", Computed: float64(computed), Applied: float64(grown)})
		}
		next.IntervalDays = grown
		q := float64(GradePerfect - grade)
		next.Strength, clamps = floorStrength(state.Strength+(0.1-q*(0.08+q*0.02)), clamps)
	}

	reviewed := now
	next.LastReviewedAt = &reviewed
	next.DueAt = now.AddDate(0, 0, next.IntervalDays)

	return Outcome{State: next, Clamps: clamps}, nil
}

func floorStrength(computed float64, clamps []Clamp) (float64, []Clamp) {
	if computed < MinStrength {
		return MinStrength, append(clamps, Clamp{Field: "strength", Computed: computed, Applied: MinStrength})
	}
	return computed, clamps
}

// Preview returns the outcome of every grade without committing to any.
func (e *Engine) Preview(state State, now time.Time) (map[Grade]Outcome, error) {
	result := make(map[Grade]Outcome, 6)
	for g := GradeBlackout; g <= GradePerfect; g++ {
		o, err := e.Advance(state, g, now)
		if err != nil {
			return nil, err
		}
		result[g] = o
	}
	return result, nil
}

// Event is one graded review used for replays.
type Event struct {
	Grade      Grade
	OccurredAt time.Time
}

// Trace replays events from initial in order. It returns the state each event was
// applied to and the final state.
func (e *Engine) Trace(initial State, events []Event) ([]State, State, error) {
	before := make([]State, 0, len(events))
	current := initial.clone()
	for i, ev := range events {
		before = append(before, current.clone())
		o, err := e.Advance(current, ev.Grade, ev.OccurredAt)
		if err != nil {
			return nil, State{}, fmt.Errorf("replay event %d: %w", i, err)
		}
		current = o.State
	}
	return before, current, nil
}
