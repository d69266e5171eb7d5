package review

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2025, 1, 10, 8, 30, 0, 0, time.UTC)

func defaultEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(Config{})
	require.NoError(t, err)
	return e
}

func TestDefaultConstants(t *testing.T) {
	if DefaultStrength != 2.5 {
		t.Errorf("DefaultStrength = %f, want 2.5", DefaultStrength)
	}
	if MinStrength != 1.3 {
		t.Errorf("MinStrength = %f, want 1.3", MinStrength)
	}
	cfg := DefaultConfig()
	if cfg.MaxIntervalDays != 365 {
		t.Errorf("MaxIntervalDays = %d, want 365", cfg.MaxIntervalDays)
	}
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	_, err := NewEngine(Config{TargetRetention: 1.2})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewEngine(Config{MaxIntervalDays: -3})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestAdvance_ScenarioA_NewItemPerfect(t *testing.T) {
	e := defaultEngine(t)
	state := NewState(day0)

	out, err := e.Advance(state, GradePerfect, day0)
	require.NoError(t, err)

	assert.Equal(t, 1, out.State.Repetitions)
	assert.Equal(t, 3, out.State.IntervalDays) // round(1 * 2.5)
	assert.InDelta(t, 2.6, out.State.Strength, 1e-9)
	assert.Equal(t, day0.AddDate(0, 0, 3), out.State.DueAt)
	require.NotNil(t, out.State.LastReviewedAt)
	assert.Equal(t, day0, *out.State.LastReviewedAt)
	assert.NoError(t, out.Overflow())
}

func TestAdvance_ScenarioB_FailAfterPass(t *testing.T) {
	e := defaultEngine(t)
	first, err := e.Advance(NewState(day0), GradePerfect, day0)
	require.NoError(t, err)
	require.Equal(t, 3, first.State.IntervalDays)
	require.Equal(t, 1, first.State.Repetitions)

	now := day0.AddDate(0, 0, 3)
	out, err := e.Advance(first.State, GradeWrong, now)
	require.NoError(t, err)

	assert.Equal(t, 0, out.State.Repetitions)
	assert.Equal(t, 1, out.State.IntervalDays)
	assert.Less(t, out.State.Strength, first.State.Strength)
	assert.GreaterOrEqual(t, out.State.Strength, MinStrength)
	assert.InDelta(t, 2.6-0.35, out.State.Strength, 1e-9)
	assert.Equal(t, now.AddDate(0, 0, 1), out.State.DueAt)
}

func TestAdvance_FailPenaltyByGrade(t *testing.T) {
	tests := []struct {
		grade   Grade
		penalty float64
	}{
		{GradeBlackout, 0.5},
		{GradeWrong, 0.35},
		{GradeFamiliar, 0.2},
	}

	e := defaultEngine(t)
	for _, tt := range tests {
		t.Run(tt.grade.Bucket().String(), func(t *testing.T) {
			state := State{Strength: 2.5, IntervalDays: 10, Repetitions: 4, DueAt: day0}
			out, err := e.Advance(state, tt.grade, day0)
			require.NoError(t, err)
			assert.InDelta(t, 2.5-tt.penalty, out.State.Strength, 1e-9)
		})
	}
}

func TestAdvance_PassStrengthAdjustment(t *testing.T) {
	tests := []struct {
		grade Grade
		delta float64
	}{
		{GradeDifficult, -0.14},
		{GradeHesitant, 0.0},
		{GradePerfect, 0.1},
	}

	e := defaultEngine(t)
	for _, tt := range tests {
		state := State{Strength: 2.0, IntervalDays: 4, Repetitions: 2, DueAt: day0}
		out, err := e.Advance(state, tt.grade, day0)
		require.NoError(t, err)
		if math.Abs(out.State.Strength-(2.0+tt.delta)) > 1e-9 {
			t.Errorf("grade %d: Strength = %f, want %f", tt.grade, out.State.Strength, 2.0+tt.delta)
		}
		// interval uses the pre-update strength
		if out.State.IntervalDays != 8 {
			t.Errorf("grade %d: IntervalDays = %d, want 8", tt.grade, out.State.IntervalDays)
		}
	}
}

func TestAdvance_InvalidGrade(t *testing.T) {
	e := defaultEngine(t)
	for _, g := range []Grade{-1, 6, 42} {
		_, err := e.Advance(NewState(day0), g, day0)
		if !errors.Is(err, ErrInvalidGrade) {
			t.Errorf("grade %d: err = %v, want ErrInvalidGrade", g, err)
		}
	}
}

func TestAdvance_InvalidState(t *testing.T) {
	e := defaultEngine(t)
	bad := []State{
		{Strength: 1.0, IntervalDays: 1, DueAt: day0},
		{Strength: 2.5, IntervalDays: 0, DueAt: day0},
		{Strength: 2.5, IntervalDays: 1, Repetitions: -1, DueAt: day0},
		{Strength: 2.5, IntervalDays: 1},
		{Strength: math.NaN(), IntervalDays: 1, DueAt: day0},
	}
	for i, s := range bad {
		_, err := e.Advance(s, GradeHesitant, day0)
		assert.ErrorIs(t, err, ErrInvalidState, "case %d", i)
	}
}

func TestAdvance_StrengthFloorReportsOverflow(t *testing.T) {
	e := defaultEngine(t)
	state := State{Strength: 1.4, IntervalDays: 3, Repetitions: 2, DueAt: day0}

	for i := 0; i < 10; i++ {
		out, err := e.Advance(state, GradeBlackout, day0)
		require.NoError(t, err)
		state = out.State
		if i == 0 {
			overflow := out.Overflow()
			require.Error(t, overflow)
			assert.ErrorIs(t, overflow, ErrEngineOverflow)
			var oe *OverflowError
			require.True(t, errors.As(overflow, &oe))
			assert.Equal(t, "strength", oe.Clamps[0].Field)
		}
	}
	assert.Equal(t, MinStrength, state.Strength)
}

func TestAdvance_MaxIntervalCap(t *testing.T) {
	e := defaultEngine(t)
	state := State{Strength: 2.8, IntervalDays: 300, Repetitions: 20, DueAt: day0}

	out, err := e.Advance(state, GradePerfect, day0)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxIntervalDays, out.State.IntervalDays)

	var oe *OverflowError
	require.True(t, errors.As(out.Overflow(), &oe))
	assert.Equal(t, "interval_days", oe.Clamps[0].Field)
	assert.Equal(t, float64(840), oe.Clamps[0].Computed)
}

func TestAdvance_PassKeepsIntervalAboveLoweredCap(t *testing.T) {
	e, err := NewEngine(Config{MaxIntervalDays: 30})
	require.NoError(t, err)
	state := State{Strength: 2.5, IntervalDays: 100, Repetitions: 6, DueAt: day0}

	for g := GradeDifficult; g <= GradePerfect; g++ {
		out, err := e.Advance(state, g, day0)
		require.NoError(t, err)
		assert.Equal(t, 100, out.State.IntervalDays, "grade %d", g)

		var oe *OverflowError
		require.True(t, errors.As(out.Overflow(), &oe))
		assert.Equal(t, "interval_days", oe.Clamps[0].Field)
		assert.Equal(t, float64(100), oe.Clamps[0].Applied)
	}

	// A fail still resets.
	out, err := e.Advance(state, GradeBlackout, day0)
	require.NoError(t, err)
	assert.Equal(t, MinIntervalDays, out.State.IntervalDays)
}

func TestAdvance_DoesNotMutateInput(t *testing.T) {
	e := defaultEngine(t)
	reviewed := day0.AddDate(0, 0, -2)
	state := State{Strength: 2.2, IntervalDays: 2, Repetitions: 1, DueAt: day0, LastReviewedAt: &reviewed}
	snapshot := state.clone()

	_, err := e.Advance(state, GradeHesitant, day0)
	require.NoError(t, err)
	assert.Equal(t, snapshot, state)
	assert.Equal(t, reviewed, *state.LastReviewedAt)
}

func TestAdvance_Deterministic(t *testing.T) {
	e := defaultEngine(t)
	state := State{Strength: 2.1, IntervalDays: 7, Repetitions: 3, DueAt: day0}
	for g := GradeBlackout; g <= GradePerfect; g++ {
		a, err := e.Advance(state, g, day0)
		require.NoError(t, err)
		b, err := e.Advance(state, g, day0)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

// Properties over a grid of valid states.
func TestAdvance_Properties(t *testing.T) {
	e := defaultEngine(t)
	strengths := []float64{1.3, 1.31, 1.5, 1.9, 2.5, 2.9, 3.7}
	intervals := []int{1, 2, 3, 6, 15, 40, 120, 364, 365}

	for _, s := range strengths {
		for _, ivl := range intervals {
			state := State{Strength: s, IntervalDays: ivl, Repetitions: 2, DueAt: day0}
			for g := GradeBlackout; g <= GradePerfect; g++ {
				out, err := e.Advance(state, g, day0)
				require.NoError(t, err)
				next := out.State
				if next.Strength < MinStrength {
					t.Fatalf("strength %f < floor (s=%v ivl=%d g=%d)", next.Strength, s, ivl, g)
				}
				if g.IsPass() {
					if next.IntervalDays < ivl {
						t.Fatalf("pass decreased interval %d -> %d (s=%v g=%d)", ivl, next.IntervalDays, s, g)
					}
					if next.Repetitions != 3 {
						t.Fatalf("pass repetitions = %d, want 3", next.Repetitions)
					}
				} else {
					if next.Repetitions != 0 || next.IntervalDays != 1 {
						t.Fatalf("fail did not reset: reps=%d ivl=%d", next.Repetitions, next.IntervalDays)
					}
				}
				if !next.DueAt.Equal(day0.AddDate(0, 0, next.IntervalDays)) {
					t.Fatalf("DueAt = %v, want now + %d days", next.DueAt, next.IntervalDays)
				}
			}
		}
	}
}

func TestWithTargetRetention(t *testing.T) {
	e := defaultEngine(t)
	state := State{Strength: 2.5, IntervalDays: 10, Repetitions: 3, DueAt: day0}

	strict, err := e.WithTargetRetention(0.95)
	require.NoError(t, err)
	lenient, err := e.WithTargetRetention(0.8)
	require.NoError(t, err)

	base, _ := e.Advance(state, GradeHesitant, day0)
	tight, _ := strict.Advance(state, GradeHesitant, day0)
	loose, _ := lenient.Advance(state, GradeHesitant, day0)

	assert.Equal(t, 25, base.State.IntervalDays)
	assert.Less(t, tight.State.IntervalDays, base.State.IntervalDays)
	assert.GreaterOrEqual(t, tight.State.IntervalDays, state.IntervalDays)
	assert.Greater(t, loose.State.IntervalDays, base.State.IntervalDays)

	_, err = e.WithTargetRetention(1)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPreview(t *testing.T) {
	e := defaultEngine(t)
	preview, err := e.Preview(NewState(day0), day0)
	require.NoError(t, err)
	assert.Len(t, preview, 6)
	assert.Equal(t, 1, preview[GradeBlackout].State.IntervalDays)
	assert.Equal(t, 3, preview[GradePerfect].State.IntervalDays)
}

func TestTrace(t *testing.T) {
	e := defaultEngine(t)
	events := []Event{
		{Grade: GradePerfect, OccurredAt: day0},
		{Grade: GradeHesitant, OccurredAt: day0.AddDate(0, 0, 3)},
		{Grade: GradeWrong, OccurredAt: day0.AddDate(0, 0, 11)},
	}

	before, final, err := e.Trace(NewState(day0), events)
	require.NoError(t, err)
	require.Len(t, before, 3)

	assert.Nil(t, before[0].LastReviewedAt)
	assert.Equal(t, 3, before[1].IntervalDays)
	assert.Equal(t, 8, before[2].IntervalDays) // round(3 * 2.6)
	assert.Equal(t, 0, final.Repetitions)
	assert.Equal(t, 1, final.IntervalDays)

	_, _, err = e.Trace(NewState(day0), []Event{{Grade: 9, OccurredAt: day0}})
	assert.ErrorIs(t, err, ErrInvalidGrade)
}

func TestThresholds(t *testing.T) {
	th := DefaultThresholds()
	require.NoError(t, th.Validate())

	assert.Equal(t, MasteryMastered, th.Classify(2.5))
	assert.Equal(t, MasteryLearning, th.Classify(2.49))
	assert.Equal(t, MasteryLearning, th.Classify(1.5))
	assert.Equal(t, MasteryNew, th.Classify(1.3))

	assert.ErrorIs(t, Thresholds{Mastered: 1, Learning: 2}.Validate(), ErrInvalidThresholds)
	assert.Equal(t, "learning", MasteryLearning.String())
}
