package promo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var (
	windowStart = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2025, 6, 8, 23, 59, 59, 0, time.UTC)
)

func TestWindowActive(t *testing.T) {
	w := Window{Start: windowStart, End: windowEnd}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before start", windowStart.Add(-time.Second), false},
		{"exactly at start", windowStart, true},
		{"inside", windowStart.Add(72 * time.Hour), true},
		{"exactly at end", windowEnd, true},
		{"after end", windowEnd.Add(time.Second), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.Active(tt.now))
		})
	}
}

func TestWindowZeroNeverActive(t *testing.T) {
	var w Window
	assert.False(t, w.Active(time.Now()))
	assert.True(t, w.Valid())
}

func TestWindowInvertedNeverActive(t *testing.T) {
	w := Window{Start: windowEnd, End: windowStart}
	assert.False(t, w.Active(windowStart))
	assert.False(t, w.Valid())
}

func TestWindowSingleInstant(t *testing.T) {
	w := Window{Start: windowStart, End: windowStart}
	assert.True(t, w.Active(windowStart))
	assert.False(t, w.Active(windowStart.Add(time.Nanosecond)))
}

func TestEvaluatorTerms(t *testing.T) {
	eval := NewEvaluator(EvaluatorConfig{
		Window:         Window{Start: windowStart, End: windowEnd},
		PriceRegular:   "2990.00",
		PriceBonus:     "1.00",
		Currency:       "RUB",
		PlanDuration:   720 * time.Hour,
		BonusExtension: 168 * time.Hour,
	})

	inside := eval.Terms(windowStart.Add(time.Hour))
	assert.Equal(t, "1.00", inside.Price)
	assert.Equal(t, 888*time.Hour, inside.PlanDuration)
	assert.True(t, inside.BonusApplied)

	outside := eval.Terms(windowEnd.Add(time.Hour))
	assert.Equal(t, "2990.00", outside.Price)
	assert.Equal(t, 720*time.Hour, outside.PlanDuration)
	assert.False(t, outside.BonusApplied)
}

func TestEvaluatorSetWindow(t *testing.T) {
	eval := NewEvaluator(EvaluatorConfig{
		PriceRegular: "2990.00",
		PriceBonus:   "1.00",
		Currency:     "RUB",
		PlanDuration: 720 * time.Hour,
	})

	now := windowStart.Add(time.Hour)
	assert.False(t, eval.Terms(now).BonusApplied)

	eval.SetWindow(Window{Start: windowStart, End: windowEnd})
	assert.True(t, eval.Terms(now).BonusApplied)
}
