// Package promo decides whether the promotional pricing window applies and
// what plan terms follow from it.
package promo

import "time"

// Window is a closed interval of wall-clock time during which promotional
// terms apply. Both bounds are inclusive.
type Window struct {
	Start time.Time
	End   time.Time
}

// IsZero reports whether the window is unset.
func (w Window) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Valid reports whether the window bounds are ordered. A zero window is
// valid (it is simply never active).
func (w Window) Valid() bool {
	if w.IsZero() {
		return true
	}
	return !w.End.Before(w.Start)
}

// Active reports whether now falls inside the window, bounds included.
// A zero or inverted window is never active.
func (w Window) Active(now time.Time) bool {
	if w.IsZero() || w.End.Before(w.Start) {
		return false
	}
	return !now.Before(w.Start) && !now.After(w.End)
}

// Terms is the plan pricing and duration that apply at a point in time.
type Terms struct {
	Price        string
	Currency     string
	PlanDuration time.Duration
	BonusApplied bool
}

// Evaluator resolves plan terms from the configured window and prices.
type Evaluator struct {
	window         Window
	priceRegular   string
	priceBonus     string
	currency       string
	planDuration   time.Duration
	bonusExtension time.Duration
}

// EvaluatorConfig configures an Evaluator.
type EvaluatorConfig struct {
	Window         Window
	PriceRegular   string
	PriceBonus     string
	Currency       string
	PlanDuration   time.Duration
	BonusExtension time.Duration
}

// NewEvaluator creates an evaluator from static configuration.
func NewEvaluator(cfg EvaluatorConfig) *Evaluator {
	return &Evaluator{
		window:         cfg.Window,
		priceRegular:   cfg.PriceRegular,
		priceBonus:     cfg.PriceBonus,
		currency:       cfg.Currency,
		planDuration:   cfg.PlanDuration,
		bonusExtension: cfg.BonusExtension,
	}
}

// Window returns the currently configured window.
func (e *Evaluator) Window() Window {
	return e.window
}

// SetWindow replaces the window, e.g. after an admin override.
func (e *Evaluator) SetWindow(w Window) {
	e.window = w
}

// Terms returns the plan terms in effect at the given instant. Inside the
// window the bonus price applies and the plan duration is extended.
func (e *Evaluator) Terms(now time.Time) Terms {
	if e.window.Active(now) {
		return Terms{
			Price:        e.priceBonus,
			Currency:     e.currency,
			PlanDuration: e.planDuration + e.bonusExtension,
			BonusApplied: true,
		}
	}
	return Terms{
		Price:        e.priceRegular,
		Currency:     e.currency,
		PlanDuration: e.planDuration,
		BonusApplied: false,
	}
}
