package pattern

import "fmt"

// Intensity bounds for a vibration step.
const (
	// MinIntensity is the weakest step intensity (actuator off).
	MinIntensity = 0

	// MaxIntensity is the strongest step intensity (full drive).
	MaxIntensity = 100
)

// Emotion is a four-axis emotion vector. Axes are independent and do
// not need to sum to one. Values outside [0,1] are clamped before use.
type Emotion struct {
	Joy   float64 `json:"joy"`
	Fun   float64 `json:"fun"`
	Anger float64 `json:"anger"`
	Sad   float64 `json:"sad"`
}

// Clamp returns a copy with every axis forced into [0,1].
func (e Emotion) Clamp() Emotion {
	return Emotion{
		Joy:   clampAxis(e.Joy),
		Fun:   clampAxis(e.Fun),
		Anger: clampAxis(e.Anger),
		Sad:   clampAxis(e.Sad),
	}
}

func clampAxis(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// VibrationStep is a single intensity/duration pair within a pattern.
// Intensity is a percentage (0-100); duration is milliseconds.
type VibrationStep struct {
	Intensity  int `json:"intensity"`
	DurationMS int `json:"duration"`
}

// VibrationPattern is an ordered sequence of steps, the silent gap
// after each full pass (interval), and how many passes to make.
// RepeatCount zero means indefinite: the pattern loops until an
// explicit stop or a superseding pattern arrives.
type VibrationPattern struct {
	Steps       []VibrationStep `json:"steps"`
	IntervalMS  int             `json:"interval"`
	RepeatCount int             `json:"repeat_count"`
}

// Validate checks structural invariants and clamps step intensities
// into [0,100] in place. maxSteps bounds the step sequence length;
// zero or negative means unbounded.
//
// Clamping happens here, at acceptance, so a validated pattern can
// never fault mid-playback.
func (p *VibrationPattern) Validate(maxSteps int) error {
	if len(p.Steps) == 0 {
		return ErrEmptySteps
	}
	if maxSteps > 0 && len(p.Steps) > maxSteps {
		return fmt.Errorf("%w: %d steps, limit %d", ErrTooManySteps, len(p.Steps), maxSteps)
	}
	if p.IntervalMS < 0 {
		return ErrNegativeInterval
	}
	if p.RepeatCount < 0 {
		return ErrNegativeRepeat
	}

	for i := range p.Steps {
		if p.Steps[i].DurationMS < 0 {
			return fmt.Errorf("%w: step %d", ErrNegativeDuration, i)
		}
		if p.Steps[i].Intensity < MinIntensity {
			p.Steps[i].Intensity = MinIntensity
		}
		if p.Steps[i].Intensity > MaxIntensity {
			p.Steps[i].Intensity = MaxIntensity
		}
	}

	return nil
}

// DeepCopy creates an independent copy of the pattern. The step slice
// is cloned so modifications to the copy do not affect the original.
func (p *VibrationPattern) DeepCopy() *VibrationPattern {
	if p == nil {
		return nil
	}

	cpy := *p
	if p.Steps != nil {
		cpy.Steps = make([]VibrationStep, len(p.Steps))
		copy(cpy.Steps, p.Steps)
	}
	return &cpy
}

// TotalCycleMS returns the duration of one full pass through the steps
// including the trailing interval. Useful for progress estimates only;
// playback timing is driven per tick, never by this figure.
func (p *VibrationPattern) TotalCycleMS() int {
	total := p.IntervalMS
	for _, s := range p.Steps {
		total += s.DurationMS
	}
	return total
}
