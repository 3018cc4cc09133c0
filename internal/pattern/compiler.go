package pattern

import (
	"math"
	"strings"
)

// Category identifies a step-shape profile. The four categories follow
// the classical kidoairaku grouping; the kanji forms are accepted as
// aliases on input.
type Category string

// Recognised pattern categories.
const (
	CategoryJoy      Category = "joy"      // 喜: rhythmic light pulses
	CategoryAnger    Category = "anger"    // 怒: sharp rapid bursts
	CategorySorrow   Category = "sorrow"   // 哀: slow weak waves
	CategoryPleasure Category = "pleasure" // 楽: melodic rise and fall
)

// kanjiAliases maps single-character category names onto their
// canonical forms.
var kanjiAliases = map[string]Category{
	"喜": CategoryJoy,
	"怒": CategoryAnger,
	"哀": CategorySorrow,
	"楽": CategoryPleasure,
}

// significanceThreshold is the minimum axis value for an emotion to
// count as dominant when no category is given. Below it on every axis
// the compiler emits a neutral pulse.
const significanceThreshold = 0.4

// maxLevel is the top of the internal intensity scale. Each axis value
// in [0,1] maps onto a discrete level in [0,maxLevel] which the
// profiles use to pick their strength band.
const maxLevel = 5

// Compiler maps emotion vectors onto vibration patterns. It is
// stateless and safe for concurrent use.
type Compiler struct{}

// NewCompiler creates a pattern compiler.
func NewCompiler() *Compiler {
	return &Compiler{}
}

// Compile produces the pattern for an emotion vector and an optional
// category. Compilation never fails: out-of-range axis values are
// clamped, unknown categories fall back to the joy profile, and an
// emotion with no significant axis yields a single neutral pulse.
//
// When category is non-empty it selects the profile and the matching
// axis supplies the strength. When empty, the strongest axis at or
// above the significance threshold selects both.
func (c *Compiler) Compile(emotion Emotion, category string) VibrationPattern {
	emotion = emotion.Clamp()

	if category != "" {
		cat := normaliseCategory(category)
		return profileFor(cat, levelForCategory(cat, emotion))
	}

	axis, value, ok := dominantAxis(emotion)
	if !ok {
		return neutralPattern()
	}
	return profileFor(axisCategory(axis), level(value))
}

// normaliseCategory resolves kanji aliases and case folding. Unknown
// names map to joy, matching the original firmware behaviour.
func normaliseCategory(raw string) Category {
	if cat, ok := kanjiAliases[raw]; ok {
		return cat
	}
	switch Category(strings.ToLower(raw)) {
	case CategoryJoy, CategoryAnger, CategorySorrow, CategoryPleasure:
		return Category(strings.ToLower(raw))
	default:
		return CategoryJoy
	}
}

// levelForCategory picks the axis that feeds a category's strength.
func levelForCategory(cat Category, e Emotion) int {
	switch cat {
	case CategoryJoy:
		return level(e.Joy)
	case CategoryAnger:
		return level(e.Anger)
	case CategorySorrow:
		return level(e.Sad)
	case CategoryPleasure:
		return level(e.Fun)
	default:
		return level((e.Joy + e.Fun + e.Anger + e.Sad) / 4)
	}
}

// level maps a clamped axis value onto the discrete [0,maxLevel] scale.
func level(v float64) int {
	return int(math.Round(v * maxLevel))
}

// dominantAxis returns the strongest axis at or above the significance
// threshold. Ties resolve in joy, fun, anger, sad order so compilation
// stays deterministic.
func dominantAxis(e Emotion) (axis string, value float64, ok bool) {
	axes := []struct {
		name  string
		value float64
	}{
		{"joy", e.Joy},
		{"fun", e.Fun},
		{"anger", e.Anger},
		{"sad", e.Sad},
	}

	for _, a := range axes {
		if a.value >= significanceThreshold && a.value > value {
			axis = a.name
			value = a.value
			ok = true
		}
	}
	return axis, value, ok
}

// axisCategory maps an emotion axis onto its pattern category.
func axisCategory(axis string) Category {
	switch axis {
	case "fun":
		return CategoryPleasure
	case "anger":
		return CategoryAnger
	case "sad":
		return CategorySorrow
	default:
		return CategoryJoy
	}
}

func profileFor(cat Category, lvl int) VibrationPattern {
	switch cat {
	case CategoryAnger:
		return angerPattern(lvl)
	case CategorySorrow:
		return sorrowPattern(lvl)
	case CategoryPleasure:
		return pleasurePattern(lvl)
	default:
		return joyPattern(lvl)
	}
}

// joyPattern: rhythmic, light, upbeat. Three pulses with a slight lift
// in the middle; stronger emotion adds repeats and intensity.
func joyPattern(lvl int) VibrationPattern {
	intensity := 60
	repeats := 3

	switch {
	case lvl >= 4:
		intensity = 80
		repeats = 5
	case lvl <= 1:
		intensity = 40
		repeats = 2
	}

	return VibrationPattern{
		Steps: []VibrationStep{
			{Intensity: intensity, DurationMS: 200},
			{Intensity: intensity + 10, DurationMS: 200},
			{Intensity: intensity, DurationMS: 200},
		},
		IntervalMS:  100,
		RepeatCount: repeats,
	}
}

// angerPattern: strong, short, rapid bursts. Stronger emotion tightens
// the interval and drives intensity to the cap.
func angerPattern(lvl int) VibrationPattern {
	intensity := 90
	interval := 50

	switch {
	case lvl >= 4:
		intensity = 100
		interval = 30
	case lvl <= 1:
		intensity = 70
		interval = 80
	}

	accent := intensity + 10
	if accent > MaxIntensity {
		accent = MaxIntensity
	}

	return VibrationPattern{
		Steps: []VibrationStep{
			{Intensity: intensity, DurationMS: 100},
			{Intensity: accent, DurationMS: 80},
			{Intensity: intensity, DurationMS: 100},
			{Intensity: accent, DurationMS: 80},
		},
		IntervalMS:  interval,
		RepeatCount: 4,
	}
}

// sorrowPattern: weak, slow, prolonged. Emotion strength stretches the
// step durations rather than the amplitude.
func sorrowPattern(lvl int) VibrationPattern {
	duration := 500

	switch {
	case lvl >= 4:
		duration = 700
	case lvl <= 1:
		duration = 300
	}

	return VibrationPattern{
		Steps: []VibrationStep{
			{Intensity: 40, DurationMS: duration},
			{Intensity: 30, DurationMS: duration + 100},
		},
		IntervalMS:  300,
		RepeatCount: 2,
	}
}

// pleasurePattern: medium, melodic rise and fall. Emotion strength
// lifts the crest of the wave.
func pleasurePattern(lvl int) VibrationPattern {
	crest := 60

	switch {
	case lvl >= 4:
		crest = 70
	case lvl <= 1:
		crest = 50
	}

	return VibrationPattern{
		Steps: []VibrationStep{
			{Intensity: 40, DurationMS: 250},
			{Intensity: 50, DurationMS: 300},
			{Intensity: crest, DurationMS: 350},
			{Intensity: 50, DurationMS: 300},
			{Intensity: 40, DurationMS: 250},
		},
		IntervalMS:  150,
		RepeatCount: 3,
	}
}

// neutralPattern is the fallback when no emotion axis is significant:
// one gentle pulse so the caller still gets tactile confirmation.
func neutralPattern() VibrationPattern {
	return VibrationPattern{
		Steps:       []VibrationStep{{Intensity: 30, DurationMS: 300}},
		IntervalMS:  200,
		RepeatCount: 1,
	}
}
