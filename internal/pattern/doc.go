// Package pattern defines the vibration pattern model and the emotion
// compiler that maps an emotion vector onto a playable pattern.
//
// The model is transport-neutral: intensity is a percentage (0-100) and
// durations are milliseconds. Device-native amplitude ranges (PWM 0-255
// and the like) are a firmware concern and never appear here.
//
// Compilation is pure and deterministic. The same emotion vector and
// category always yield the same pattern, so callers can cache or replay
// compiled patterns freely.
package pattern
