// Package playback implements the tick-driven vibration playback state
// machine. One machine conceptually runs on each physical device; the
// host mirrors its published status for display but never drives
// playback itself.
//
// The machine is time-driven, not wall-clock-blocking: each Tick
// compares elapsed time against the current phase's duration and
// advances deterministically. Nothing inside a tick blocks, so one
// scheduler loop can drive many machines without any of them delaying
// another.
//
// State transitions:
//
//	Idle → Playing     (valid pattern accepted)
//	Playing → Idle     (completion or explicit stop)
//	Playing → Error    (hardware fault reported)
//	Error → Idle       (explicit stop)
//	Error → Playing    (new valid pattern accepted)
//
// Playing decomposes into a StepPhase per step and an IntervalPhase
// after the last step of each cycle.
package playback
