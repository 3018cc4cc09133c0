package playback

import (
	"sync"
	"time"

	"github.com/FujiiNoritsugu/haptic-core/internal/pattern"
)

// State is the playback machine's coarse state.
type State string

// Machine states.
const (
	StateIdle    State = "idle"
	StatePlaying State = "playing"
	StateError   State = "error"
)

// Phase is a sub-state within Playing.
type Phase string

// Playing sub-phases.
const (
	// StepPhase drives the actuator at the current step's intensity.
	StepPhase Phase = "step"

	// IntervalPhase keeps the actuator off between pattern cycles.
	IntervalPhase Phase = "interval"
)

// Status is a snapshot of the machine published to observers. The
// step/repeat progress fields are meaningful only while IsPlaying;
// ErrorMessage only when State is StateError.
//
// Tick is the machine's monotonically increasing tick counter. Status
// consumers resolve out-of-order updates by last-write-wins on it.
type Status struct {
	State         State  `json:"device_state"`
	IsPlaying     bool   `json:"is_playing"`
	CurrentStep   int    `json:"current_step,omitempty"`
	TotalSteps    int    `json:"total_steps,omitempty"`
	CurrentRepeat int    `json:"current_repeat,omitempty"`
	TotalRepeats  int    `json:"total_repeats,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
	Tick          uint64 `json:"tick"`
}

// session is the transient playback state. It exists only while the
// machine is Playing and is discarded on stop, completion, error, or
// when a new pattern supersedes it.
type session struct {
	pattern    pattern.VibrationPattern
	stepIndex  int
	repeatIdx  int
	phase      Phase
	phaseStart time.Time
}

// OnChangeFunc observes status snapshots after every externally visible
// change (state, step, or repeat transition). Called outside the
// machine's lock; implementations must not call back into the machine
// synchronously if they re-enter from another goroutine.
type OnChangeFunc func(Status)

// Machine is the tick-driven playback state machine. All methods are
// safe for concurrent use; the machine is the sole writer of its
// session, everyone else reads published Status snapshots.
type Machine struct {
	mu          sync.Mutex
	state       State
	sess        *session
	pendingStop bool
	errMsg      string
	tick        uint64

	now      func() time.Time
	onChange OnChangeFunc
}

// NewMachine creates an idle playback machine.
func NewMachine() *Machine {
	return &Machine{
		state: StateIdle,
		now:   time.Now,
	}
}

// SetClock replaces the machine's time source. Intended for tests.
func (m *Machine) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// SetOnChange installs the status observer.
// Must be called before the machine starts ticking.
func (m *Machine) SetOnChange(fn OnChangeFunc) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Start accepts a validated pattern and begins playback at step 0.
// A pattern arriving while Playing supersedes the current session
// immediately: the old session is discarded without any completion
// signal. Starting from Error clears the fault.
//
// The pattern must already have passed acceptance validation
// (pattern.Validate); intensities are never re-checked at play time.
func (m *Machine) Start(p pattern.VibrationPattern) {
	m.mu.Lock()
	m.sess = &session{
		pattern:    *p.DeepCopy(),
		phase:      StepPhase,
		phaseStart: m.now(),
	}
	m.state = StatePlaying
	m.pendingStop = false
	m.errMsg = ""
	status := m.statusLocked()
	m.mu.Unlock()

	m.notify(status)
}

// Stop requests playback stop. The stop is honoured at the start of the
// next tick, ahead of any step-transition logic. Stopping an idle
// machine is a no-op; stopping from Error clears the fault.
func (m *Machine) Stop() {
	m.mu.Lock()
	if m.state == StateIdle {
		m.mu.Unlock()
		return
	}
	m.pendingStop = true
	m.mu.Unlock()
}

// Fault transitions the machine to Error with the given message.
// Playback halts; an explicit Stop or a new pattern clears it.
func (m *Machine) Fault(msg string) {
	m.mu.Lock()
	m.state = StateError
	m.errMsg = msg
	m.sess = nil
	m.pendingStop = false
	status := m.statusLocked()
	m.mu.Unlock()

	m.notify(status)
}

// Tick advances the machine against elapsed time. It must be called
// periodically while the machine is not Idle; the tick interval bounds
// timing resolution but never correctness, since phase starts carry
// over exactly.
//
// A pending stop is honoured first, before any elapsed-time logic.
func (m *Machine) Tick() {
	m.mu.Lock()
	m.tick++

	if m.pendingStop {
		m.pendingStop = false
		m.sess = nil
		m.state = StateIdle
		m.errMsg = ""
		status := m.statusLocked()
		m.mu.Unlock()
		m.notify(status)
		return
	}

	if m.state != StatePlaying || m.sess == nil {
		m.mu.Unlock()
		return
	}

	changed := m.advanceLocked(m.now())
	var status Status
	if changed {
		status = m.statusLocked()
	}
	m.mu.Unlock()

	if changed {
		m.notify(status)
	}
}

// advanceLocked walks the session forward while the current phase has
// expired. Multiple transitions can happen in one tick if the caller
// ticked slowly; phase starts advance by exact durations so timing
// never drifts. Returns true if anything externally visible changed.
func (m *Machine) advanceLocked(now time.Time) bool {
	changed := false

	// A pattern whose every duration is zero would otherwise spin this
	// loop forever when repeating indefinitely. Finite zero-duration
	// patterns complete immediately; indefinite ones sit in place until
	// stopped.
	if m.sess != nil && m.sess.pattern.TotalCycleMS() == 0 {
		if m.sess.pattern.RepeatCount == 0 {
			return false
		}
		m.sess = nil
		m.state = StateIdle
		return true
	}

	for {
		s := m.sess
		if s == nil {
			return changed
		}

		var phaseDur time.Duration
		if s.phase == StepPhase {
			phaseDur = time.Duration(s.pattern.Steps[s.stepIndex].DurationMS) * time.Millisecond
		} else {
			phaseDur = time.Duration(s.pattern.IntervalMS) * time.Millisecond
		}

		if now.Sub(s.phaseStart) < phaseDur {
			return changed
		}

		s.phaseStart = s.phaseStart.Add(phaseDur)
		changed = true

		if s.phase == StepPhase && s.stepIndex+1 < len(s.pattern.Steps) {
			s.stepIndex++
			continue
		}

		if s.phase == StepPhase && s.pattern.IntervalMS > 0 {
			s.phase = IntervalPhase
			continue
		}

		// End of a full cycle: either the step phase of the last step
		// with no interval, or the interval phase itself.
		s.repeatIdx++
		if s.pattern.RepeatCount != 0 && s.repeatIdx >= s.pattern.RepeatCount {
			m.sess = nil
			m.state = StateIdle
			return true
		}

		s.stepIndex = 0
		s.phase = StepPhase
	}
}

// Status returns a snapshot of the machine.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// CurrentIntensity returns the actuator drive level for the present
// instant: the active step's intensity during a StepPhase, zero
// otherwise. Firmware uses this to set the motor output each loop.
func (m *Machine) CurrentIntensity() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StatePlaying || m.sess == nil || m.sess.phase != StepPhase {
		return 0
	}
	return m.sess.pattern.Steps[m.sess.stepIndex].Intensity
}

// statusLocked builds a Status snapshot. Caller must hold m.mu.
func (m *Machine) statusLocked() Status {
	st := Status{
		State:     m.state,
		IsPlaying: m.state == StatePlaying,
		Tick:      m.tick,
	}

	if m.state == StateError {
		st.ErrorMessage = m.errMsg
	}

	if m.sess != nil {
		st.CurrentStep = m.sess.stepIndex
		st.TotalSteps = len(m.sess.pattern.Steps)
		st.CurrentRepeat = m.sess.repeatIdx
		st.TotalRepeats = m.sess.pattern.RepeatCount
	}

	return st
}

func (m *Machine) notify(status Status) {
	if m.onChange != nil {
		m.onChange(status)
	}
}
