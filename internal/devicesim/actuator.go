package devicesim

// Actuator receives the playback machine's output level once per tick.
// Implementations map the level (0-100) onto whatever is attached:
// a PWM channel on real hardware, a log line here.
type Actuator interface {
	Apply(intensity int)
}

// LogActuator logs intensity changes. It suppresses repeats so a held
// step produces one line, not one per tick.
type LogActuator struct {
	logger Logger
	last   int
}

// NewLogActuator creates an actuator that logs through the given
// logger.
func NewLogActuator(logger Logger) *LogActuator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &LogActuator{logger: logger, last: -1}
}

// Apply logs the new intensity if it differs from the previous tick's.
func (a *LogActuator) Apply(intensity int) {
	if intensity == a.last {
		return
	}
	a.last = intensity
	a.logger.Debug("actuator output", "intensity", intensity)
}

// noopActuator discards output.
type noopActuator struct{}

func (noopActuator) Apply(int) {}
