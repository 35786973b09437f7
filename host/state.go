package host

// HostState is the controller-level state.
type HostState uint8

// Host states.
const (
	HostNoVbus HostState = iota
	HostDetached
	HostAttached
	HostError
)

// String returns the state name.
func (s HostState) String() string {
	switch s {
	case HostNoVbus:
		return "NoVbus"
	case HostDetached:
		return "Detached"
	case HostAttached:
		return "Attached"
	case HostError:
		return "Error"
	default:
		return "Unknown"
	}
}

// TaskState is the sub-state of HostAttached.
type TaskState uint8

// Attached sub-states.
const (
	TaskConfiguring TaskState = iota
	TaskRunning
	TaskError
)

// String returns the sub-state name.
func (s TaskState) String() string {
	switch s {
	case TaskConfiguring:
		return "Configuring"
	case TaskRunning:
		return "Running"
	case TaskError:
		return "Error"
	default:
		return "Unknown"
	}
}

// State is the host state. Task is meaningful only when Host is HostAttached
// and is zero otherwise.
type State struct {
	Host HostState
	Task TaskState
}

// Commonly used states.
var (
	StateNoVbus      = State{Host: HostNoVbus}
	StateDetached    = State{Host: HostDetached}
	StateConfiguring = State{Host: HostAttached, Task: TaskConfiguring}
	StateRunning     = State{Host: HostAttached, Task: TaskRunning}
	StateTaskError   = State{Host: HostAttached, Task: TaskError}
	StateError       = State{Host: HostError}
)

// String returns the state, with the sub-state in parentheses when attached.
func (s State) String() string {
	if s.Host == HostAttached {
		return s.Host.String() + "(" + s.Task.String() + ")"
	}
	return s.Host.String()
}

// Attached reports whether a device is attached.
func (s State) Attached() bool { return s.Host == HostAttached }

// Event drives the host state machine.
type Event uint8

// Events.
const (
	EventVbusPresent Event = iota
	EventVbusLost
	EventConnect
	EventDisconnect
	EventEnumerationSucceeded
	EventEnumerationFailed
)

// AllEvents lists every event in declaration order.
var AllEvents = []Event{
	EventVbusPresent,
	EventVbusLost,
	EventConnect,
	EventDisconnect,
	EventEnumerationSucceeded,
	EventEnumerationFailed,
}

// String returns the event name.
func (e Event) String() string {
	switch e {
	case EventVbusPresent:
		return "VbusPresent"
	case EventVbusLost:
		return "VbusLost"
	case EventConnect:
		return "Connect"
	case EventDisconnect:
		return "Disconnect"
	case EventEnumerationSucceeded:
		return "EnumerationSucceeded"
	case EventEnumerationFailed:
		return "EnumerationFailed"
	default:
		return "Unknown"
	}
}

// Transition returns the state that follows s on event e. Pairs without a
// transition leave s unchanged.
func Transition(s State, e Event) State {
	switch e {
	case EventVbusLost:
		return StateNoVbus
	case EventVbusPresent:
		if s.Host == HostNoVbus {
			return StateDetached
		}
	case EventConnect:
		if s.Host == HostDetached {
			return StateConfiguring
		}
	case EventDisconnect:
		if s.Host == HostAttached {
			return StateDetached
		}
	case EventEnumerationSucceeded:
		if s == StateConfiguring {
			return StateRunning
		}
	case EventEnumerationFailed:
		if s == StateConfiguring {
			return StateTaskError
		}
	}
	return s
}

// requestEvents maps a state request popped from the event channel onto the
// events that move cur towards it. With stale entries discarded, intermediate
// transitions the lost entries carried are replayed first.
func requestEvents(cur, req State, stale int) []Event {
	switch req.Host {
	case HostNoVbus:
		return []Event{EventVbusLost}
	case HostDetached:
		if cur.Host == HostNoVbus {
			return []Event{EventVbusPresent}
		}
		return []Event{EventDisconnect}
	case HostAttached:
		if stale == 0 {
			return []Event{EventConnect}
		}
		switch cur.Host {
		case HostNoVbus:
			return []Event{EventVbusPresent, EventConnect}
		case HostAttached:
			return []Event{EventDisconnect, EventConnect}
		}
		return []Event{EventConnect}
	}
	return nil
}
