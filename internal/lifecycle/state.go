package lifecycle

// State is the lifecycle state of the model.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateAcquiring     State = "acquiring"
	StateValidating    State = "validating"
	StateLoading       State = "loading"
	StateReady         State = "ready"
	StateFailed        State = "failed"
)

var transitions = map[State][]State{
	StateUninitialized: {StateAcquiring},
	StateAcquiring:     {StateValidating, StateFailed, StateAcquiring},
	StateValidating:    {StateLoading, StateAcquiring, StateFailed},
	StateLoading:       {StateReady, StateFailed},
	StateFailed:        {StateAcquiring},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// InFlight reports whether a sequence is running in this state.
func (s State) InFlight() bool {
	return s == StateAcquiring || s == StateValidating || s == StateLoading
}

// Terminal reports whether the state only changes on an explicit trigger.
func (s State) Terminal() bool { return s == StateReady || s == StateFailed }
