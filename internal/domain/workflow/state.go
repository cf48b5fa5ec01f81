package workflow

// State represents a state in one of the engine's lifecycles. States are
// plain values; which states exist is decided by the builder configuring a
// particular machine.
type State string

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// Trigger represents an event that can cause a state transition
type Trigger string

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
