// Package line implements the Phone Line State Machine (spec.md §4.D): the
// seven-state call-progress automaton, its real-time timers, and the
// routing algorithm driven by agent intents.
package line

import "fmt"

// State is one of the seven call-progress states a line occupies.
type State int

const (
	StateIdle State = iota
	StateIdleRinging
	StateDialTone
	StatePDD
	StateCallingOut
	StateConnected
	StateBusy
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateIdleRinging:
		return "IdleRinging"
	case StateDialTone:
		return "DialTone"
	case StatePDD:
		return "PDD"
	case StateCallingOut:
		return "CallingOut"
	case StateConnected:
		return "Connected"
	case StateBusy:
		return "Busy"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// validTransitions documents every transition spec.md §4.D's table
// authorizes. It is consulted only for logging/assertion purposes — setState
// (see machine.go) always computes the next state from first principles,
// never by table lookup, because several transitions are conditional on
// more than the (from, event) pair a simple table can express.
var validTransitions = map[State][]State{
	StateIdle:       {StateDialTone, StateIdleRinging},
	StateIdleRinging: {StateConnected, StateIdle},
	StateDialTone:   {StatePDD, StateIdle, StateCallingOut, StateBusy},
	StatePDD:        {StatePDD, StateCallingOut, StateBusy, StateIdle},
	StateCallingOut: {StateConnected, StateIdle, StateBusy},
	StateConnected:  {StateBusy, StateIdle, StateCallingOut},
	StateBusy:       {StateIdle},
}

// CanTransitionTo reports whether next appears in s's authorized successor
// set. Used only as a sanity assertion: a false result from this method
// where setState(next) was nonetheless called indicates a programming error, per
// spec.md §7 "line-machine internal invariant violations... abort the
// process."
func (s State) CanTransitionTo(next State) bool {
	for _, candidate := range validTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsIdleOrRinging reports membership in {Idle, IdleRinging}, the pair of
// states spec.md repeatedly singles out (digits/pulses ignored, hook-closure
// hangup suppressed, etc).
func (s State) IsIdleOrRinging() bool {
	return s == StateIdle || s == StateIdleRinging
}
