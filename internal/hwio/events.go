package hwio

import "fmt"

// InputEventKind tags the variant carried by an InputEvent.
type InputEventKind int

const (
	EventHookState InputEventKind = iota
	EventRotaryDialRest
	EventRotaryDialPulse
	EventDigit
	EventCoin
)

// InputEvent is a raw edge delivered from the hardware collaborator over
// the single-producer input channel. Exactly one of the typed fields is
// meaningful, selected by Kind.
type InputEvent struct {
	Kind      InputEventKind
	OnHook    bool // EventHookState
	Resting   bool // EventRotaryDialRest
	Digit     rune // EventDigit
	CoinCents uint // EventCoin
}

func HookState(onHook bool) InputEvent { return InputEvent{Kind: EventHookState, OnHook: onHook} }
func RotaryDialRest(resting bool) InputEvent {
	return InputEvent{Kind: EventRotaryDialRest, Resting: resting}
}
func RotaryDialPulse() InputEvent { return InputEvent{Kind: EventRotaryDialPulse} }
func Digit(d rune) InputEvent     { return InputEvent{Kind: EventDigit, Digit: d} }
func Coin(cents uint) InputEvent  { return InputEvent{Kind: EventCoin, CoinCents: cents} }

// String implements fmt.Stringer, mostly for trace logging.
func (e InputEvent) String() string {
	switch e.Kind {
	case EventHookState:
		return fmt.Sprintf("HookState(%v)", e.OnHook)
	case EventRotaryDialRest:
		return fmt.Sprintf("RotaryDialRest(%v)", e.Resting)
	case EventRotaryDialPulse:
		return "RotaryDialPulse"
	case EventDigit:
		return fmt.Sprintf("Digit(%q)", e.Digit)
	case EventCoin:
		return fmt.Sprintf("Coin(%d)", e.CoinCents)
	default:
		return "InputEvent(?)"
	}
}

// OutputSignal is a message sent to the hardware collaborator over the
// single-producer output channel.
type OutputSignal struct {
	Ring *RingPattern // nil stops ringing; non-nil begins/replaces the pattern
}

// RingSignal begins or replaces the current ring pattern.
func RingSignal(p RingPattern) OutputSignal { return OutputSignal{Ring: &p} }

// StopRingSignal stops ringing.
func StopRingSignal() OutputSignal { return OutputSignal{Ring: nil} }
