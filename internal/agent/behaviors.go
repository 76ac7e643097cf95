package agent

import "fmt"

// This file registers the handful of built-in behaviors every registry can
// load agents against out of the box. Each mirrors one of the reference
// scripts the Rust original ships under its own res/scripts (an
// intercept/reorder responder, a plain answering party, an outbound dialer,
// a digit-collecting party) translated into the BehaviorFunc shape.

func init() {
	RegisterBehavior("intercept", newInterceptBehavior)
	RegisterBehavior("answer", newAnswerBehavior)
	RegisterBehavior("caller", newCallerBehavior)
	RegisterBehavior("collector", newCollectorBehavior)
}

// --- intercept: plays a reason-specific tone/announcement, then hangs up.

func newInterceptBehavior(params map[string]any) (BehaviorFunc, error) {
	return func(h *ScriptHandle, resp Response) (Intent, Continuation, error) {
		switch h.State() {
		case StateIdle:
			return AcceptCall(), ThisAgent, nil
		case StateIncomingCall:
			snd := h.Caps().Sound()
			switch h.CallReason() {
			case ReasonNumberDisconnected:
				_ = snd.Play("intercept/vacant-code", 0, true)
			case ReasonOffHook:
				_ = snd.Play("intercept/off-hook-warning", 0, true)
			default:
				_ = snd.Play("intercept/generic", 0, true)
			}
			return StateEnded(StateCall), ThisAgent, nil
		case StateCall:
			return EndCall(), NextAgent, nil
		default:
			return Idle(), NextAgent, nil
		}
	}, nil
}

// --- answer: accepts any incoming call, stays connected until the host
// hangs up (signaled to the agent only indirectly, via the scheduler ending
// the call out-of-band), otherwise idles.

func newAnswerBehavior(params map[string]any) (BehaviorFunc, error) {
	return func(h *ScriptHandle, resp Response) (Intent, Continuation, error) {
		switch h.State() {
		case StateIdle:
			return Idle(), NextAgent, nil
		case StateIncomingCall:
			return AcceptCall(), ThisAgent, nil
		case StateCall:
			return Wait(), NextAgent, nil
		default:
			return Idle(), NextAgent, nil
		}
	}, nil
}

// --- caller: places an outgoing call to the host once, driven by a
// params["ring_for_ticks"] patience budget before giving up.

type callerState struct {
	ticksWaited int
	ringBudget  int
	done        bool
}

func newCallerBehavior(params map[string]any) (BehaviorFunc, error) {
	budget := 20
	if v, ok := params["ring_for_ticks"]; ok {
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("caller: ring_for_ticks must be a number")
		}
		budget = int(f)
	}
	st := &callerState{ringBudget: budget}

	return func(h *ScriptHandle, resp Response) (Intent, Continuation, error) {
		switch h.State() {
		case StateIdle:
			if st.done {
				return Idle(), NextAgent, nil
			}
			return CallUser(), ThisAgent, nil
		case StateOutgoingCall:
			if resp.Kind == ResponseLineBusy {
				st.done = true
				return StateEnded(StateIdle), NextAgent, nil
			}
			st.ticksWaited++
			if st.ticksWaited >= st.ringBudget {
				st.done = true
				return EndCall(), NextAgent, nil
			}
			return Wait(), NextAgent, nil
		case StateCall:
			return Wait(), NextAgent, nil
		default:
			return Idle(), NextAgent, nil
		}
	}, nil
}

// --- collector: reads digits one at a time until it has collected
// params["num_digits"] of them, then hangs up. Demonstrates the
// ReadDigit/Response negotiation loop (spec.md §7 "Intent vocabulary").

type collectorState struct {
	want       int
	collected  []rune
	readingOne bool
}

func newCollectorBehavior(params map[string]any) (BehaviorFunc, error) {
	n := 4
	if v, ok := params["num_digits"]; ok {
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("collector: num_digits must be a number")
		}
		n = int(f)
	}
	st := &collectorState{want: n}

	return func(h *ScriptHandle, resp Response) (Intent, Continuation, error) {
		switch h.State() {
		case StateIdle:
			return AcceptCall(), ThisAgent, nil
		case StateIncomingCall:
			return StateEnded(StateCall), ThisAgent, nil
		case StateCall:
			if resp.Kind == ResponseDigit {
				st.collected = append(st.collected, resp.Digit)
				st.readingOne = false
			}
			if len(st.collected) >= st.want {
				return EndCall(), NextAgent, nil
			}
			if !st.readingOne {
				st.readingOne = true
				return ReadDigit(), ThisAgent, nil
			}
			return Wait(), NextAgent, nil
		default:
			return Idle(), NextAgent, nil
		}
	}, nil
}
