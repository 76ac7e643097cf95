// Package scheduler implements the Tick Loop (spec.md §4.F): draining
// hardware input, advancing the Line State Machine under its timers, and
// polling every non-suspended agent with intent/response negotiation.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oldline/exchange/internal/agent"
	"github.com/oldline/exchange/internal/hwio"
	"github.com/oldline/exchange/internal/line"
	"github.com/oldline/exchange/internal/registry"
	"github.com/oldline/exchange/internal/sound"
)

// maxSameAgentRetries bounds same-tick ThisAgent continuations and
// ReadDigit/CallUser re-invocations, the livelock-prevention ceiling
// grounded on the original's update_agents retry cap (spec.md §4.F step 3,
// SPEC_FULL.md "Livelock-prevention retry ceiling").
const maxSameAgentRetries = 64

// Scheduler is the single-threaded cooperative tick loop driving one line.
type Scheduler struct {
	reg        *registry.Registry
	machine    *line.Machine
	normalizer *hwio.Normalizer
	in         <-chan hwio.InputEvent
	snd        sound.Engine
	log        *slog.Logger
	debugPanic bool
}

// New constructs a Scheduler wired to its collaborators.
func New(reg *registry.Registry, machine *line.Machine, normalizer *hwio.Normalizer, in <-chan hwio.InputEvent, snd sound.Engine, debugPanic bool, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{reg: reg, machine: machine, normalizer: normalizer, in: in, snd: snd, debugPanic: debugPanic, log: log}
}

// Run drives the tick loop at the given period until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.Tick(now)
		}
	}
}

// Tick executes one full cycle: drain inputs, advance line state, poll
// agents. Exported so tests and alternate host loops can drive it directly.
func (s *Scheduler) Tick(now time.Time) {
	tickID := uuid.New()
	s.log.Debug("scheduler: tick", "tick_id", tickID)

	s.drainInputs(now)

	for _, n := range s.normalizer.Tick(now, s.machine.LineContext()) {
		s.machine.ApplyNormalized(n, now)
	}
	s.machine.AdvanceTimers(now)
	if s.machine.State() == line.StateIdle {
		s.normalizer.Reset()
	}

	s.pollAgents(now)
}

// drainInputs implements step 1: non-blocking receive from the hardware
// channel until empty, each event applied synchronously. A closed channel
// is treated as "no new events" (spec.md §7).
func (s *Scheduler) drainInputs(now time.Time) {
	for {
		select {
		case ev, ok := <-s.in:
			if !ok {
				return
			}
			s.applyInput(ev, now)
		default:
			return
		}
	}
}

func (s *Scheduler) applyInput(ev hwio.InputEvent, now time.Time) {
	ctx := s.machine.LineContext()
	switch ev.Kind {
	case hwio.EventHookState:
		s.machine.SetHookMute(ev.OnHook, s.machine.Context().SwitchHookLocked)
		for _, n := range s.normalizer.HandleHookState(ev.OnHook, false, now, ctx) {
			s.machine.ApplyNormalized(n, now)
		}
	case hwio.EventRotaryDialRest:
		for _, n := range s.normalizer.HandleRotaryRest(ev.Resting, now, ctx) {
			s.machine.ApplyNormalized(n, now)
		}
	case hwio.EventRotaryDialPulse:
		s.normalizer.HandleRotaryPulse(now, ctx)
	case hwio.EventDigit:
		for _, n := range s.normalizer.HandleDigit(ev.Digit, ctx) {
			s.machine.ApplyNormalized(n, now)
		}
	case hwio.EventCoin:
		for _, n := range s.normalizer.HandleCoin(ev.CoinCents) {
			s.machine.ApplyNormalized(n, now)
		}
	}
}

// pollAgents implements step 3: poll every non-suspended agent in registry
// order with intent/response negotiation.
func (s *Scheduler) pollAgents(now time.Time) {
	s.reg.Each(func(id agent.ID, h agent.Handle) bool {
		if h.Suspended() {
			return true
		}
		s.pollOne(id, h, now)
		return true
	})
}

func (s *Scheduler) pollOne(id agent.ID, h agent.Handle, now time.Time) {
	resp := agent.NoneResponse
	callUserRetried := false

	for attempt := 0; attempt < maxSameAgentRetries; attempt++ {
		intent, cont, err := h.Tick(resp)
		if err != nil {
			s.suspend(id, h, err)
			return
		}

		nextResp, readDigitAgain := s.dispatch(id, h, intent, now)
		resp = nextResp

		if intent.Kind == agent.IntentCallUser && resp.Kind == agent.ResponseLineBusy {
			if callUserRetried {
				return // at most one retry per tick per agent
			}
			callUserRetried = true
			continue
		}

		if readDigitAgain {
			continue
		}

		if cont == agent.ThisAgent {
			resp = agent.NoneResponse
			continue
		}
		return
	}
	s.log.Warn("scheduler: agent exceeded retry ceiling this tick, moving on", "agent_id", id)
}

// dispatch applies one intent to the Line State Machine per spec.md §4.D
// and returns the Response to feed back on the next Tick call, plus whether
// a ReadDigit intent resolved a digit and should be immediately re-invoked.
func (s *Scheduler) dispatch(id agent.ID, h agent.Handle, intent agent.Intent, now time.Time) (agent.Response, bool) {
	switch intent.Kind {
	case agent.IntentIdle, agent.IntentWait:
		return agent.NoneResponse, false

	case agent.IntentAcceptCall:
		s.machine.AcceptCall(now)
		return agent.NoneResponse, false

	case agent.IntentEndCall:
		switch s.machine.State() {
		case line.StateCallingOut:
			s.machine.EndCallFromConnectingAgent(now)
		case line.StateConnected:
			s.machine.EndCallFromConnectedAgent(now)
		case line.StateIdleRinging:
			s.machine.EndCallFromRinging(now)
		}
		return agent.NoneResponse, false

	case agent.IntentCallUser:
		if s.machine.TryCallUser(id, now) {
			return agent.NoneResponse, false
		}
		return agent.LineBusyResponse, false

	case agent.IntentReadDigit:
		if d, ok := s.machine.PopDialedDigit(); ok {
			return agent.DigitResponse(d), true
		}
		return agent.NoneResponse, false

	case agent.IntentForwardCall:
		s.machine.ForwardCall(intent.ForwardTarget, now)
		return agent.NoneResponse, false

	case agent.IntentForwardCallToID:
		s.machine.ForwardCallToID(intent.ForwardAgentID, now)
		return agent.NoneResponse, false

	case agent.IntentStateEnded:
		s.machine.AgentStateEnded(intent.EndedState, now)
		return agent.NoneResponse, false

	default:
		return agent.NoneResponse, false
	}
}

func (s *Scheduler) suspend(id agent.ID, h agent.Handle, err error) {
	if s.debugPanic {
		s.snd.PlayPanicTone()
	}
	s.log.Error("scheduler: agent runtime error, suspending", "agent_id", id, "error", &agent.RuntimeError{AgentName: h.Metadata().Name, Err: err})
	h.SetSuspended(true)
}
