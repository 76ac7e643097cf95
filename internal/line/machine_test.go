package line

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/oldline/exchange/internal/agent"
	"github.com/oldline/exchange/internal/hwio"
	"github.com/oldline/exchange/internal/sound"
	"github.com/oldline/exchange/internal/toll"
)

// fakeHandle is a minimal agent.Handle stand-in for exercising the Line
// State Machine without a real scripted agent.
type fakeHandle struct {
	meta      agent.Metadata
	id        agent.ID
	state     agent.State
	reason    agent.CallReason
	suspended bool
}

func (h *fakeHandle) Metadata() agent.Metadata         { return h.meta }
func (h *fakeHandle) ID() agent.ID                     { return h.id }
func (h *fakeHandle) SetID(id agent.ID)                { h.id = id }
func (h *fakeHandle) Start() error                     { return nil }
func (h *fakeHandle) OnLoad(string) error              { return nil }
func (h *fakeHandle) Tick(agent.Response) (agent.Intent, agent.Continuation, error) {
	return agent.Idle(), agent.NextAgent, nil
}
func (h *fakeHandle) TransitionState(s agent.State) error { h.state = s; return nil }
func (h *fakeHandle) SetCallReason(r agent.CallReason)    { h.reason = r }
func (h *fakeHandle) State() agent.State                  { return h.state }
func (h *fakeHandle) Suspended() bool                     { return h.suspended }
func (h *fakeHandle) SetSuspended(v bool)                 { h.suspended = v }
func (h *fakeHandle) OnUnload() error                     { return nil }

// fakeResolver is a minimal line.Resolver backed by an in-memory map,
// standing in for the Agent Registry (component B).
type fakeResolver struct {
	byID      map[agent.ID]agent.Handle
	byNumber  map[string]agent.ID
	byName    map[string]agent.ID
	icpt      agent.ID
	hasIcpt   bool
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		byID:     make(map[agent.ID]agent.Handle),
		byNumber: make(map[string]agent.ID),
		byName:   make(map[string]agent.ID),
	}
}

func (r *fakeResolver) add(id agent.ID, number, name string, role agent.Role, customPrice *int) *fakeHandle {
	h := &fakeHandle{meta: agent.Metadata{Name: name, PhoneNumber: number, Role: role, CustomPrice: customPrice}, id: id}
	r.byID[id] = h
	if number != "" {
		r.byNumber[number] = id
	}
	if name != "" {
		r.byName[name] = id
	}
	if role == agent.RoleIntercept && !r.hasIcpt {
		r.icpt = id
		r.hasIcpt = true
	}
	return h
}

func (r *fakeResolver) ResolveNumber(number string) (agent.ID, bool) { id, ok := r.byNumber[number]; return id, ok }
func (r *fakeResolver) ResolveName(name string) (agent.ID, bool)     { id, ok := r.byName[name]; return id, ok }
func (r *fakeResolver) InterceptAgent() (agent.ID, bool)             { return r.icpt, r.hasIcpt }
func (r *fakeResolver) Handle(id agent.ID) (agent.Handle, bool)      { h, ok := r.byID[id]; return h, ok }

// fakeSound is a no-op sound.Engine recording nothing beyond what tests
// need; every call is a cheap stub satisfying the interface.
type fakeSound struct{}

func (fakeSound) Play(string, sound.Channel, bool, sound.PlayOptions) error { return nil }
func (fakeSound) Stop(sound.Channel)                                       {}
func (fakeSound) StopAll()                                                 {}
func (fakeSound) StopAllExcept(sound.Channel)                              {}
func (fakeSound) StopAllNonsignal()                                        {}
func (fakeSound) ChannelBusy(sound.Channel) bool                           { return false }
func (fakeSound) SetMuted(sound.Channel, bool)                             {}
func (fakeSound) SetVolume(sound.Channel, float64)                         {}
func (fakeSound) Fade(sound.Channel, float64, float64)                     {}
func (fakeSound) PlayDialTone()                                            {}
func (fakeSound) PlayBusyTone()                                            {}
func (fakeSound) PlayFastBusyTone()                                        {}
func (fakeSound) PlayRingbackTone()                                        {}
func (fakeSound) PlayOffHookTone()                                         {}
func (fakeSound) PlayPanicTone()                                           {}
func (fakeSound) PlaySpecialInfo(sound.SpecialInfoTone)                    {}
func (fakeSound) PlayDTMF(rune, float64, float64) error                    { return nil }

func testMachine(t *testing.T, cfg Config, resolver *fakeResolver) (*Machine, chan hwio.OutputSignal) {
	t.Helper()
	out := make(chan hwio.OutputSignal, 8)
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 100}))
	m := New(cfg, resolver, fakeSound{}, out, log)
	return m, out
}

func baseConfig() Config {
	return Config{
		PDD:                500 * time.Millisecond,
		OffHookDelay:        10 * time.Second,
		AllowIncomingCalls:  true,
		DefaultRingPattern:  hwio.RingPattern{Steps: []hwio.RingStep{{Kind: hwio.RingEnd}}},
	}
}

func dial(m *Machine, now time.Time, digits string) time.Time {
	for _, d := range digits {
		m.ApplyNormalized(hwio.Normalized{Kind: hwio.NormDigit, Digit: d}, now)
	}
	return now
}

// Scenario 1 (spec.md §8): successful rotary call routes to the dialed agent.
func TestRouteToDialedAgent(t *testing.T) {
	resolver := newFakeResolver()
	resolver.add(0, "", "intercept", agent.RoleIntercept, nil)
	alice := resolver.add(1, "100", "alice", agent.RoleNormal, nil)
	resolver.add(2, "200", "bob", agent.RoleNormal, nil)

	m, _ := testMachine(t, baseConfig(), resolver)
	now := time.Unix(0, 0)

	m.ApplyNormalized(hwio.Normalized{Kind: hwio.NormPickUp}, now)
	if m.State() != StateDialTone {
		t.Fatalf("State() after pickup = %v, want DialTone", m.State())
	}

	now = dial(m, now, "100")
	if m.State() != StatePDD {
		t.Fatalf("State() after dialing = %v, want PDD", m.State())
	}

	now = now.Add(600 * time.Millisecond)
	m.AdvanceTimers(now)

	if m.State() != StateCallingOut {
		t.Fatalf("State() after PDD expiry = %v, want CallingOut", m.State())
	}
	if m.Context().OtherParty == nil || *m.Context().OtherParty != agent.ID(1) {
		t.Fatalf("OtherParty = %v, want alice (1)", m.Context().OtherParty)
	}
	if m.Context().CalledNumber != "100" {
		t.Fatalf("CalledNumber = %q, want \"100\"", m.Context().CalledNumber)
	}
	if alice.state != agent.StateIncomingCall {
		t.Fatalf("alice.state = %v, want IncomingCall", alice.state)
	}
	if alice.reason != agent.ReasonUserInit {
		t.Fatalf("alice.reason = %v, want UserInit", alice.reason)
	}
}

// Scenario 2: an unresolvable number routes to the pinned intercept agent
// with reason NumberDisconnected.
func TestUnroutedNumberGoesToIntercept(t *testing.T) {
	resolver := newFakeResolver()
	icpt := resolver.add(0, "", "intercept", agent.RoleIntercept, nil)

	m, _ := testMachine(t, baseConfig(), resolver)
	now := time.Unix(0, 0)
	m.ApplyNormalized(hwio.Normalized{Kind: hwio.NormPickUp}, now)
	now = dial(m, now, "999")
	now = now.Add(600 * time.Millisecond)
	m.AdvanceTimers(now)

	if m.State() != StateCallingOut {
		t.Fatalf("State() = %v, want CallingOut (routed to intercept)", m.State())
	}
	if icpt.reason != agent.ReasonNumberDisconnected {
		t.Fatalf("intercept.reason = %v, want NumberDisconnected", icpt.reason)
	}
}

// Unresolvable number with no intercept agent loaded falls back to Busy.
func TestUnroutedNumberNoInterceptGoesBusy(t *testing.T) {
	resolver := newFakeResolver()
	m, _ := testMachine(t, baseConfig(), resolver)
	now := time.Unix(0, 0)
	m.ApplyNormalized(hwio.Normalized{Kind: hwio.NormPickUp}, now)
	now = dial(m, now, "999")
	now = now.Add(600 * time.Millisecond)
	m.AdvanceTimers(now)

	if m.State() != StateBusy {
		t.Fatalf("State() = %v, want Busy", m.State())
	}
}

// Scenario 3: off-hook with no digits dialed for off_hook_delay routes to
// intercept with reason OffHook.
func TestOffHookTimeoutRoutesToIntercept(t *testing.T) {
	resolver := newFakeResolver()
	icpt := resolver.add(0, "", "intercept", agent.RoleIntercept, nil)

	cfg := baseConfig()
	cfg.OffHookDelay = 10 * time.Second
	m, _ := testMachine(t, cfg, resolver)
	now := time.Unix(0, 0)
	m.ApplyNormalized(hwio.Normalized{Kind: hwio.NormPickUp}, now)

	now = now.Add(10*time.Second + 100*time.Millisecond)
	m.AdvanceTimers(now)

	if m.State() != StateCallingOut {
		t.Fatalf("State() = %v, want CallingOut (intercept)", m.State())
	}
	if icpt.reason != agent.ReasonOffHook {
		t.Fatalf("intercept.reason = %v, want OffHook", icpt.reason)
	}
}

// Scenario 4: payphone underpayment stays in PDD awaiting deposit; a
// follow-up coin deposit that covers the rate then routes the call.
func TestPayphoneUnderpaymentThenPay(t *testing.T) {
	resolver := newFakeResolver()
	resolver.add(0, "200", "bob", agent.RoleNormal, nil)

	cfg := baseConfig()
	cfg.Payphone = toll.Config{Enabled: true, StandardCallRateCents: 25}
	m, _ := testMachine(t, cfg, resolver)
	now := time.Unix(0, 0)

	m.ApplyNormalized(hwio.Normalized{Kind: hwio.NormPickUp}, now)
	m.ApplyNormalized(hwio.Normalized{Kind: hwio.NormCoin, CoinCents: 10}, now)
	now = dial(m, now, "200")
	now = now.Add(600 * time.Millisecond)
	m.AdvanceTimers(now)

	if m.State() != StatePDD {
		t.Fatalf("State() after underpaid PDD expiry = %v, want PDD (awaiting deposit)", m.State())
	}
	if !m.Toll().IsAwaitingDeposit() {
		t.Fatal("IsAwaitingDeposit() = false, want true")
	}

	m.ApplyNormalized(hwio.Normalized{Kind: hwio.NormCoin, CoinCents: 15}, now)

	if m.State() != StateCallingOut {
		t.Fatalf("State() after sufficient deposit = %v, want CallingOut", m.State())
	}
	if m.Context().CalledNumber != "200" {
		t.Fatalf("CalledNumber = %q, want \"200\"", m.Context().CalledNumber)
	}
}

// Scenario 5: a connected payphone call runs out of time credit and is
// forced to Busy.
func TestTimeCreditExhaustionEndsCall(t *testing.T) {
	resolver := newFakeResolver()
	resolver.add(0, "200", "bob", agent.RoleNormal, nil)

	cfg := baseConfig()
	cfg.Payphone = toll.Config{
		Enabled:               true,
		StandardCallRateCents: 25,
		TimeCreditSeconds:     60,
		CoinConsumeDelay:      0,
	}
	m, _ := testMachine(t, cfg, resolver)
	now := time.Unix(0, 0)

	m.ApplyNormalized(hwio.Normalized{Kind: hwio.NormPickUp}, now)
	m.ApplyNormalized(hwio.Normalized{Kind: hwio.NormCoin, CoinCents: 25}, now)
	now = dial(m, now, "200")
	now = now.Add(600 * time.Millisecond)
	m.AdvanceTimers(now)
	if m.State() != StateCallingOut {
		t.Fatalf("State() = %v, want CallingOut", m.State())
	}

	m.AcceptCall(now)
	if m.State() != StateConnected {
		t.Fatalf("State() after AcceptCall = %v, want Connected", m.State())
	}

	now = now.Add(1 * time.Millisecond)
	m.AdvanceTimers(now) // consumes the initial deposit (CoinConsumeDelay = 0)
	if !m.Toll().InitialDepositConsumed() {
		t.Fatal("InitialDepositConsumed() = false, want true")
	}

	now = now.Add(60*time.Second + 100*time.Millisecond)
	m.AdvanceTimers(now)
	if m.State() != StateBusy {
		t.Fatalf("State() after time credit exhausted = %v, want Busy", m.State())
	}
}

// Scenario 6: an agent's CallUser intent rings the line; answering connects
// the agent with reason AgentInit already staged by the engine's own
// call-reason convention (asserted on the fake handle's staged reason and
// forced state).
func TestAgentCallUserThenAnswer(t *testing.T) {
	resolver := newFakeResolver()
	alice := resolver.add(0, "100", "alice", agent.RoleNormal, nil)

	m, out := testMachine(t, baseConfig(), resolver)
	now := time.Unix(0, 0)

	if !m.TryCallUser(alice.id, now) {
		t.Fatal("TryCallUser() = false, want true from Idle with incoming calls allowed")
	}
	if m.State() != StateIdleRinging {
		t.Fatalf("State() = %v, want IdleRinging", m.State())
	}
	if m.Context().LastCallerID == nil || *m.Context().LastCallerID != alice.id {
		t.Fatalf("LastCallerID = %v, want alice", m.Context().LastCallerID)
	}
	if alice.reason != agent.ReasonAgentInit {
		t.Fatalf("alice.reason = %v, want AgentInit", alice.reason)
	}
	if alice.state != agent.StateOutgoingCall {
		t.Fatalf("alice.state = %v, want OutgoingCall while ringing", alice.state)
	}

	select {
	case sig := <-out:
		if sig.Ring == nil {
			t.Fatal("output signal Ring = nil, want a pattern")
		}
	default:
		t.Fatal("expected a ring signal on the output channel")
	}

	m.ApplyNormalized(hwio.Normalized{Kind: hwio.NormAnswer}, now)
	if m.State() != StateConnected {
		t.Fatalf("State() after answer = %v, want Connected", m.State())
	}
	if alice.state != agent.StateCall {
		t.Fatalf("alice.state = %v, want Call", alice.state)
	}
}

// P1: Idle implies no other party and no dialed digits.
func TestInvariantIdleClearsCallContext(t *testing.T) {
	resolver := newFakeResolver()
	resolver.add(0, "", "intercept", agent.RoleIntercept, nil)
	m, _ := testMachine(t, baseConfig(), resolver)
	now := time.Unix(0, 0)

	m.ApplyNormalized(hwio.Normalized{Kind: hwio.NormPickUp}, now)
	now = dial(m, now, "999")
	now = now.Add(600 * time.Millisecond)
	m.AdvanceTimers(now)

	m.ApplyNormalized(hwio.Normalized{Kind: hwio.NormHangUp}, now)

	if m.State() != StateIdle {
		t.Fatalf("State() = %v, want Idle", m.State())
	}
	if m.Context().HasOtherParty() {
		t.Fatal("HasOtherParty() = true after returning to Idle, want false")
	}
	if m.Context().DialedDigits() != "" {
		t.Fatalf("DialedDigits() = %q after returning to Idle, want empty", m.Context().DialedDigits())
	}
	if m.Toll().DepositCents() != 0 {
		t.Fatalf("DepositCents() = %d after returning to Idle, want 0 (coin deposit cleared)", m.Toll().DepositCents())
	}
}

// IdleRinging + agent EndCall -> Idle ("caller gave up").
func TestEndCallFromRingingReturnsToIdle(t *testing.T) {
	resolver := newFakeResolver()
	alice := resolver.add(0, "100", "alice", agent.RoleNormal, nil)
	m, _ := testMachine(t, baseConfig(), resolver)
	now := time.Unix(0, 0)

	if !m.TryCallUser(alice.id, now) {
		t.Fatal("TryCallUser() = false, want true")
	}
	m.EndCallFromRinging(now)

	if m.State() != StateIdle {
		t.Fatalf("State() = %v, want Idle", m.State())
	}
	if alice.state != agent.StateIdle {
		t.Fatalf("alice.state = %v, want Idle", alice.state)
	}
}
