package line

import (
	"log/slog"
	"strings"
	"time"

	"github.com/oldline/exchange/internal/agent"
	"github.com/oldline/exchange/internal/hwio"
	"github.com/oldline/exchange/internal/sound"
	"github.com/oldline/exchange/internal/toll"
)

// Resolver is the slice of the Agent Registry (component B) the Line State
// Machine needs: number/name lookup and the pinned intercept target. Kept
// as an interface here (rather than importing internal/registry directly)
// so registry can import agent and line without line importing registry.
type Resolver interface {
	ResolveNumber(number string) (agent.ID, bool)
	ResolveName(name string) (agent.ID, bool)
	InterceptAgent() (agent.ID, bool)
	Handle(id agent.ID) (agent.Handle, bool)
}

// Config carries the spec.md §6 timing/feature fields the Line State
// Machine itself consumes.
type Config struct {
	PDD                time.Duration
	OffHookDelay       time.Duration
	AllowIncomingCalls bool
	DefaultRingPattern hwio.RingPattern
	PhoneIsRotary      bool
	Payphone           toll.Config
}

// Machine is the Phone Line State Machine (spec.md §4.D). One Machine
// drives the single subscriber line this exchange hosts.
type Machine struct {
	cfg      Config
	resolver Resolver
	snd      sound.Engine
	out      chan<- hwio.OutputSignal
	toll     *toll.Accountant
	log      *slog.Logger

	state      State
	stateStart time.Time
	pddStart   time.Time
	ctx        Context
}

// New constructs a Machine starting in Idle.
func New(cfg Config, resolver Resolver, snd sound.Engine, out chan<- hwio.OutputSignal, log *slog.Logger) *Machine {
	return &Machine{
		cfg:      cfg,
		resolver: resolver,
		snd:      snd,
		out:      out,
		toll:     toll.New(cfg.Payphone),
		log:      log,
		state:    StateIdle,
	}
}

// State returns the current line state.
func (m *Machine) State() State { return m.state }

// Context returns the mutable call context, for the scheduler/tests to
// inspect (LastCallerID, CalledNumber, dialed-digit queue).
func (m *Machine) Context() *Context { return &m.ctx }

// Toll exposes the accountant, for capability bindings (toll.* surface).
func (m *Machine) Toll() *toll.Accountant { return m.toll }

// setState performs the generic tone/mute orchestration common to every
// transition (spec.md §4.D "Tone/mute orchestration on every transition")
// and logs (prev_state, elapsed_in_prev, new_state) per spec.md §5.
func (m *Machine) setState(next State, now time.Time) {
	prev := m.state
	elapsed := now.Sub(m.stateStart)
	if prev != StateIdle && !prev.CanTransitionTo(next) && next != StateIdle {
		panic("line: transition " + prev.String() + " -> " + next.String() + " not in authorized successor set")
	}

	m.state = next
	m.stateStart = now
	m.log.Info("line state transition", "prev_state", prev.String(), "elapsed", elapsed, "new_state", next.String())

	if next != StateIdle {
		_ = m.snd.Play("comfort-noise", sound.ChannelNoiseIn, false, sound.PlayOptions{Looping: true})
	}

	switch next {
	case StateIdle:
		m.snd.StopAllExcept(sound.ChannelSignalOut)
		m.ctx.Reset()
		m.pddStart = time.Time{}
		m.toll.OnDisconnect()
		m.toll.Reset()
	case StateBusy:
		m.snd.StopAllNonsignal()
		m.snd.PlayBusyTone()
		m.ctx.OtherParty = nil
	case StateConnected:
		m.snd.StopAll() // stop incoming signals (ringback/dial tone/etc)
		if h, ok := m.handleForOtherParty(); ok {
			_ = h.TransitionState(agent.StateCall)
		}
		m.toll.OnConnect(now)
	}
}

func (m *Machine) handleForOtherParty() (agent.Handle, bool) {
	if m.ctx.OtherParty == nil {
		return nil, false
	}
	return m.resolver.Handle(*m.ctx.OtherParty)
}

// SetHookMute applies spec.md §5's "on hook closure (unlocked) mute all
// non-soul channels; on hook open, unmute" rule. Called by the scheduler
// whenever the Input Normalizer reports a raw hook-state edge, independent
// of any line-state transition it may also trigger.
func (m *Machine) SetHookMute(onHook bool, locked bool) {
	if locked {
		return
	}
	for _, ch := range sound.NonSoulChannels {
		m.snd.SetMuted(ch, onHook)
	}
}

// LineContext projects the subset of state the Input Normalizer needs.
func (m *Machine) LineContext() hwio.LineContext {
	return hwio.LineContext{
		IsIdleOrRinging:  m.state.IsIdleOrRinging(),
		IsIdle:           m.state == StateIdle,
		IsIdleRinging:    m.state == StateIdleRinging,
		SwitchHookLocked: m.ctx.SwitchHookLocked,
	}
}

// ApplyNormalized applies one logical event from the Input Normalizer,
// spec.md §4.D's event-driven transition column.
func (m *Machine) ApplyNormalized(ev hwio.Normalized, now time.Time) {
	switch ev.Kind {
	case hwio.NormPickUp:
		m.setState(StateDialTone, now)
		m.snd.PlayDialTone()

	case hwio.NormAnswer:
		m.toll.GrantCredit(unlimitedCredit)
		m.setState(StateConnected, now)

	case hwio.NormHangUp, hwio.NormSHDHangUp:
		if !m.state.IsIdleOrRinging() {
			m.setState(StateIdle, now)
		}

	case hwio.NormDigit:
		m.handleDigit(ev.Digit, now)

	case hwio.NormCoin:
		rate := m.currentCallRateCents()
		m.toll.AddDeposit(ev.CoinCents, rate)
		if m.state == StatePDD {
			m.routeAtPDDExpiry(now)
		}
	}
}

// unlimitedCredit stands in for the original's add_time_credit(Duration::MAX)
// grant on answering an incoming call: a ceiling no real call reaches.
const unlimitedCredit = time.Duration(1<<62 - 1)

func (m *Machine) handleDigit(d rune, now time.Time) {
	switch m.state {
	case StateIdle, StateIdleRinging:
		return
	case StateDialTone:
		m.ctx.PushDigit(d)
		m.pddStart = now
		m.setState(StatePDD, now)
	case StatePDD:
		m.ctx.PushDigit(d)
		m.pddStart = now
	default:
		m.ctx.PushDigit(d)
	}
}

// AdvanceTimers evaluates every time-based transition once against now,
// spec.md §4.F step 2 "Advance line state".
func (m *Machine) AdvanceTimers(now time.Time) {
	switch m.state {
	case StateDialTone:
		if now.Sub(m.stateStart) >= m.cfg.OffHookDelay {
			m.routeToIntercept(agent.ReasonOffHook, now)
		}
	case StatePDD:
		if now.Sub(m.pddStart) >= m.cfg.PDD {
			m.routeAtPDDExpiry(now)
		}
	case StateConnected:
		m.advanceTollTimers(now)
	}
}

func (m *Machine) advanceTollTimers(now time.Time) {
	if !m.cfg.Payphone.Enabled {
		return
	}
	free := m.isCurrentCallFree()
	if free {
		return
	}
	if !m.toll.InitialDepositConsumed() {
		elapsed := now.Sub(m.stateStart)
		m.toll.MaybeConsumeInitialDeposit(elapsed, m.currentCallRateCents())
		return
	}
	if !m.toll.HasTimeCredit(now) {
		m.log.Info("line: out of time credit; ending call")
		m.setState(StateBusy, now)
	}
}

func (m *Machine) otherPartyMetadata() (agent.Metadata, bool) {
	h, ok := m.handleForOtherParty()
	if !ok {
		return agent.Metadata{}, false
	}
	return h.Metadata(), true
}

func (m *Machine) isCurrentCallFree() bool {
	meta, ok := m.otherPartyMetadata()
	isIntercept := ok && meta.Role == agent.RoleIntercept
	var custom *int
	if ok {
		custom = meta.CustomPrice
	}
	var customRate *uint
	if custom != nil {
		v := uint(*custom)
		customRate = &v
	}
	return m.toll.IsCurrentCallFree(isIntercept, customRate)
}

func (m *Machine) currentCallRateCents() uint {
	meta, ok := m.otherPartyMetadata()
	if !ok {
		return m.cfg.Payphone.StandardCallRateCents
	}
	if meta.CustomPrice == nil {
		return m.cfg.Payphone.StandardCallRateCents
	}
	v := uint(*meta.CustomPrice)
	return m.toll.CurrentCallRate(&v)
}

// priceFor resolves the PDD-expiry connect price for a not-yet-resolved
// number: the target's custom_price if custom rates are enabled and the
// number resolves, else the standard rate (spec.md §4.D "Routing at PDD
// expiry" step 1).
func (m *Machine) priceFor(number string) uint {
	if !m.cfg.Payphone.Enabled {
		return 0
	}
	if m.cfg.Payphone.EnableCustomAgentRates {
		if id, ok := m.resolver.ResolveNumber(number); ok {
			if h, ok := m.resolver.Handle(id); ok {
				if cp := h.Metadata().CustomPrice; cp != nil {
					return uint(*cp)
				}
			}
		}
	}
	return m.cfg.Payphone.StandardCallRateCents
}

// routeAtPDDExpiry implements spec.md §4.D's routing algorithm.
func (m *Machine) routeAtPDDExpiry(now time.Time) {
	number := m.ctx.DialedDigits()
	price := m.priceFor(number)

	if m.cfg.Payphone.Enabled && !m.toll.CanAffordPDDConnect(price) {
		return // stays in PDD, awaiting_initial_deposit staged by the accountant
	}

	m.ctx.CalledNumber = number
	m.connectOutgoing(number, agent.ReasonUserInit, now)
}

// connectOutgoing resolves number to an agent and transitions to
// CallingOut, or falls back to intercept/Busy when it cannot be resolved.
func (m *Machine) connectOutgoing(number string, reason agent.CallReason, now time.Time) {
	id, ok := m.resolver.ResolveNumber(number)
	if !ok {
		m.routeToIntercept(agent.ReasonNumberDisconnected, now)
		return
	}
	h, ok := m.resolver.Handle(id)
	if !ok {
		m.routeToIntercept(agent.ReasonNumberDisconnected, now)
		return
	}
	m.ctx.OtherParty = &id
	h.SetCallReason(reason)
	_ = h.TransitionState(agent.StateIncomingCall)
	m.setState(StateCallingOut, now)
	m.snd.PlayRingbackTone()
}

func (m *Machine) routeToIntercept(reason agent.CallReason, now time.Time) {
	id, ok := m.resolver.InterceptAgent()
	if !ok {
		m.setState(StateBusy, now)
		return
	}
	h, ok := m.resolver.Handle(id)
	if !ok {
		m.setState(StateBusy, now)
		return
	}
	m.ctx.OtherParty = &id
	h.SetCallReason(reason)
	_ = h.TransitionState(agent.StateIncomingCall)
	m.setState(StateCallingOut, now)
}

// TryCallUser implements the Idle + agent-intent-CallUser transition row.
// Returns false when the line cannot accept it (busy/occupied), in which
// case the scheduler answers the agent with LineBusyResponse.
func (m *Machine) TryCallUser(id agent.ID, now time.Time) bool {
	if m.state != StateIdle || !m.cfg.AllowIncomingCalls || m.ctx.HasOtherParty() {
		return false
	}
	h, ok := m.resolver.Handle(id)
	if !ok {
		return false
	}
	m.ctx.OtherParty = &id
	m.ctx.LastCallerID = &id
	h.SetCallReason(agent.ReasonAgentInit)
	_ = h.TransitionState(agent.StateOutgoingCall)
	m.setState(StateIdleRinging, now)

	pattern := m.cfg.DefaultRingPattern
	if meta := h.Metadata(); meta.CustomRingPattern != nil {
		pattern = *meta.CustomRingPattern
	}
	m.sendOutput(hwio.RingSignal(pattern))
	return true
}

// sendOutput is best-effort: a full output channel drops the signal rather
// than blocking the tick loop. spec.md §9 leaves send_output's return
// convention an open question (the source returns false on the happy path,
// suspected to be a bug); this implementation reports success on a
// successful, non-blocking enqueue.
func (m *Machine) sendOutput(sig hwio.OutputSignal) bool {
	select {
	case m.out <- sig:
		return true
	default:
		m.log.Warn("line: output channel full, dropping ring signal")
		return false
	}
}

// EndCallFromRinging implements IdleRinging + agent-intent-EndCall -> Idle
// ("caller gave up" before the line ever answered).
func (m *Machine) EndCallFromRinging(now time.Time) {
	if m.state != StateIdleRinging {
		return
	}
	if h, ok := m.handleForOtherParty(); ok {
		_ = h.TransitionState(agent.StateIdle)
	}
	m.sendOutput(hwio.StopRingSignal())
	m.setState(StateIdle, now)
}

// AcceptCall implements CallingOut + connecting-agent-AcceptCall -> Connected.
func (m *Machine) AcceptCall(now time.Time) {
	if m.state != StateCallingOut {
		return
	}
	m.snd.Stop(sound.ChannelSignalIn) // stop ringback
	m.setState(StateConnected, now)
}

// EndCallFromConnectingAgent implements CallingOut + connecting-agent-EndCall.
// The source table leaves the destination ambiguous ("Idle/Busy"); this
// implementation routes to Busy, symmetric with the Connected/StateEnded row
// (see DESIGN.md).
func (m *Machine) EndCallFromConnectingAgent(now time.Time) {
	if m.state != StateCallingOut {
		return
	}
	m.setState(StateBusy, now)
}

// EndCallFromConnectedAgent implements Connected + agent-EndCall: the agent
// itself moves to Idle, but the line does not transition until the agent
// later reports StateEnded.
func (m *Machine) EndCallFromConnectedAgent(now time.Time) {
	h, ok := m.handleForOtherParty()
	if !ok {
		return
	}
	_ = h.TransitionState(agent.StateIdle)
}

// AgentStateEnded implements Connected + other_party-StateEnded(Call) -> Busy.
func (m *Machine) AgentStateEnded(s agent.State, now time.Time) {
	if m.state != StateConnected || s != agent.StateCall {
		return
	}
	m.setState(StateBusy, now)
}

// ForwardCall implements the Connected + ForwardCall(target) row. Targets
// prefixed with '@' are agent names; everything else is a dialed number.
func (m *Machine) ForwardCall(target string, now time.Time) {
	if m.state != StateConnected {
		return
	}
	if h, ok := m.handleForOtherParty(); ok {
		_ = h.TransitionState(agent.StateIdle)
	}

	var id agent.ID
	var ok bool
	if strings.HasPrefix(target, "@") {
		id, ok = m.resolver.ResolveName(strings.TrimPrefix(target, "@"))
	} else {
		id, ok = m.resolver.ResolveNumber(target)
	}
	if !ok {
		m.ctx.OtherParty = nil
		m.routeToIntercept(agent.ReasonNumberDisconnected, now)
		return
	}
	m.ctx.OtherParty = nil
	m.forwardTo(id, now)
}

// ForwardCallToID implements ForwardCallToId(AgentId): the same re-route,
// addressed directly by id rather than by name/number lookup.
func (m *Machine) ForwardCallToID(target agent.ID, now time.Time) {
	if m.state != StateConnected {
		return
	}
	if h, ok := m.handleForOtherParty(); ok {
		_ = h.TransitionState(agent.StateIdle)
	}
	m.ctx.OtherParty = nil
	m.forwardTo(target, now)
}

func (m *Machine) forwardTo(id agent.ID, now time.Time) {
	h, ok := m.resolver.Handle(id)
	if !ok {
		m.routeToIntercept(agent.ReasonNumberDisconnected, now)
		return
	}
	m.ctx.OtherParty = &id
	h.SetCallReason(agent.ReasonAgentInit)
	_ = h.TransitionState(agent.StateIncomingCall)
	m.setState(StateCallingOut, now)
	m.snd.PlayRingbackTone()
}

// PopDialedDigit removes and returns the head of the dialed-digit queue,
// consumed by the scheduler to answer an agent's ReadDigit intent.
func (m *Machine) PopDialedDigit() (rune, bool) {
	return m.ctx.PopDigit()
}
