package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/oldline/exchange/internal/hwio"
)

// BehaviorFunc is one tick of a built-in agent behavior. It receives the
// ScriptHandle it is bound to (so it can read/set call reason, query its
// own projected state, and reach the engine's Capabilities) and the
// Response the scheduler is answering this invocation with.
//
// This is the core's minimal, honest stand-in for the scripting host
// spec.md §1 places out of scope: rather than embed a general-purpose
// language runtime (which nothing in this module's dependency graph
// provides, and which the spec explicitly says the core only ever reaches
// through a Handle), each script file on disk names one of a small set of
// built-in behaviors registered in Go by RegisterBehavior, parameterized by
// the file's JSON body. Swapping in a real interpreter later only means
// writing a new BehaviorFunc and registering it; the registry/scheduler
// boundary this package defines does not change.
type BehaviorFunc func(h *ScriptHandle, resp Response) (Intent, Continuation, error)

// BehaviorConstructor builds a bound BehaviorFunc from a script file's
// decoded parameters.
type BehaviorConstructor func(params map[string]any) (BehaviorFunc, error)

var (
	behaviorMu       sync.RWMutex
	behaviorRegistry = map[string]BehaviorConstructor{}
)

// RegisterBehavior makes a named behavior constructor available to
// LoadFile. Built-in behaviors register themselves from an init() in
// behaviors.go; callers may register additional ones before loading agents.
func RegisterBehavior(name string, ctor BehaviorConstructor) {
	behaviorMu.Lock()
	defer behaviorMu.Unlock()
	behaviorRegistry[name] = ctor
}

func lookupBehavior(name string) (BehaviorConstructor, bool) {
	behaviorMu.RLock()
	defer behaviorMu.RUnlock()
	ctor, ok := behaviorRegistry[name]
	return ctor, ok
}

// scriptFile is the on-disk JSON shape of an agent script.
type scriptFile struct {
	Name               string         `json:"name"`
	PhoneNumber        string         `json:"phone_number"`
	Role               string         `json:"role"`
	CustomPrice        *int           `json:"custom_price"`
	RingbackEnabled    *bool          `json:"ringback_enabled"`
	RequiredSoundBanks []string       `json:"required_sound_banks"`
	CustomRingPattern  string         `json:"custom_ring_pattern"`
	Behavior           string         `json:"behavior"`
	Params             map[string]any `json:"params"`
}

func parseRole(s string) (Role, error) {
	switch strings.ToLower(s) {
	case "", "normal":
		return RoleNormal, nil
	case "intercept":
		return RoleIntercept, nil
	case "tollmaster":
		return RoleTollmaster, nil
	default:
		return RoleNormal, fmt.Errorf("agent: unknown role %q", s)
	}
}

// ScriptHandle is the concrete Handle backing every agent loaded by
// LoadFile. Its exported accessors are the surface a BehaviorFunc is
// written against.
type ScriptHandle struct {
	meta Metadata
	id   ID

	caps     Capabilities
	behavior BehaviorFunc

	mu         sync.Mutex
	state      State
	suspended  bool
	callReason CallReason
}

// LoadFile parses path as a JSON agent script and resolves its named
// behavior. A parse error, an unknown behavior name, or a behavior
// constructor error are all fatal for this agent (spec.md §4.A).
func LoadFile(path string, caps Capabilities) (*ScriptHandle, error) {
	traceID := uuid.New()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Op: "parse", Err: err, TraceID: traceID}
	}

	var sf scriptFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, &LoadError{Path: path, Op: "parse", Err: err, TraceID: traceID}
	}
	if sf.Name == "" {
		return nil, &LoadError{Path: path, Op: "parse", Err: fmt.Errorf("agent script requires a name"), TraceID: traceID}
	}

	role, err := parseRole(sf.Role)
	if err != nil {
		return nil, &LoadError{Path: path, Op: "parse", Err: err, TraceID: traceID}
	}

	ctor, ok := lookupBehavior(sf.Behavior)
	if !ok {
		return nil, &LoadError{Path: path, Op: "parse", Err: fmt.Errorf("unknown behavior %q", sf.Behavior), TraceID: traceID}
	}
	behavior, err := ctor(sf.Params)
	if err != nil {
		return nil, &LoadError{Path: path, Op: "parse", Err: fmt.Errorf("construct behavior %q: %w", sf.Behavior, err), TraceID: traceID}
	}

	ringback := true
	if sf.RingbackEnabled != nil {
		ringback = *sf.RingbackEnabled
	}

	var ringPattern *hwio.RingPattern
	if sf.CustomRingPattern != "" {
		if p, ok := hwio.CompileRingPattern(sf.CustomRingPattern); ok {
			ringPattern = &p
		}
	}

	h := &ScriptHandle{
		meta: Metadata{
			Name:               sf.Name,
			PhoneNumber:        sf.PhoneNumber,
			Role:               role,
			CustomPrice:        sf.CustomPrice,
			RingbackEnabled:    ringback,
			RequiredSoundBanks: sf.RequiredSoundBanks,
			CustomRingPattern:  ringPattern,
		},
		caps:     caps,
		behavior: behavior,
		state:    StateIdle,
	}
	return h, nil
}

func (h *ScriptHandle) Metadata() Metadata { return h.meta }
func (h *ScriptHandle) ID() ID             { return h.id }

// SetID is called once by the registry at load time.
func (h *ScriptHandle) SetID(id ID) { h.id = id }

func (h *ScriptHandle) Start() error { return nil }

func (h *ScriptHandle) OnLoad(path string) error { return nil }

func (h *ScriptHandle) Tick(resp Response) (Intent, Continuation, error) {
	h.mu.Lock()
	suspended := h.suspended
	h.mu.Unlock()
	if suspended {
		return Idle(), NextAgent, nil
	}
	return h.behavior(h, resp)
}

func (h *ScriptHandle) TransitionState(s State) error {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
	return nil
}

func (h *ScriptHandle) SetCallReason(r CallReason) {
	h.mu.Lock()
	h.callReason = r
	h.mu.Unlock()
}

// CallReason returns the reason currently staged on this agent. Reading it
// does not clear it: the reason stays staged until SetCallReason stages
// another. Behaviors read it to decide how to greet an incoming call.
func (h *ScriptHandle) CallReason() CallReason {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.callReason
}

func (h *ScriptHandle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *ScriptHandle) Suspended() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.suspended
}

func (h *ScriptHandle) SetSuspended(s bool) {
	h.mu.Lock()
	h.suspended = s
	h.mu.Unlock()
}

func (h *ScriptHandle) OnUnload() error { return nil }

// Caps exposes the bound Capabilities table to behaviors.
func (h *ScriptHandle) Caps() Capabilities { return h.caps }
