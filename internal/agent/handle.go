package agent

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/oldline/exchange/internal/hwio"
)

// Metadata is the static description read once from a script's
// self-description at load time.
type Metadata struct {
	Name               string
	PhoneNumber        string // empty means unnumbered / not directly dialable
	Role               Role
	CustomPrice        *int // nil means "use standard_call_rate"
	RingbackEnabled    bool
	RequiredSoundBanks []string
	CustomRingPattern  *hwio.RingPattern
}

// Handle is an opaque wrapper over one loaded script. The core addresses an
// agent only through this interface — the scripting host executing the
// script's actual logic is a collaborator outside the core's boundary.
type Handle interface {
	// Metadata returns the agent's static, load-time-fixed description.
	Metadata() Metadata

	// ID returns the dense ordinal assigned by the registry at load time.
	ID() ID

	// SetID is called exactly once by the registry, immediately after a
	// successful load, to assign the dense ordinal ID() subsequently returns.
	SetID(id ID)

	// Start initializes the script-side state machine. A non-nil error here
	// is fatal for this agent; the caller must omit it from the registry.
	Start() error

	// OnLoad is the optional init hook, called once after Start. A non-nil
	// error here is also fatal for this agent.
	OnLoad(path string) error

	// Tick is pure by contract: it may read engine-global capabilities
	// (via the Capabilities bound at construction time) but must not block.
	// A non-nil error means the script misbehaved this tick and the caller
	// must suspend the agent.
	Tick(resp Response) (Intent, Continuation, error)

	// TransitionState forces the script's FSM to a given state.
	TransitionState(s State) error

	// SetCallReason stages a reason code consumed by the agent's next
	// IncomingCall transition.
	SetCallReason(r CallReason)

	// State re-queries the script for its current (authoritative) state.
	State() State

	// Suspended / SetSuspended quarantine a crashing agent.
	Suspended() bool
	SetSuspended(bool)

	// OnUnload fires on drop; errors are logged by the caller, not
	// propagated.
	OnUnload() error
}

// LoadError wraps a fatal agent load/start/OnLoad failure. Errors of this
// type cause the registry to omit the agent and continue loading others,
// per spec.md §4.B and §7.
type LoadError struct {
	Path    string
	Op      string // "start", "on_load", or "parse"
	Err     error
	TraceID uuid.UUID // identifies this one load attempt; each attempt gets a fresh id
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("agent: %s failed for %q (trace %s): %v", e.Op, e.Path, e.TraceID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// RuntimeError wraps a non-fatal tick failure. The scheduler suspends the
// offending agent but keeps ticking everyone else.
type RuntimeError struct {
	AgentName string
	Err       error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("agent: runtime error in %q: %v", e.AgentName, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }
