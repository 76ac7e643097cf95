package line

import (
	"time"

	"github.com/oldline/exchange/internal/agent"
)

// Context holds the mutable per-line fields the original keeps as
// individually-guarded cells (spec.md §9 "Interior mutability"): dialed
// digits, the resolved call target, and the switchhook lock flag the Input
// Normalizer reads through Machine.LineContext. Rotary-dial bookkeeping lives
// in the Normalizer, not here.
type Context struct {
	CalledNumber     string
	OtherParty       *agent.ID
	LastCallerID     *agent.ID
	LastDialedNumber string

	SwitchHookLocked bool

	dialedDigits []rune
	pddStart     time.Time
}

// PushDigit appends a dialed digit to the queue the routing algorithm reads
// at PDD expiry and ReadDigit intents pop from one at a time.
func (c *Context) PushDigit(d rune) { c.dialedDigits = append(c.dialedDigits, d) }

// PopDigit removes and returns the head of the dialed-digit queue.
func (c *Context) PopDigit() (rune, bool) {
	if len(c.dialedDigits) == 0 {
		return 0, false
	}
	d := c.dialedDigits[0]
	c.dialedDigits = c.dialedDigits[1:]
	return d, true
}

// DialedDigits returns the full queue as a string, the snapshot the routing
// algorithm consumes as the dialed number at PDD expiry.
func (c *Context) DialedDigits() string { return string(c.dialedDigits) }

// ClearDialedDigits empties the queue without touching CalledNumber/OtherParty.
func (c *Context) ClearDialedDigits() { c.dialedDigits = nil }

// Reset clears everything tied to a single call, invoked on return to Idle
// (spec.md §4.D "Entering Idle... clear dialed digits and called number").
func (c *Context) Reset() {
	c.CalledNumber = ""
	c.OtherParty = nil
	c.dialedDigits = nil
}

// HasOtherParty reports whether a call partner is currently assigned,
// backing invariant P2 (`LineState = CallingOut ⟹ other_party ≠ None`).
func (c *Context) HasOtherParty() bool { return c.OtherParty != nil }
