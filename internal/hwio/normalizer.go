package hwio

import "time"

// NormalizerConfig carries the subset of spec.md §6 that governs how raw
// pulse/switchhook/coin edges get turned into logical digits and hook
// transitions. Grounded on the Rust original's CursedConfig fields
// (rotary.digit_layout, rotary.first_pulse_delay_ms,
// enable_switch_hook_dialing, shd_hangup_delay, shd_manual_pulse_interval).
type NormalizerConfig struct {
	DigitLayout             string // e.g. "1234567890" — index by (pulseCount-1)
	FirstPulseDelay         time.Duration
	SwitchHookDialingEnabled bool
	SHDHangupDelay          time.Duration
	SHDManualPulseInterval  time.Duration
}

// LineContext is the minimal slice of line state the Normalizer needs to
// decide whether an edge is meaningful, supplied by the caller each call so
// this package never imports internal/line (which imports this package).
type LineContext struct {
	IsIdleOrRinging  bool
	IsIdle           bool
	IsIdleRinging    bool
	SwitchHookLocked bool
}

// NormalizedKind tags the variant carried by a Normalized event.
type NormalizedKind int

const (
	NormPickUp      NormalizedKind = iota // Idle -> off-hook (dial tone)
	NormAnswer                            // IdleRinging -> off-hook (connect)
	NormHangUp                            // immediate on-hook hangup
	NormSHDHangUp                         // SHD debounce-timeout hangup
	NormDigit                             // a resolved dialed digit
	NormCoin                              // a coin deposit passthrough
)

// Normalized is one logical event the Line State Machine consumes, emitted
// by feeding raw InputEvents and periodic Tick calls through a Normalizer.
type Normalized struct {
	Kind      NormalizedKind
	Digit     rune
	CoinCents uint
}

// Normalizer turns raw rotary-pulse/switchhook/coin edges into the logical
// event vocabulary the Line State Machine acts on. One Normalizer instance
// is owned per line; it is not safe for concurrent use (the scheduler calls
// it only from the single tick-loop goroutine).
type Normalizer struct {
	cfg NormalizerConfig

	switchhookClosed   bool
	switchhookChangeAt time.Time

	rotaryResting     bool
	rotaryLiftedAt    time.Time
	pendingPulseCount int
}

// NewNormalizer constructs a Normalizer with the switchhook assumed closed
// (on-hook) and the rotary dial assumed resting, matching the original's
// field defaults.
func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	return &Normalizer{
		cfg:              cfg,
		switchhookClosed: true,
		rotaryResting:    true,
	}
}

func (n *Normalizer) pulsesToDigit(pulseCount int) (rune, bool) {
	if pulseCount <= 0 {
		return 0, false
	}
	idx := pulseCount - 1
	if idx >= len(n.cfg.DigitLayout) {
		return 0, false
	}
	return rune(n.cfg.DigitLayout[idx]), true
}

// HandleHookState processes a raw switchhook edge. force replays the
// current state unconditionally (used at startup), matching
// handle_hook_state_change(on_hook, force).
func (n *Normalizer) HandleHookState(onHook bool, force bool, now time.Time, ctx LineContext) []Normalized {
	if !force && n.switchhookClosed == onHook {
		return nil
	}
	n.switchhookClosed = onHook
	n.switchhookChangeAt = now

	if onHook {
		if ctx.IsIdleOrRinging {
			return nil
		}
		if !ctx.SwitchHookLocked && !n.cfg.SwitchHookDialingEnabled {
			return []Normalized{{Kind: NormHangUp}}
		}
		return nil
	}

	switch {
	case ctx.IsIdle:
		if ctx.SwitchHookLocked {
			return nil
		}
		return []Normalized{{Kind: NormPickUp}}
	case ctx.IsIdleRinging:
		if ctx.SwitchHookLocked {
			return nil
		}
		return []Normalized{{Kind: NormAnswer}}
	default:
		if n.cfg.SwitchHookDialingEnabled {
			n.pendingPulseCount++
		}
		return nil
	}
}

// HandleRotaryRest processes a rotary-dial resting-state edge. On
// transition to resting mid-call, the accumulated pulse count commits to a
// digit (if the layout resolves one).
func (n *Normalizer) HandleRotaryRest(resting bool, now time.Time, ctx LineContext) []Normalized {
	if n.rotaryResting == resting {
		return nil
	}
	n.rotaryResting = resting
	if !resting {
		n.rotaryLiftedAt = now
		return nil
	}
	if ctx.IsIdleOrRinging {
		return nil
	}
	count := n.pendingPulseCount
	n.pendingPulseCount = 0
	if digit, ok := n.pulsesToDigit(count); ok {
		return n.handleDigitLocked(digit, ctx)
	}
	return nil
}

// HandleRotaryPulse processes one rotary-dial pulse edge, applying the
// first-pulse noise filter: a pulse arriving within FirstPulseDelay of the
// dial lifting off rest is discarded.
func (n *Normalizer) HandleRotaryPulse(now time.Time, ctx LineContext) {
	if ctx.IsIdleOrRinging || n.rotaryResting {
		return
	}
	if now.Sub(n.rotaryLiftedAt) <= n.cfg.FirstPulseDelay {
		return
	}
	n.pendingPulseCount++
}

// HandleDigit processes a digit delivered directly (DTMF keypad rather than
// rotary pulses), applying the same idle-suppression rule.
func (n *Normalizer) HandleDigit(digit rune, ctx LineContext) []Normalized {
	if ctx.IsIdleOrRinging {
		return nil
	}
	return n.handleDigitLocked(digit, ctx)
}

func (n *Normalizer) handleDigitLocked(digit rune, ctx LineContext) []Normalized {
	return []Normalized{{Kind: NormDigit, Digit: digit}}
}

// HandleCoin passes a coin deposit straight through; the toll accountant,
// not the normalizer, owns deposit/credit bookkeeping.
func (n *Normalizer) HandleCoin(cents uint) []Normalized {
	return []Normalized{{Kind: NormCoin, CoinCents: cents}}
}

// Tick applies the switchhook-dialing hangup/commit timers that the
// original drives from its own per-tick update_state, independent of any
// single edge. Call this once per scheduler tick after draining raw events.
func (n *Normalizer) Tick(now time.Time, ctx LineContext) []Normalized {
	if !n.cfg.SwitchHookDialingEnabled {
		return nil
	}
	sinceChange := now.Sub(n.switchhookChangeAt)

	if n.switchhookClosed && !ctx.IsIdleOrRinging {
		if !ctx.SwitchHookLocked && sinceChange > n.cfg.SHDHangupDelay {
			n.pendingPulseCount = 0
			return []Normalized{{Kind: NormSHDHangUp}}
		}
		return nil
	}

	if n.rotaryResting && n.pendingPulseCount > 0 && sinceChange > n.cfg.SHDManualPulseInterval {
		count := n.pendingPulseCount
		n.pendingPulseCount = 0
		if digit, ok := n.pulsesToDigit(count); ok {
			return []Normalized{{Kind: NormDigit, Digit: digit}}
		}
	}
	return nil
}

// Reset clears pulse-accumulation state, called when the line returns to
// Idle. The dialed-digit queue itself is owned by line.Context, not the
// Normalizer.
func (n *Normalizer) Reset() {
	n.pendingPulseCount = 0
}
