// Package toll implements the payphone coin-deposit/time-credit bookkeeping
// component (spec.md §4.E), grounded directly on the Rust original's
// coin_deposit/time_credit/initial_deposit_consumed/awaiting_initial_deposit
// fields and the conversion rules in engine/mod.rs.
package toll

import (
	"sync"
	"time"
)

// Config carries the subset of spec.md §6's payphone block the Accountant
// needs. Non-payphone lines construct an Accountant with Enabled=false;
// IsCurrentCallFree then reports every call free. The other methods do not
// read Enabled: the Line State Machine skips its deposit and time-credit
// checks on a non-payphone line.
type Config struct {
	Enabled                bool
	StandardCallRateCents  uint
	EnableCustomAgentRates bool
	TimeCreditSeconds      uint // 0 means unmetered even when Enabled
	TimeCreditWarnSeconds  uint
	CoinConsumeDelay       time.Duration
}

// RateFunc resolves the custom rate for the currently connected party (nil
// means "use standard rate") and whether that party has the Intercept role
// (an Intercept-role party is always free).
type RateFunc func() (customRateCents *uint, isIntercept bool)

// Accountant tracks one line's running coin deposit and accrued time
// credit. It is not safe to share across lines; each line.Machine owns one
// instance.
type Accountant struct {
	cfg Config

	mu                     sync.Mutex
	depositCents           uint
	timeCredit             time.Duration
	initialDepositConsumed bool
	awaitingInitialDeposit bool
	connectedSince         time.Time
	connected              bool
}

// New constructs an Accountant. cfg is captured by value; callers reload by
// constructing a fresh Accountant rather than mutating Config in place.
func New(cfg Config) *Accountant {
	return &Accountant{cfg: cfg}
}

// Reset clears all deposit/credit state, called when a line returns to Idle.
func (a *Accountant) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.depositCents = 0
	a.timeCredit = 0
	a.initialDepositConsumed = false
	a.awaitingInitialDeposit = false
	a.connected = false
}

// AddDeposit records a coin deposit and, if a call is already Connected,
// immediately tries to convert the running balance into additional time
// credit at the given rate.
func (a *Accountant) AddDeposit(cents uint, rateCents uint) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.depositCents += cents
	a.convertDepositToCreditLocked(rateCents)
}

// convertDepositToCreditLocked converts whole multiples of rateCents out of
// the running deposit into time credit, leaving any remainder banked toward
// the next conversion. Mirrors convert_deposit_to_credit in the original.
func (a *Accountant) convertDepositToCreditLocked(rateCents uint) bool {
	if !a.connected || rateCents == 0 || a.depositCents < rateCents {
		return false
	}
	multiplier := a.depositCents / rateCents
	a.depositCents %= rateCents
	a.timeCredit += time.Duration(multiplier) * time.Duration(a.cfg.TimeCreditSeconds) * time.Second
	return true
}

// GrantCredit adds credit directly, bypassing deposit conversion. Used for
// the unconditional unlimited-credit grant on answering an incoming call
// (spec.md §4.D "IdleRinging -> Connected: grant unlimited time credit").
func (a *Accountant) GrantCredit(credit time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.timeCredit += credit
}

// OnConnect marks the call Connected as of now, enabling deposit-to-credit
// conversion and elapsed-time accounting.
func (a *Accountant) OnConnect(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = true
	a.connectedSince = now
}

// OnDisconnect ends accounting for the current call. Any unconsumed deposit
// (not yet converted to credit) carries over per the original's "leftover
// deposit remains and counts towards future credit" comment.
func (a *Accountant) OnDisconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
}

// CanAffordPDDConnect reports whether the deposit on hand covers priceCents,
// the PDD-expiry gate in spec.md §4.D step before dialing out on a payphone
// line. If it returns false it also stages AwaitingInitialDeposit, and the
// caller must refuse to dial.
func (a *Accountant) CanAffordPDDConnect(priceCents uint) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.depositCents >= priceCents {
		a.awaitingInitialDeposit = false
		return true
	}
	a.awaitingInitialDeposit = true
	return false
}

// IsAwaitingDeposit reports whether the line is stalled in PDD waiting on
// the caller to feed more coins before the call can proceed.
func (a *Accountant) IsAwaitingDeposit() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.awaitingInitialDeposit
}

// MaybeConsumeInitialDeposit converts the current deposit to credit and
// latches initial_deposit_consumed, once elapsedSinceConnect has passed the
// configured CoinConsumeDelay. Returns true the instant it fires.
func (a *Accountant) MaybeConsumeInitialDeposit(elapsedSinceConnect time.Duration, rateCents uint) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialDepositConsumed {
		return false
	}
	if elapsedSinceConnect < a.cfg.CoinConsumeDelay {
		return false
	}
	a.convertDepositToCreditLocked(rateCents)
	a.awaitingInitialDeposit = false
	a.initialDepositConsumed = true
	return true
}

// InitialDepositConsumed reports whether the first-deposit grace window has
// elapsed for the current call.
func (a *Accountant) InitialDepositConsumed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initialDepositConsumed
}

// RemainingTimeCredit returns the time credit left, netting out elapsed
// connected time when the call is currently Connected (mirrors
// remaining_time_credit's match on PhoneLineState::Connected).
func (a *Accountant) RemainingTimeCredit(now time.Time) time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return a.timeCredit
	}
	elapsed := now.Sub(a.connectedSince)
	remaining := a.timeCredit - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// HasTimeCredit reports whether the call may continue: unmetered lines
// (TimeCreditSeconds == 0) always have credit.
func (a *Accountant) HasTimeCredit(now time.Time) bool {
	if a.cfg.TimeCreditSeconds == 0 {
		return true
	}
	return a.RemainingTimeCredit(now) > 0
}

// IsTimeCreditLow reports the time-credit warning condition: connected,
// metered, past the initial deposit, not a free call, and at or under the
// configured warning threshold.
func (a *Accountant) IsTimeCreditLow(now time.Time, connected bool, freeCall bool) bool {
	a.mu.Lock()
	consumed := a.initialDepositConsumed
	a.mu.Unlock()
	if !connected || a.cfg.TimeCreditSeconds == 0 || !consumed || freeCall {
		return false
	}
	return a.RemainingTimeCredit(now) <= time.Duration(a.cfg.TimeCreditWarnSeconds)*time.Second
}

// CurrentCallRate resolves the per-deposit-unit rate for the party this
// line is connected to, falling back to the standard rate.
func (a *Accountant) CurrentCallRate(customRateCents *uint) uint {
	if a.cfg.EnableCustomAgentRates && customRateCents != nil {
		return *customRateCents
	}
	return a.cfg.StandardCallRateCents
}

// IsCurrentCallFree mirrors is_current_call_free: a disabled payphone, a
// zero standard rate with custom rates ignored, an Intercept-role party, or
// an explicit zero custom rate, are all free.
func (a *Accountant) IsCurrentCallFree(isIntercept bool, customRateCents *uint) bool {
	if !a.cfg.Enabled {
		return true
	}
	if !a.cfg.EnableCustomAgentRates && a.cfg.StandardCallRateCents == 0 {
		return true
	}
	if isIntercept {
		return true
	}
	return a.CurrentCallRate(customRateCents) == 0
}

// DepositCents reports the current running balance, for diagnostics/logging.
func (a *Accountant) DepositCents() uint {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.depositCents
}
