package agent

// Capabilities is the capability table rooted at the script global scope
// (spec.md §6 "Script host"). The core never implements a scripting host —
// it only promises to hand every loaded agent a stable, long-lived
// implementation of this table, the way the real engine captures itself by
// reference for the process lifetime (spec.md §9 "Cyclic references").
//
// Only the capability groups that affect the core's own control-flow
// invariants are modeled here (sound, phone, toll, a minimal log sink).
// Pure scripting conveniences the spec lists alongside them — cron.*,
// Rng, PerlinNoise, engine_time/call_time — are script-host ergonomics
// that do not feed back into any core invariant or transition, so the core
// does not need to provide them; see DESIGN.md.
type Capabilities interface {
	Sound() SoundCapability
	Phone() PhoneCapability
	Toll() TollCapability
	Log() LogCapability
}

// SoundCapability mirrors sound.Engine for scripts.
type SoundCapability interface {
	Play(path string, channel int, interrupt bool) error
	Stop(channel int)
	PlayDTMF(digit rune, durationMs float64, volume float64) error
}

// PhoneCapability exposes line/dial state queries and actions to scripts.
type PhoneCapability interface {
	LastCallerID() (ID, bool)
	LastDialedNumber() (string, bool)
	Dial(number string)
	IsRotary() bool
	IsRotaryDialResting() bool
	IsOnHook() bool
	Ring(patternExpr string) bool
	StopRinging()
}

// TollCapability exposes payphone accounting queries to scripts.
type TollCapability interface {
	IsTimeLow() bool
	TimeLeftSeconds() (float64, bool) // ok=false means infinite/non-payphone
	CurrentCallRate() uint
	IsCurrentCallFree() bool
	IsAwaitingDeposit() bool
}

// LogCapability is the minimal info/warn/error sink exposed to scripts.
type LogCapability interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
