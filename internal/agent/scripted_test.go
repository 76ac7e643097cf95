package agent

import (
	"os"
	"path/filepath"
	"testing"
)

type fakeCaps struct{}

func (fakeCaps) Sound() SoundCapability { return fakeSound{} }
func (fakeCaps) Phone() PhoneCapability { return fakePhone{} }
func (fakeCaps) Toll() TollCapability   { return fakeToll{} }
func (fakeCaps) Log() LogCapability     { return fakeLog{} }

type fakeSound struct{}

func (fakeSound) Play(path string, channel int, interrupt bool) error { return nil }
func (fakeSound) Stop(channel int)                                    {}
func (fakeSound) PlayDTMF(digit rune, durationMs float64, volume float64) error { return nil }

type fakePhone struct{}

func (fakePhone) LastCallerID() (ID, bool)         { return 0, false }
func (fakePhone) LastDialedNumber() (string, bool) { return "", false }
func (fakePhone) Dial(number string)               {}
func (fakePhone) IsRotary() bool                   { return true }
func (fakePhone) IsRotaryDialResting() bool        { return true }
func (fakePhone) IsOnHook() bool                   { return false }
func (fakePhone) Ring(patternExpr string) bool     { return true }
func (fakePhone) StopRinging()                     {}

type fakeToll struct{}

func (fakeToll) IsTimeLow() bool                      { return false }
func (fakeToll) TimeLeftSeconds() (float64, bool)     { return 0, false }
func (fakeToll) CurrentCallRate() uint                { return 0 }
func (fakeToll) IsCurrentCallFree() bool              { return true }
func (fakeToll) IsAwaitingDeposit() bool              { return false }

type fakeLog struct{}

func (fakeLog) Info(msg string, args ...any)  {}
func (fakeLog) Warn(msg string, args ...any)  {}
func (fakeLog) Error(msg string, args ...any) {}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestLoadFileUnknownBehaviorIsFatal(t *testing.T) {
	path := writeScript(t, `{"name":"x","behavior":"nonexistent"}`)
	if _, err := LoadFile(path, fakeCaps{}); err == nil {
		t.Fatal("LoadFile() err = nil, want error for unknown behavior")
	}
}

func TestLoadFileRequiresName(t *testing.T) {
	path := writeScript(t, `{"behavior":"answer"}`)
	if _, err := LoadFile(path, fakeCaps{}); err == nil {
		t.Fatal("LoadFile() err = nil, want error for missing name")
	}
}

func TestLoadFileSetsMetadata(t *testing.T) {
	path := writeScript(t, `{"name":"alice","phone_number":"100","role":"normal","custom_price":15,"behavior":"answer"}`)
	h, err := LoadFile(path, fakeCaps{})
	if err != nil {
		t.Fatalf("LoadFile() err = %v", err)
	}
	meta := h.Metadata()
	if meta.Name != "alice" || meta.PhoneNumber != "100" || meta.Role != RoleNormal {
		t.Fatalf("Metadata() = %+v, unexpected", meta)
	}
	if meta.CustomPrice == nil || *meta.CustomPrice != 15 {
		t.Fatalf("Metadata().CustomPrice = %v, want 15", meta.CustomPrice)
	}
}

func TestSetIDRoundTrips(t *testing.T) {
	path := writeScript(t, `{"name":"bob","behavior":"answer"}`)
	h, err := LoadFile(path, fakeCaps{})
	if err != nil {
		t.Fatalf("LoadFile() err = %v", err)
	}
	h.SetID(7)
	if got := h.ID(); got != 7 {
		t.Fatalf("ID() = %d, want 7", got)
	}
}

func TestSuspendedAgentTicksIdle(t *testing.T) {
	path := writeScript(t, `{"name":"carl","behavior":"answer"}`)
	h, err := LoadFile(path, fakeCaps{})
	if err != nil {
		t.Fatalf("LoadFile() err = %v", err)
	}
	h.SetSuspended(true)
	intent, cont, err := h.Tick(NoneResponse)
	if err != nil {
		t.Fatalf("Tick() err = %v", err)
	}
	if intent.Kind != IntentIdle || cont != NextAgent {
		t.Fatalf("Tick() on suspended agent = (%v, %v), want (Idle, NextAgent)", intent, cont)
	}
}

func TestAnswerBehaviorAcceptsIncomingCall(t *testing.T) {
	path := writeScript(t, `{"name":"dana","behavior":"answer"}`)
	h, err := LoadFile(path, fakeCaps{})
	if err != nil {
		t.Fatalf("LoadFile() err = %v", err)
	}
	_ = h.TransitionState(StateIncomingCall)
	intent, cont, err := h.Tick(NoneResponse)
	if err != nil {
		t.Fatalf("Tick() err = %v", err)
	}
	if intent.Kind != IntentAcceptCall || cont != ThisAgent {
		t.Fatalf("Tick() = (%v, %v), want (AcceptCall, ThisAgent)", intent, cont)
	}
}

func TestCollectorBehaviorCollectsDigitsThenEnds(t *testing.T) {
	path := writeScript(t, `{"name":"pin","behavior":"collector","params":{"num_digits":2}}`)
	h, err := LoadFile(path, fakeCaps{})
	if err != nil {
		t.Fatalf("LoadFile() err = %v", err)
	}
	_ = h.TransitionState(StateCall)

	intent, _, err := h.Tick(NoneResponse)
	if err != nil || intent.Kind != IntentReadDigit {
		t.Fatalf("Tick() = (%v, %v), want ReadDigit", intent, err)
	}
	intent, _, err = h.Tick(DigitResponse('4'))
	if err != nil || intent.Kind != IntentReadDigit {
		t.Fatalf("Tick() after 1 digit = (%v, %v), want ReadDigit", intent, err)
	}
	intent, _, err = h.Tick(DigitResponse('2'))
	if err != nil || intent.Kind != IntentEndCall {
		t.Fatalf("Tick() after 2 digits = (%v, %v), want EndCall", intent, err)
	}
}
