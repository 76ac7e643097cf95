package hwio

import (
	"testing"
	"time"
)

func testCfg() NormalizerConfig {
	return NormalizerConfig{
		DigitLayout:              "1234567890",
		FirstPulseDelay:          50 * time.Millisecond,
		SwitchHookDialingEnabled: false,
	}
}

func TestPulsesToDigitBijection(t *testing.T) {
	n := NewNormalizer(testCfg())
	for count := 1; count <= len(n.cfg.DigitLayout); count++ {
		digit, ok := n.pulsesToDigit(count)
		if !ok {
			t.Fatalf("pulsesToDigit(%d) ok=false, want true", count)
		}
		want := rune(n.cfg.DigitLayout[count-1])
		if digit != want {
			t.Errorf("pulsesToDigit(%d) = %q, want %q", count, digit, want)
		}
	}
	if _, ok := n.pulsesToDigit(0); ok {
		t.Error("pulsesToDigit(0) ok=true, want false")
	}
	if _, ok := n.pulsesToDigit(len(n.cfg.DigitLayout) + 1); ok {
		t.Error("pulsesToDigit(out of range) ok=true, want false")
	}
}

func TestHandleHookStateOffHookFromIdleIsPickUp(t *testing.T) {
	n := NewNormalizer(testCfg())
	now := time.Now()
	evs := n.HandleHookState(false, false, now, LineContext{IsIdle: true, IsIdleOrRinging: true})
	if len(evs) != 1 || evs[0].Kind != NormPickUp {
		t.Fatalf("HandleHookState() = %+v, want [NormPickUp]", evs)
	}
}

func TestHandleHookStateOffHookFromIdleRingingIsAnswer(t *testing.T) {
	n := NewNormalizer(testCfg())
	now := time.Now()
	evs := n.HandleHookState(false, false, now, LineContext{IsIdleRinging: true, IsIdleOrRinging: true})
	if len(evs) != 1 || evs[0].Kind != NormAnswer {
		t.Fatalf("HandleHookState() = %+v, want [NormAnswer]", evs)
	}
}

func TestHandleHookStateOnHookMidCallHangsUpWithoutSHD(t *testing.T) {
	n := NewNormalizer(testCfg())
	now := time.Now()
	n.HandleHookState(false, false, now, LineContext{IsIdle: true, IsIdleOrRinging: true}) // off-hook first

	evs := n.HandleHookState(true, false, now.Add(time.Second), LineContext{})
	if len(evs) != 1 || evs[0].Kind != NormHangUp {
		t.Fatalf("HandleHookState() = %+v, want [NormHangUp]", evs)
	}
}

func TestHandleHookStateOnHookMidCallWithSHDDoesNotHangUpImmediately(t *testing.T) {
	cfg := testCfg()
	cfg.SwitchHookDialingEnabled = true
	n := NewNormalizer(cfg)
	now := time.Now()
	n.HandleHookState(false, false, now, LineContext{IsIdle: true, IsIdleOrRinging: true}) // off-hook first

	evs := n.HandleHookState(true, false, now.Add(time.Second), LineContext{})
	if len(evs) != 0 {
		t.Fatalf("HandleHookState() = %+v, want no events while SHD is enabled", evs)
	}
}

func TestRotaryPulseNoiseFilter(t *testing.T) {
	n := NewNormalizer(testCfg())
	now := time.Now()
	ctx := LineContext{}

	n.HandleRotaryRest(false, now, ctx) // lift off rest

	// A pulse arriving immediately (within FirstPulseDelay) is discarded.
	n.HandleRotaryPulse(now.Add(10*time.Millisecond), ctx)
	if n.pendingPulseCount != 0 {
		t.Fatalf("pendingPulseCount = %d, want 0 (pulse within noise window discarded)", n.pendingPulseCount)
	}

	// A pulse arriving after FirstPulseDelay counts.
	n.HandleRotaryPulse(now.Add(60*time.Millisecond), ctx)
	if n.pendingPulseCount != 1 {
		t.Fatalf("pendingPulseCount = %d, want 1", n.pendingPulseCount)
	}
}

func TestRotaryRestCommitsDigit(t *testing.T) {
	n := NewNormalizer(testCfg())
	now := time.Now()
	ctx := LineContext{}

	n.HandleRotaryRest(false, now, ctx)
	for i := 0; i < 3; i++ {
		n.HandleRotaryPulse(now.Add(time.Duration(60+i*20)*time.Millisecond), ctx)
	}
	evs := n.HandleRotaryRest(true, now.Add(200*time.Millisecond), ctx)
	if len(evs) != 1 || evs[0].Kind != NormDigit || evs[0].Digit != '3' {
		t.Fatalf("HandleRotaryRest() = %+v, want a single NormDigit('3')", evs)
	}
}

func TestSHDCommitsDigitAfterManualPulseInterval(t *testing.T) {
	cfg := testCfg()
	cfg.SwitchHookDialingEnabled = true
	cfg.SHDManualPulseInterval = 100 * time.Millisecond
	cfg.SHDHangupDelay = 2 * time.Second
	n := NewNormalizer(cfg)

	now := time.Now()
	ctx := LineContext{}
	n.HandleHookState(false, false, now, LineContext{IsIdle: true, IsIdleOrRinging: true}) // off-hook, mid-call begins
	n.HandleHookState(true, false, now.Add(5*time.Millisecond), ctx)                       // tap down
	n.HandleHookState(false, false, now.Add(15*time.Millisecond), ctx)                     // tap up: pulse 1
	n.HandleHookState(true, false, now.Add(25*time.Millisecond), ctx)                      // tap down
	n.HandleHookState(false, false, now.Add(35*time.Millisecond), ctx)                     // tap up: pulse 2

	later := now.Add(235 * time.Millisecond)
	evs := n.Tick(later, ctx)
	if len(evs) != 1 || evs[0].Kind != NormDigit || evs[0].Digit != '2' {
		t.Fatalf("Tick() = %+v, want a single NormDigit('2') from 2 SHD pulses", evs)
	}
}

func TestSHDForcesHangupAfterHangupDelay(t *testing.T) {
	cfg := testCfg()
	cfg.SwitchHookDialingEnabled = true
	cfg.SHDManualPulseInterval = 100 * time.Millisecond
	cfg.SHDHangupDelay = 500 * time.Millisecond
	n := NewNormalizer(cfg)

	now := time.Now()
	ctx := LineContext{}
	n.HandleHookState(false, false, now, LineContext{IsIdle: true, IsIdleOrRinging: true}) // off-hook, mid-call begins
	n.HandleHookState(true, false, now.Add(10*time.Millisecond), ctx)                      // on-hook and stays

	evs := n.Tick(now.Add(600*time.Millisecond), ctx)
	if len(evs) != 1 || evs[0].Kind != NormSHDHangUp {
		t.Fatalf("Tick() = %+v, want a single NormSHDHangUp", evs)
	}
}
