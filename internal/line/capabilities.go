package line

import (
	"log/slog"
	"time"

	"github.com/oldline/exchange/internal/agent"
	"github.com/oldline/exchange/internal/hwio"
	"github.com/oldline/exchange/internal/sound"
)

// Capabilities builds the agent.Capabilities table bound to this Machine,
// the concrete implementation of the script-host capability boundary
// spec.md §6 describes and internal/agent/capabilities.go declares as
// interfaces. One instance is shared by every agent loaded against this line.
func (m *Machine) Capabilities(log *slog.Logger) agent.Capabilities {
	return &capabilities{m: m, log: log}
}

type capabilities struct {
	m   *Machine
	log *slog.Logger
}

func (c *capabilities) Sound() agent.SoundCapability { return soundCap{snd: c.m.snd} }
func (c *capabilities) Phone() agent.PhoneCapability  { return phoneCap{m: c.m} }
func (c *capabilities) Toll() agent.TollCapability    { return tollCap{m: c.m} }
func (c *capabilities) Log() agent.LogCapability      { return logCap{log: c.log} }

type soundCap struct{ snd sound.Engine }

func (s soundCap) Play(path string, channel int, interrupt bool) error {
	return s.snd.Play(path, sound.Channel(channel), interrupt, sound.PlayOptions{})
}
func (s soundCap) Stop(channel int) { s.snd.Stop(sound.Channel(channel)) }
func (s soundCap) PlayDTMF(digit rune, durationMs float64, volume float64) error {
	return s.snd.PlayDTMF(digit, durationMs, volume)
}

type phoneCap struct{ m *Machine }

func (p phoneCap) LastCallerID() (agent.ID, bool) {
	if p.m.ctx.LastCallerID == nil {
		return 0, false
	}
	return *p.m.ctx.LastCallerID, true
}
func (p phoneCap) LastDialedNumber() (string, bool) {
	if p.m.ctx.LastDialedNumber == "" {
		return "", false
	}
	return p.m.ctx.LastDialedNumber, true
}
func (p phoneCap) Dial(number string) {
	for _, d := range number {
		p.m.ctx.PushDigit(d)
	}
}
func (p phoneCap) IsRotary() bool             { return p.m.cfg.PhoneIsRotary }
func (p phoneCap) IsRotaryDialResting() bool  { return true } // always true: the rest state lives in the Normalizer, which the Machine does not see
func (p phoneCap) IsOnHook() bool             { return p.m.state.IsIdleOrRinging() }
func (p phoneCap) Ring(patternExpr string) bool {
	pattern, ok := hwio.CompileRingPattern(patternExpr)
	if !ok {
		return false
	}
	return p.m.sendOutput(hwio.RingSignal(pattern))
}
func (p phoneCap) StopRinging() { p.m.sendOutput(hwio.StopRingSignal()) }

type tollCap struct{ m *Machine }

func (t tollCap) IsTimeLow() bool {
	return t.m.toll.IsTimeCreditLow(time.Now(), t.m.state == StateConnected, t.m.isCurrentCallFree())
}
func (t tollCap) TimeLeftSeconds() (float64, bool) {
	if !t.m.cfg.Payphone.Enabled || t.m.cfg.Payphone.TimeCreditSeconds == 0 {
		return 0, false
	}
	return t.m.toll.RemainingTimeCredit(time.Now()).Seconds(), true
}
func (t tollCap) CurrentCallRate() uint { return t.m.currentCallRateCents() }
func (t tollCap) IsCurrentCallFree() bool { return t.m.isCurrentCallFree() }
func (t tollCap) IsAwaitingDeposit() bool { return t.m.toll.IsAwaitingDeposit() }

type logCap struct{ log *slog.Logger }

func (l logCap) Info(msg string, args ...any)  { l.log.Info(msg, args...) }
func (l logCap) Warn(msg string, args ...any)  { l.log.Warn(msg, args...) }
func (l logCap) Error(msg string, args ...any) { l.log.Error(msg, args...) }
