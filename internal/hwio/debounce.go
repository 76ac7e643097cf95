package hwio

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Harness is the simulated GPIO/hardware collaborator spec.md §1 places
// outside the core's boundary: a debounce worker per input pin and a single
// ringer worker, each running on its own goroutine and communicating with
// the tick loop only over the two channels spec.md §5 "Parallel threads"
// specifies. A real hardware build swaps this package out; the core only
// ever depends on the In/Out channel shapes.
type Harness struct {
	In  chan InputEvent
	Out chan OutputSignal
}

// NewHarness allocates a Harness with the given channel buffer depth.
func NewHarness(buf int) *Harness {
	return &Harness{
		In:  make(chan InputEvent, buf),
		Out: make(chan OutputSignal, buf),
	}
}

// RawEdge is one unfiltered level transition read off a simulated pin,
// timestamped at the moment it was sampled.
type RawEdge struct {
	Value bool
	At    time.Time
}

// Debounce reads raw, possibly-bouncing level edges off raw and writes a
// settled level to the returned channel each time the level has held
// steady for window. Mirrors the "per-pin worker plus an atomic debounce
// flag" contract spec.md §8 names, minus the hardware: a real GPIO driver's
// equivalent worker is swapped in for raw in a production build.
func Debounce(ctx context.Context, raw <-chan RawEdge, window time.Duration) <-chan bool {
	settled := make(chan bool, 1)
	go func() {
		defer close(settled)
		var timer *time.Timer
		var timerC <-chan time.Time
		var pending bool
		var have bool
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case e, ok := <-raw:
				if !ok {
					return
				}
				pending = e.Value
				have = true
				if timer != nil {
					timer.Stop()
				}
				timer = time.NewTimer(window)
				timerC = timer.C
			case <-timerC:
				if have {
					select {
					case settled <- pending:
					case <-ctx.Done():
						return
					}
				}
				timerC = nil
			}
		}
	}()
	return settled
}

// HookPin feeds debounced switchhook level changes into h.In as HookState
// events for as long as ctx is live.
func (h *Harness) HookPin(ctx context.Context, g *errgroup.Group, raw <-chan RawEdge, window time.Duration) {
	g.Go(func() error {
		settled := Debounce(ctx, raw, window)
		for {
			select {
			case <-ctx.Done():
				return nil
			case onHook, ok := <-settled:
				if !ok {
					return nil
				}
				select {
				case h.In <- HookState(onHook):
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
}

// RotaryRestPin feeds debounced rotary-dial resting-state changes.
func (h *Harness) RotaryRestPin(ctx context.Context, g *errgroup.Group, raw <-chan RawEdge, window time.Duration) {
	g.Go(func() error {
		settled := Debounce(ctx, raw, window)
		for {
			select {
			case <-ctx.Done():
				return nil
			case resting, ok := <-settled:
				if !ok {
					return nil
				}
				select {
				case h.In <- RotaryDialRest(resting):
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
}

// RotaryPulsePin forwards raw pulse edges without level-debouncing (a pulse
// is already an edge-triggered event); the Input Normalizer's first-pulse
// delay filter handles the noisy-dial case spec.md documents, not this pin.
func (h *Harness) RotaryPulsePin(ctx context.Context, g *errgroup.Group, raw <-chan struct{}) {
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case _, ok := <-raw:
				if !ok {
					return nil
				}
				select {
				case h.In <- RotaryDialPulse():
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
}

// Ringer consumes ring-pattern directives from h.Out and drives a simulated
// PWM callback, restarting the pattern from step 0 on every new value
// received and stopping on a nil pattern, per spec.md §5's ringer-thread
// contract.
func (h *Harness) Ringer(ctx context.Context, g *errgroup.Group, pwm func(RingStep)) {
	g.Go(func() error {
		var pattern *RingPattern
		var stepIdx int
		var timer *time.Timer
		var timerC <-chan time.Time
		stopTimer := func() {
			if timer != nil {
				timer.Stop()
				timer = nil
				timerC = nil
			}
		}
		armStep := func() {
			if pattern == nil || stepIdx >= len(pattern.Steps) {
				stopTimer()
				return
			}
			step := pattern.Steps[stepIdx]
			pwm(step)
			if step.Kind == RingEnd {
				stopTimer()
				return
			}
			timer = time.NewTimer(time.Duration(step.Millis) * time.Millisecond)
			timerC = timer.C
		}
		for {
			select {
			case <-ctx.Done():
				stopTimer()
				return nil
			case sig, ok := <-h.Out:
				if !ok {
					return nil
				}
				stopTimer()
				pattern = sig.Ring
				stepIdx = 0
				armStep()
			case <-timerC:
				stepIdx++
				armStep()
			}
		}
	})
}

// Run starts every registered worker under a shared errgroup and blocks
// until ctx is cancelled or a worker returns an error. A baseline goroutine
// that simply waits on gctx.Done() is always registered alongside whatever
// register adds: errgroup.Group.Wait() returns immediately once its
// goroutine count reaches zero, which would otherwise make Run return
// straight away on a build that registers no workers (e.g. no real pins to
// debounce), wrongly reading as a hardware failure to callers selecting on
// its result.
func Run(ctx context.Context, register func(ctx context.Context, g *errgroup.Group)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	register(gctx, g)
	return g.Wait()
}
