package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/oldline/exchange/internal/agent"
	"github.com/oldline/exchange/internal/banner"
	"github.com/oldline/exchange/internal/config"
	"github.com/oldline/exchange/internal/hwio"
	"github.com/oldline/exchange/internal/line"
	"github.com/oldline/exchange/internal/logger"
	"github.com/oldline/exchange/internal/registry"
	"github.com/oldline/exchange/internal/scheduler"
	"github.com/oldline/exchange/internal/sound"
	"github.com/oldline/exchange/internal/toll"
)

func main() {
	configPath := flag.String("config", "", "path to exchange.json (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath, flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, "exchange: "+err.Error())
		os.Exit(1)
	}

	log := logger.New(os.Stdout, cfg.LogLevel)
	sessionID := uuid.New()
	log = log.With("session_id", sessionID.String())

	banner.Print("Line Exchange", []banner.ConfigLine{
		{Label: "Session", Value: sessionID.String()},
		{Label: "Phone type", Value: cfg.PhoneType},
		{Label: "Agents root", Value: cfg.AgentsRoot},
		{Label: "Tick rate", Value: fmt.Sprintf("%.0f Hz", cfg.TickHz)},
		{Label: "Payphone", Value: fmt.Sprintf("%v", cfg.Payphone.Enabled)},
		{Label: "Incoming calls", Value: fmt.Sprintf("%v", cfg.AllowIncomingCalls)},
		{Label: "SHD", Value: fmt.Sprintf("%v", cfg.EnableSwitchHookDialing)},
	})

	if err := run(log, cfg, sessionID); err != nil {
		log.Error("exchange: exited with error", "error", err)
		os.Exit(1)
	}
}

// resolverBox lets the Line State Machine hold a line.Resolver before the
// Agent Registry it delegates to exists yet: the Machine only calls through
// it from inside Tick/ApplyNormalized, never during construction, so wiring
// the real *registry.Registry in after both are built is safe.
type resolverBox struct {
	reg *registry.Registry
}

func (b *resolverBox) ResolveNumber(number string) (agent.ID, bool) { return b.reg.ResolveNumber(number) }
func (b *resolverBox) ResolveName(name string) (agent.ID, bool)     { return b.reg.ResolveName(name) }
func (b *resolverBox) InterceptAgent() (agent.ID, bool)             { return b.reg.InterceptAgent() }
func (b *resolverBox) Handle(id agent.ID) (agent.Handle, bool)      { return b.reg.Handle(id) }

func run(log *slog.Logger, cfg *config.Config, sessionID uuid.UUID) error {
	ringPattern, ok := hwio.CompileRingPattern(cfg.DefaultRingPattern)
	if !ok {
		return fmt.Errorf("config: invalid default_ring_pattern %q", cfg.DefaultRingPattern)
	}

	harness := hwio.NewHarness(32)
	snd := sound.NewToneEngine()

	lineCfg := line.Config{
		PDD:                config.Seconds(cfg.PDDSeconds),
		OffHookDelay:       config.Seconds(cfg.OffHookDelaySeconds),
		AllowIncomingCalls: cfg.AllowIncomingCalls,
		DefaultRingPattern: ringPattern,
		PhoneIsRotary:      cfg.PhoneType == "rotary",
		Payphone: toll.Config{
			Enabled:                cfg.Payphone.Enabled,
			StandardCallRateCents:  cfg.Payphone.StandardCallRateCents,
			EnableCustomAgentRates: cfg.Payphone.EnableCustomAgentRates,
			TimeCreditSeconds:      cfg.Payphone.TimeCreditSeconds,
			TimeCreditWarnSeconds:  cfg.Payphone.TimeCreditWarnSeconds,
			CoinConsumeDelay:       config.Millis(int(cfg.Payphone.CoinConsumeDelayMs)),
		},
	}

	resolver := &resolverBox{}
	machine := line.New(lineCfg, resolver, snd, harness.Out, log)
	caps := machine.Capabilities(log)

	reg, err := registry.New(cfg.AgentsRoot, cfg.Payphone.Enabled, caps, log)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	resolver.reg = reg
	log.Info("exchange: agents loaded", "count", reg.Len())

	normalizer := hwio.NewNormalizer(hwio.NormalizerConfig{
		DigitLayout:              cfg.Rotary.DigitLayout,
		FirstPulseDelay:          config.Millis(cfg.Rotary.FirstPulseDelayMs),
		SwitchHookDialingEnabled: cfg.EnableSwitchHookDialing,
		SHDHangupDelay:           config.Seconds(cfg.HangupDelaySeconds),
		SHDManualPulseInterval:   config.Seconds(cfg.ManualPulseIntervalSeconds),
	})

	sched := scheduler.New(reg, machine, normalizer, harness.In, snd, cfg.Debug, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- hwio.Run(ctx, func(ctx context.Context, g *errgroup.Group) {
			// The simulated hardware harness has no real pins to debounce in
			// this build: the tick loop is driven purely by the scheduler's
			// own ticker. A hardware build registers HookPin/RotaryRestPin/
			// RotaryPulsePin/Ringer workers against g here instead.
		})
	}()

	go func() {
		period := time.Duration(float64(time.Second) / cfg.TickHz)
		errCh <- sched.Run(ctx, period)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("exchange: received signal, shutting down", "signal", sig.String())
		cancel()
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			cancel()
			return err
		}
		cancel()
	}

	unloadAgents(reg, log)
	return nil
}

// unloadAgents fires every loaded agent's on_unload hook on graceful
// shutdown, matching the teacher's defer swboard.Close() shape adapted to
// the registry's agent collection rather than a single connection.
func unloadAgents(reg *registry.Registry, log *slog.Logger) {
	reg.Each(func(id agent.ID, h agent.Handle) bool {
		if err := h.OnUnload(); err != nil {
			log.Warn("exchange: agent on_unload error", "agent_id", id, "error", err)
		}
		return true
	})
}
