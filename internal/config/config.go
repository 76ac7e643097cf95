// Package config loads and validates the exchange's startup configuration
// (spec.md §6 "Configuration"), in the teacher's flag+env-override-over-JSON
// shape (services/signaling/config/config.go).
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// PayphoneConfig is spec.md §6's payphone block.
type PayphoneConfig struct {
	Enabled                bool     `json:"enabled"`
	StandardCallRateCents  uint     `json:"standard_call_rate"`
	EnableCustomAgentRates bool     `json:"enable_custom_agent_rates"`
	TimeCreditSeconds      uint     `json:"time_credit_seconds"`
	TimeCreditWarnSeconds  uint     `json:"time_credit_warn_seconds"`
	CoinConsumeDelayMs     uint     `json:"coin_consume_delay_ms"`
	CoinValues             []uint   `json:"coin_values"`
	CoinInputPins          []int    `json:"coin_input_pins"`
	CoinInputBounceMs      []int    `json:"coin_input_bounce_ms"`
	CoinInputPull          string   `json:"coin_input_pull"`
}

// SoundConfig is spec.md §6's sound block.
type SoundConfig struct {
	MasterVolume      float64 `json:"master_volume"`
	SoulGain          float64 `json:"soul_gain"`
	SignalGain        float64 `json:"signal_gain"`
	NoiseGain         float64 `json:"noise_gain"`
	ComfortNoiseName  string  `json:"comfort_noise_name"`
	ComfortNoiseVolume float64 `json:"comfort_noise_volume"`
}

// RotaryConfig is spec.md §6's rotary.* fields.
type RotaryConfig struct {
	DigitLayout       string `json:"digit_layout"`
	FirstPulseDelayMs int    `json:"first_pulse_delay_ms"`
}

// Config is the full exchange configuration. JSON fields follow the
// spec.md §6 field names; a handful of ambient/deployment fields
// (AgentsRoot, TickHz, LogLevel, Debug) are not part of the core's
// contract but are required to run the binary and so are folded in here,
// matching the teacher's Config shape (deployment + domain fields side by side).
type Config struct {
	PhoneType                string       `json:"phone_type"`
	PDDSeconds                float64      `json:"pdd"`
	OffHookDelaySeconds        float64      `json:"off_hook_delay"`
	ManualPulseIntervalSeconds float64      `json:"manual_pulse_interval"`
	HangupDelaySeconds         float64      `json:"hangup_delay"`
	EnableSwitchHookDialing    bool         `json:"enable_switch_hook_dialing"`
	AllowIncomingCalls         bool         `json:"allow_incoming_calls"`
	Rotary                     RotaryConfig `json:"rotary"`
	DefaultRingPattern         string       `json:"default_ring_pattern"`
	Payphone                   PayphoneConfig `json:"payphone"`
	Sound                      SoundConfig  `json:"sound"`

	AgentsRoot string  `json:"agents_root"`
	TickHz     float64 `json:"tick_hz"`
	LogLevel   string  `json:"log_level"`
	Debug      bool    `json:"debug"`
}

func defaults() *Config {
	return &Config{
		PhoneType:                  "rotary",
		PDDSeconds:                 4,
		OffHookDelaySeconds:        10,
		ManualPulseIntervalSeconds: 0.3,
		HangupDelaySeconds:         0.6,
		AllowIncomingCalls:         true,
		Rotary: RotaryConfig{
			DigitLayout:       "1234567890",
			FirstPulseDelayMs: 200,
		},
		DefaultRingPattern: "high:2000,low:4000",
		AgentsRoot:         "agents",
		TickHz:             100,
		LogLevel:           "info",
	}
}

// Load reads path as JSON over the defaults, then applies flag/env
// overrides for the deployment fields, matching the teacher's
// flag.StringVar + os.Getenv pattern. A missing or malformed config file is
// fatal (spec.md §7 "Config invalid: fail-fast at startup").
func Load(path string, args []string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	fs := flag.NewFlagSet("exchange", flag.ContinueOnError)
	fs.StringVar(&cfg.AgentsRoot, "agents", cfg.AgentsRoot, "path to the agent scripts directory")
	fs.Float64Var(&cfg.TickHz, "tick-hz", cfg.TickHz, "scheduler tick rate")
	fs.StringVar(&cfg.LogLevel, "loglevel", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable panic-tone-on-agent-crash diagnostics")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parse flags: %w", err)
	}

	if v := os.Getenv("EXCHANGE_AGENTS_ROOT"); v != "" {
		cfg.AgentsRoot = v
	}
	if v := os.Getenv("EXCHANGE_TICK_HZ"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.TickHz = f
		}
	}
	if v := os.Getenv("EXCHANGE_LOGLEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the spec requires before startup,
// including P6 (`hangup_delay > manual_pulse_interval` when SHD enabled).
func (c *Config) Validate() error {
	if c.EnableSwitchHookDialing && c.HangupDelaySeconds <= c.ManualPulseIntervalSeconds {
		return fmt.Errorf("config: hangup_delay (%.3fs) must exceed manual_pulse_interval (%.3fs) when switch-hook dialing is enabled",
			c.HangupDelaySeconds, c.ManualPulseIntervalSeconds)
	}
	if c.TickHz <= 0 {
		return fmt.Errorf("config: tick_hz must be positive, got %v", c.TickHz)
	}
	if c.Rotary.DigitLayout == "" {
		return fmt.Errorf("config: rotary.digit_layout must not be empty")
	}
	switch c.PhoneType {
	case "rotary", "touchtone", "unknown":
	default:
		return fmt.Errorf("config: unknown phone_type %q", c.PhoneType)
	}
	return nil
}

// Seconds converts a fractional-seconds config field to a time.Duration.
func Seconds(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

// Millis converts a millisecond config field to a time.Duration.
func Millis(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }
