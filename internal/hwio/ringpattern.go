package hwio

import (
	"fmt"
	"strconv"
	"strings"
)

// RingStepKind tags the variant carried by a RingStep.
type RingStepKind int

const (
	RingLow RingStepKind = iota
	RingHigh
	RingWithCycle
	RingWithFrequency
	RingEnd
)

// RingStep is one instruction in a RingPattern's playback loop.
type RingStep struct {
	Kind      RingStepKind
	Millis    int     // duration for Low/High
	Cycles    int     // repeat count for WithCycle
	Frequency float64 // ringer frequency in Hz for WithFrequency
}

// RingPattern is an opaque (to the core) sequence of ring steps terminated
// by RingEnd, handed to the hardware output channel verbatim. The ringer
// thread interprets it by restarting its playback loop from step 0 whenever
// a new pattern is received.
type RingPattern struct {
	Steps []RingStep
}

// CompileRingPattern parses a small textual ring-pattern expression of the
// form "high:400,low:200,high:400,low:2000" (optionally with a leading
// "cycle:N," prefix) into a RingPattern. It is the Go-side equivalent of the
// script host's compile_ring_pattern(expr) capability.
func CompileRingPattern(expr string) (RingPattern, bool) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return RingPattern{}, false
	}

	var steps []RingStep
	for _, tok := range strings.Split(expr, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		parts := strings.SplitN(tok, ":", 2)
		if len(parts) != 2 {
			return RingPattern{}, false
		}
		name := strings.ToLower(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])

		switch name {
		case "low", "high":
			ms, err := strconv.Atoi(value)
			if err != nil || ms < 0 {
				return RingPattern{}, false
			}
			kind := RingLow
			if name == "high" {
				kind = RingHigh
			}
			steps = append(steps, RingStep{Kind: kind, Millis: ms})
		case "cycle":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return RingPattern{}, false
			}
			steps = append(steps, RingStep{Kind: RingWithCycle, Cycles: n})
		case "freq":
			f, err := strconv.ParseFloat(value, 64)
			if err != nil || f <= 0 {
				return RingPattern{}, false
			}
			steps = append(steps, RingStep{Kind: RingWithFrequency, Frequency: f})
		default:
			return RingPattern{}, false
		}
	}
	if len(steps) == 0 {
		return RingPattern{}, false
	}
	steps = append(steps, RingStep{Kind: RingEnd})
	return RingPattern{Steps: steps}, true
}

// String renders the pattern back to its textual form, mostly for logging.
func (p RingPattern) String() string {
	var b strings.Builder
	for i, s := range p.Steps {
		if i > 0 {
			b.WriteByte(',')
		}
		switch s.Kind {
		case RingLow:
			fmt.Fprintf(&b, "low:%d", s.Millis)
		case RingHigh:
			fmt.Fprintf(&b, "high:%d", s.Millis)
		case RingWithCycle:
			fmt.Fprintf(&b, "cycle:%d", s.Cycles)
		case RingWithFrequency:
			fmt.Fprintf(&b, "freq:%g", s.Frequency)
		case RingEnd:
			return b.String()
		}
	}
	return b.String()
}
