package sound

import (
	"fmt"
	"math"
	"sync"

	"github.com/zaf/g711"
)

const sampleRate = 8000

// dtmfRow and dtmfCol give the dual-tone frequency pair for each DTMF
// character, per the standard touch-tone keypad layout.
var dtmfRow = map[rune]float64{
	'1': 697, '2': 697, '3': 697, 'A': 697,
	'4': 770, '5': 770, '6': 770, 'B': 770,
	'7': 852, '8': 852, '9': 852, 'C': 852,
	'*': 941, '0': 941, '#': 941, 'D': 941,
}

var dtmfCol = map[rune]float64{
	'1': 1209, '4': 1209, '7': 1209, '*': 1209,
	'2': 1336, '5': 1336, '8': 1336, '0': 1336,
	'3': 1477, '6': 1477, '9': 1477, '#': 1477,
	'A': 1633, 'B': 1633, 'C': 1633, 'D': 1633,
}

// ToneEngine is a reference Engine implementation that synthesizes preset
// call-progress tones and DTMF digits as G.711 µ-law sample buffers. It
// performs no network transport and no physical playback — it exists so the
// core's tone-orchestration logic (spec.md §4.D "Tone/mute orchestration")
// can be exercised end-to-end in tests and the demo binary, standing in for
// the opaque hardware audio mixer the core calls through Engine.
type ToneEngine struct {
	mu      sync.Mutex
	busy    map[Channel]bool
	muted   map[Channel]bool
	volume  map[Channel]float64
	lastBuf map[Channel][]byte // last buffer synthesized per channel, for tests
}

// NewToneEngine creates a ToneEngine with every channel idle and unmuted.
func NewToneEngine() *ToneEngine {
	return &ToneEngine{
		busy:    make(map[Channel]bool),
		muted:   make(map[Channel]bool),
		volume:  make(map[Channel]float64),
		lastBuf: make(map[Channel][]byte),
	}
}

func (e *ToneEngine) synthesize(freqs []float64, ms float64) []byte {
	n := int(sampleRate * ms / 1000)
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		var s float64
		for _, f := range freqs {
			s += math.Sin(2 * math.Pi * f * float64(i) / sampleRate)
		}
		if len(freqs) > 0 {
			s /= float64(len(freqs))
		}
		sample := int16(s * 0.8 * 32767)
		pcm[i*2] = byte(sample & 0xFF)
		pcm[i*2+1] = byte((sample >> 8) & 0xFF)
	}
	return g711.EncodeUlaw(pcm)
}

func (e *ToneEngine) playBuf(channel Channel, buf []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy[channel] = true
	e.lastBuf[channel] = buf
}

// Play implements Engine. The path is opaque to the reference engine: it is
// treated as a sample name and synthesized as silence, since real sample
// banks are a script-host/asset concern outside the core's boundary.
func (e *ToneEngine) Play(path string, channel Channel, interrupt bool, opts PlayOptions) error {
	if !interrupt && e.ChannelBusy(channel) {
		return nil
	}
	e.playBuf(channel, e.synthesize(nil, 50))
	return nil
}

func (e *ToneEngine) Stop(channel Channel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy[channel] = false
}

func (e *ToneEngine) StopAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for ch := range e.busy {
		e.busy[ch] = false
	}
}

func (e *ToneEngine) StopAllExcept(channel Channel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for ch := range e.busy {
		if ch != channel {
			e.busy[ch] = false
		}
	}
}

func (e *ToneEngine) StopAllNonsignal() {
	e.mu.Lock()
	skip := map[Channel]bool{ChannelSignalIn: true, ChannelSignalOut: true}
	e.mu.Unlock()
	for ch := range e.busy {
		if !skip[ch] {
			e.Stop(ch)
		}
	}
}

func (e *ToneEngine) ChannelBusy(channel Channel) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy[channel]
}

func (e *ToneEngine) SetMuted(channel Channel, muted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.muted[channel] = muted
}

// Muted reports the channel's mute state, for tests.
func (e *ToneEngine) Muted(channel Channel) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted[channel]
}

func (e *ToneEngine) SetVolume(channel Channel, volume float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume[channel] = volume
}

func (e *ToneEngine) Fade(channel Channel, to float64, duration float64) {
	e.SetVolume(channel, to)
}

func (e *ToneEngine) PlayDialTone()   { e.playBuf(ChannelSignalIn, e.synthesize([]float64{350, 440}, 200)) }
func (e *ToneEngine) PlayBusyTone()   { e.playBuf(ChannelSignalIn, e.synthesize([]float64{480, 620}, 500)) }
func (e *ToneEngine) PlayFastBusyTone() {
	e.playBuf(ChannelSignalIn, e.synthesize([]float64{480, 620}, 250))
}
func (e *ToneEngine) PlayRingbackTone() {
	e.playBuf(ChannelSignalIn, e.synthesize([]float64{440, 480}, 2000))
}
func (e *ToneEngine) PlayOffHookTone() {
	e.playBuf(ChannelSignalIn, e.synthesize([]float64{1400, 2060, 2450, 2600}, 100))
}
func (e *ToneEngine) PlayPanicTone() {
	e.playBuf(ChannelSignalOut, e.synthesize([]float64{2600}, 150))
}
func (e *ToneEngine) PlaySpecialInfo(tone SpecialInfoTone) {
	e.playBuf(ChannelSignalIn, e.synthesize([]float64{913.8, 1370.6}, 330))
}

// PlayDTMF synthesizes and "plays" the dual-tone signal for digit.
func (e *ToneEngine) PlayDTMF(digit rune, duration float64, volume float64) error {
	row, ok1 := dtmfRow[digit]
	col, ok2 := dtmfCol[digit]
	if !ok1 || !ok2 {
		return fmt.Errorf("sound: invalid DTMF digit %q", digit)
	}
	ms := duration
	if ms <= 0 {
		ms = 200
	}
	e.playBuf(ChannelSignalOut, e.synthesize([]float64{row, col}, ms))
	return nil
}
