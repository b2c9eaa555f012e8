package beep

import (
	"math"
	"sync"

	"parrot/audio"
	"parrot/log"
)

const (
	sampleRate = 44100

	// Start beep: high pitch, short
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// End beep: medium pitch, slightly longer
	endFreq   = 900
	endVolume = 0.5
	endDecay  = 40

	// Error beep: low pitch double-beep
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30
)

var (
	mu       sync.Mutex
	player   audio.Player
	disabled bool

	startSamples []int16
	endSamples   []int16
	errorSamples []int16
	soundOnce    sync.Once
)

func initSound() {
	startSamples = generateTick(sampleRate, startFreq, 0.2, startVolume, startDecay)
	endSamples = generateTick(sampleRate, endFreq, 0.2, endVolume, endDecay)
	errorSamples = generateDoubleBeep(sampleRate, errorFreq, 0.08, 0.05, errorVolume, errorDecay)
}

// Init routes beeps to p. Until Init is called beeps are silent.
func Init(p audio.Player) {
	soundOnce.Do(initSound)
	mu.Lock()
	player = p
	mu.Unlock()
}

func Disable() {
	mu.Lock()
	disabled = true
	mu.Unlock()
}

func generateTick(sampleRate int, freq float64, duration float64, volume float64, decay float64) []int16 {
	n := int(float64(sampleRate) * duration)
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}

func generateDoubleBeep(sampleRate int, freq float64, beepDur float64, gapDur float64, volume float64, decay float64) []int16 {
	beep := generateTick(sampleRate, freq, beepDur, volume, decay)
	gap := make([]int16, int(float64(sampleRate)*gapDur))
	result := make([]int16, 0, len(beep)*2+len(gap))
	result = append(result, beep...)
	result = append(result, gap...)
	result = append(result, beep...)
	return result
}

func play(samples []int16) {
	mu.Lock()
	p, off := player, disabled
	mu.Unlock()
	if p == nil || off {
		return
	}
	go func() {
		if err := p.Play(samples, sampleRate, 1); err != nil {
			log.Warnf("beep playback: %v", err)
		}
	}()
}

func PlayStart() { play(startSamples) }
func PlayEnd()   { play(endSamples) }
func PlayError() { play(errorSamples) }
