package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"
)

// ErrPermission is returned when the microphone cannot be acquired.
var ErrPermission = errors.New("microphone access denied")

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
}

// Player plays interleaved signed 16-bit samples and blocks until drained.
type Player interface {
	Play(samples []int16, sampleRate, channels int) error
}

// Level returns the RMS of little-endian PCM16 data, normalized to [0,1].
func Level(data []byte) float64 {
	n := len(data) / 2
	if n == 0 {
		return 0
	}
	var sumSquares float64
	for i := 0; i+1 < len(data); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(data[i:]))
		normalized := float64(sample) / 32768.0
		sumSquares += normalized * normalized
	}
	return math.Sqrt(sumSquares / float64(n))
}

// Samples decodes little-endian PCM16 bytes.
func Samples(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

// Unavailable returns a Context whose captures always fail with err, so the
// failure surfaces when a recording is attempted.
func Unavailable(err error) Context {
	return unavailableContext{err: err}
}

type unavailableContext struct{ err error }

func (u unavailableContext) Devices() ([]DeviceInfo, error) { return nil, u.err }
func (u unavailableContext) Close()                         {}

func (u unavailableContext) NewCapture(*DeviceInfo, CaptureConfig) (CaptureDevice, error) {
	return nil, u.err
}
