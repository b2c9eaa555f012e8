package audio

import (
	"fmt"
	"sync"
	"time"
)

// Clip is a finished recording: mono PCM16 at the capture sample rate.
type Clip struct {
	pcm        []byte
	SampleRate int
}

func (c Clip) Samples() []int16 { return Samples(c.pcm) }
func (c Clip) PCM() []byte      { return c.pcm }
func (c Clip) Empty() bool      { return len(c.pcm) < 2 }

func (c Clip) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(c.pcm)/2) * time.Second / time.Duration(c.SampleRate)
}

// Recorder owns one capture at a time. The device is acquired in Start and
// released in Stop.
type Recorder struct {
	ctx    Context
	device *DeviceInfo
	config CaptureConfig

	mu      sync.Mutex
	capture CaptureDevice
	chunks  [][]byte
	size    int
}

func NewRecorder(ctx Context, device *DeviceInfo, config CaptureConfig) *Recorder {
	return &Recorder{ctx: ctx, device: device, config: config}
}

// Start discards any buffered audio and begins capturing. Every fragment is
// buffered and then passed to onChunk, which may be nil.
func (r *Recorder) Start(onChunk DataCallback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capture != nil {
		return fmt.Errorf("recorder already started")
	}
	r.chunks = nil
	r.size = 0

	capture, err := r.ctx.NewCapture(r.device, r.config)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermission, err)
	}
	capture.SetCallback(func(data []byte, frameCount uint32) {
		if len(data) == 0 {
			return
		}
		chunk := make([]byte, len(data))
		copy(chunk, data)
		r.mu.Lock()
		if r.capture != capture {
			r.mu.Unlock()
			return
		}
		r.chunks = append(r.chunks, chunk)
		r.size += len(chunk)
		r.mu.Unlock()
		if onChunk != nil {
			onChunk(chunk, frameCount)
		}
	})
	// the callback takes r.mu, so it must not be held while the backend starts
	r.capture = capture
	r.mu.Unlock()
	err = capture.Start()
	r.mu.Lock()
	if err != nil {
		capture.ClearCallback()
		capture.Close()
		r.capture = nil
		return fmt.Errorf("%w: %v", ErrPermission, err)
	}
	return nil
}

// Stop ends the capture, releases the device, and returns the buffered audio.
// Stop on an idle recorder returns an empty clip.
func (r *Recorder) Stop() Clip {
	r.mu.Lock()
	capture := r.capture
	r.mu.Unlock()

	clip := Clip{SampleRate: int(r.config.SampleRate)}
	if capture == nil {
		return clip
	}
	capture.Stop()
	capture.ClearCallback()
	capture.Close()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.capture = nil
	clip.pcm = make([]byte, 0, r.size)
	for _, c := range r.chunks {
		clip.pcm = append(clip.pcm, c...)
	}
	r.chunks = nil
	r.size = 0
	return clip
}
