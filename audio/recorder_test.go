package audio

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"parrot/encoder"
)

var testConfig = CaptureConfig{SampleRate: 16000, Channels: 1}

func ramp(n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(i % 2000)
	}
	return out
}

func TestRecorderCollectsChunks(t *testing.T) {
	samples := ramp(5000)
	ctx := NewFakeContextSamples(samples)
	rec := NewRecorder(ctx, nil, testConfig)

	var frames atomic.Uint32
	if err := rec.Start(func(data []byte, n uint32) { frames.Add(n) }); err != nil {
		t.Fatal(err)
	}
	clip := rec.Stop()
	if !rec.Stop().Empty() {
		t.Error("expected recorder to be idle after Stop")
	}

	got := clip.Samples()
	if len(got) != len(samples) {
		t.Fatalf("clip has %d samples, want %d", len(got), len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Fatalf("sample %d = %d, want %d", i, got[i], samples[i])
		}
	}
	if frames.Load() != uint32(len(samples)) {
		t.Errorf("onChunk saw %d frames, want %d", frames.Load(), len(samples))
	}
	if clip.Duration() != 312500*time.Microsecond {
		t.Errorf("Duration = %v", clip.Duration())
	}
}

func TestRecorderStartDiscardsPreviousAudio(t *testing.T) {
	ctx := NewFakeContextSamples(ramp(3000))
	rec := NewRecorder(ctx, nil, testConfig)

	if err := rec.Start(nil); err != nil {
		t.Fatal(err)
	}
	rec.Stop()
	if err := rec.Start(nil); err != nil {
		t.Fatal(err)
	}
	clip := rec.Stop()
	if len(clip.Samples()) != 3000 {
		t.Errorf("second clip has %d samples, want 3000", len(clip.Samples()))
	}
	if ctx.Opened() != 2 {
		t.Errorf("opened %d captures, want one per recording", ctx.Opened())
	}
}

func TestRecorderPermissionError(t *testing.T) {
	ctx := NewFakeContextSamples(nil)
	ctx.FailWith(errors.New("denied by user"))
	rec := NewRecorder(ctx, nil, testConfig)

	err := rec.Start(nil)
	if !errors.Is(err, ErrPermission) {
		t.Fatalf("err = %v, want ErrPermission", err)
	}
	if !rec.Stop().Empty() {
		t.Error("Stop on idle recorder should return an empty clip")
	}
}

func TestRecorderUnavailableContext(t *testing.T) {
	rec := NewRecorder(Unavailable(errors.New("no pulse server")), nil, testConfig)
	if err := rec.Start(nil); !errors.Is(err, ErrPermission) {
		t.Fatalf("err = %v, want ErrPermission", err)
	}
}

func TestRecorderRejectsDoubleStart(t *testing.T) {
	rec := NewRecorder(NewFakeContextSamples(ramp(10)), nil, testConfig)
	if err := rec.Start(nil); err != nil {
		t.Fatal(err)
	}
	defer rec.Stop()
	if err := rec.Start(nil); err == nil {
		t.Error("expected error on second Start")
	}
}

func TestLevel(t *testing.T) {
	if Level(nil) != 0 {
		t.Error("empty data should have zero level")
	}
	full := []byte{0xff, 0x7f, 0x00, 0x80} // 32767, -32768
	if l := Level(full); l < 0.99 {
		t.Errorf("Level = %f, want ~1", l)
	}
}

func TestFakeContextLoadsWAV(t *testing.T) {
	want := ramp(4000)
	enc, err := encoder.Encode(encoder.FormatWAV, want)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "ramp.wav")
	if err := os.WriteFile(path, enc.Data, 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, err := NewFakeContext(path, false)
	if err != nil {
		t.Fatalf("NewFakeContext: %v", err)
	}
	rec := NewRecorder(ctx, nil, testConfig)
	if err := rec.Start(nil); err != nil {
		t.Fatal(err)
	}
	got := rec.Stop().Samples()
	if len(got) != len(want) {
		t.Fatalf("samples = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestFakeContextRejectsNonWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("not audio at all, just some text"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFakeContext(path, false); err == nil {
		t.Fatal("expected error for non-WAV input")
	}
}
