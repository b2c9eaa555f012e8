package doctor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"parrot/api"
	"parrot/audio"
	"parrot/encoder"
	"parrot/transcriber"
)

const voiceLevel = 0.02

const testSentence = "The quick brown fox jumps over the lazy dog."

type Server interface {
	Prime(ctx context.Context) error
	CSRFToken() string
	RandomSentence(ctx context.Context, level api.Difficulty) (api.Sentence, error)
}

type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

// Options are the collaborators under test. Recognizer and Synthesizer may be
// nil, in which case their checks are skipped.
type Options struct {
	Server      Server
	Audio       audio.Context
	Device      *audio.DeviceInfo
	Recognizer  transcriber.Recognizer
	Stream      transcriber.StreamConfig
	Synthesizer Synthesizer

	RecordFor time.Duration
	In        io.Reader
	Out       io.Writer
}

type runner struct {
	opts   Options
	ctx    context.Context
	in     *bufio.Reader
	out    io.Writer
	clip   audio.Clip
	failed bool
}

// Run executes interactive diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(ctx context.Context, opts Options) int {
	if opts.RecordFor <= 0 {
		opts.RecordFor = 3 * time.Second
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	resetTerminal()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			fmt.Fprintln(opts.Out, "\nInterrupted")
			resetTerminal()
			os.Exit(1)
		case <-done:
		}
	}()

	r := &runner{opts: opts, ctx: ctx, in: bufio.NewReader(opts.In), out: opts.Out}
	r.println("parrot doctor - interactive system diagnostics")
	r.println("==============================================")

	r.checkServer()
	micOK := r.checkMicrophone()
	if micOK {
		r.checkTranscription()
	} else {
		r.section(3, "Live transcription")
		r.println("  SKIP: needs a working microphone")
	}
	r.checkSpeech()

	r.println()
	if r.failed {
		r.println("Some checks failed. See details above.")
		return 1
	}
	r.println("All checks passed!")
	return 0
}

func (r *runner) println(a ...any) { fmt.Fprintln(r.out, a...) }

func (r *runner) printf(format string, a ...any) { fmt.Fprintf(r.out, format, a...) }

func (r *runner) section(n int, title string) {
	r.println()
	r.printf("[%d/4] %s\n", n, title)
}

func (r *runner) fail(format string, a ...any) bool {
	r.printf("  FAIL: "+format+"\n", a...)
	r.failed = true
	return false
}

func (r *runner) confirm(question string) bool {
	r.printf("%s [y/n]: ", question)
	answer, _ := r.in.ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes"
}

func (r *runner) checkServer() bool {
	r.section(1, "Scoring server")

	if err := r.opts.Server.Prime(r.ctx); err != nil {
		return r.fail("cannot reach server: %v", err)
	}
	if r.opts.Server.CSRFToken() == "" {
		r.println("  Warning: server set no CSRF cookie; evaluation may be rejected")
	}
	s, err := r.opts.Server.RandomSentence(r.ctx, api.All)
	if err != nil {
		return r.fail("sentence fetch: %v", err)
	}
	r.printf("  Sentence: %s\n", s.Text)
	r.println("  PASS: server reachable")
	return true
}

func (r *runner) checkMicrophone() bool {
	r.section(2, "Microphone")

	if r.opts.Device != nil {
		r.printf("Using device: %s\n", r.opts.Device.Name)
		if audio.IsBluetooth(r.opts.Device.Name) {
			r.println("  Warning: Bluetooth headsets often capture at reduced quality")
		}
	} else {
		r.println("Using device: system default")
	}

	rec := audio.NewRecorder(r.opts.Audio, r.opts.Device, audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	})

	r.printf("Press Enter and read aloud for %.0f seconds...", r.opts.RecordFor.Seconds())
	r.in.ReadString('\n')

	var (
		mu   sync.Mutex
		peak float64
	)
	err := rec.Start(func(data []byte, _ uint32) {
		l := audio.Level(data)
		mu.Lock()
		peak = max(peak, l)
		mu.Unlock()
	})
	if err != nil {
		return r.fail("cannot open microphone: %v", err)
	}

	r.printf("  Recording")
	ticker := time.NewTicker(500 * time.Millisecond)
	deadline := time.After(r.opts.RecordFor)
wait:
	for {
		select {
		case <-ticker.C:
			r.printf(".")
		case <-deadline:
			break wait
		}
	}
	ticker.Stop()
	r.clip = rec.Stop()
	r.println(" done")

	mu.Lock()
	defer mu.Unlock()

	if r.clip.Empty() {
		return r.fail("no audio captured")
	}
	r.printf("  Captured %.1fs, peak level %.3f\n", r.clip.Duration().Seconds(), peak)
	if peak < voiceLevel {
		return r.fail("no voice detected; check the input device and its volume")
	}
	r.println("  PASS: microphone captures speech")
	return true
}

func (r *runner) checkTranscription() bool {
	r.section(3, "Live transcription")
	if r.opts.Recognizer == nil {
		r.println("  SKIP: no speech recognition key configured")
		return true
	}

	live := transcriber.NewLive(r.opts.Recognizer, transcriber.LiveConfig{Stream: r.opts.Stream})
	live.Start(r.ctx)
	pcm := r.clip.PCM()
	chunk := encoder.BlockSize * 2
	for off := 0; off < len(pcm); off += chunk {
		live.Feed(pcm[off:min(off+chunk, len(pcm))])
	}
	text, err := live.Close()
	if err != nil {
		return r.fail("%s: %v", r.opts.Recognizer.Name(), err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		text = "(no speech detected)"
	}
	r.printf("\n  Transcribed text: %s\n\n", text)
	if !r.confirm("Is this what you said?") {
		return r.fail("transcription not confirmed")
	}
	r.println("  PASS: transcription verified by user")
	return true
}

func (r *runner) checkSpeech() bool {
	r.section(4, "Speech synthesis")
	if r.opts.Synthesizer == nil {
		r.println("  SKIP: no speech synthesis key configured")
		return true
	}

	r.printf("  Playing: %s\n", testSentence)
	if err := r.opts.Synthesizer.Speak(r.ctx, testSentence); err != nil {
		return r.fail("speech synthesis: %v", err)
	}
	resetTerminal()
	if !r.confirm("Did you hear the sentence?") {
		return r.fail("playback not confirmed")
	}
	r.println("  PASS: speech synthesis verified by user")
	return true
}
