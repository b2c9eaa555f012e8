package doctor

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"parrot/api"
	"parrot/audio"
	"parrot/transcriber"
)

type stubServer struct {
	primeErr error
	token    string
	sentence api.Sentence
	err      error
}

func (s *stubServer) Prime(context.Context) error { return s.primeErr }
func (s *stubServer) CSRFToken() string           { return s.token }

func (s *stubServer) RandomSentence(context.Context, api.Difficulty) (api.Sentence, error) {
	return s.sentence, s.err
}

type stubVoice struct {
	spoken []string
	err    error
}

func (v *stubVoice) Speak(_ context.Context, text string) error {
	v.spoken = append(v.spoken, text)
	return v.err
}

func tone(n int, amp float64) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = int16(amp * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	return s
}

func runDoctor(t *testing.T, opts Options, input string) (int, string) {
	t.Helper()
	var out bytes.Buffer
	opts.In = strings.NewReader(input)
	opts.Out = &out
	opts.RecordFor = 20 * time.Millisecond
	code := Run(context.Background(), opts)
	return code, out.String()
}

func healthyOptions() (Options, *stubVoice) {
	voice := &stubVoice{}
	return Options{
		Server:      &stubServer{token: "tok", sentence: api.Sentence{Text: "Hello there."}},
		Audio:       audio.NewFakeContextSamples(tone(16000, 8000)),
		Recognizer:  transcriber.NewFake("hello there"),
		Stream:      transcriber.StreamConfig{SampleRate: 16000, Channels: 1},
		Synthesizer: voice,
	}, voice
}

func TestRunAllPass(t *testing.T) {
	opts, voice := healthyOptions()
	code, out := runDoctor(t, opts, "\ny\ny\n")
	if code != 0 {
		t.Fatalf("exit code = %d, output:\n%s", code, out)
	}
	for _, want := range []string{
		"Sentence: Hello there.",
		"PASS: microphone captures speech",
		"Transcribed text: hello there",
		"All checks passed!",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if len(voice.spoken) != 1 || voice.spoken[0] != testSentence {
		t.Errorf("spoken = %q", voice.spoken)
	}
}

func TestRunServerFailure(t *testing.T) {
	opts, _ := healthyOptions()
	opts.Server = &stubServer{primeErr: errors.New("connection refused")}
	code, out := runDoctor(t, opts, "\ny\ny\n")
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(out, "FAIL: cannot reach server: connection refused") {
		t.Errorf("output:\n%s", out)
	}
}

func TestRunSilentMicrophoneSkipsTranscription(t *testing.T) {
	opts, _ := healthyOptions()
	opts.Audio = audio.NewFakeContextSamples(make([]int16, 16000))
	rec := transcriber.NewFake("never")
	opts.Recognizer = rec
	code, out := runDoctor(t, opts, "\ny\n")
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(out, "no voice detected") || !strings.Contains(out, "SKIP: needs a working microphone") {
		t.Errorf("output:\n%s", out)
	}
	if rec.Dials() != 0 {
		t.Errorf("recognizer dialed %d times", rec.Dials())
	}
}

func TestRunMicrophoneUnavailable(t *testing.T) {
	opts, _ := healthyOptions()
	opts.Audio = audio.Unavailable(errors.New("no backend"))
	code, out := runDoctor(t, opts, "\ny\n")
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(out, "FAIL: cannot open microphone") {
		t.Errorf("output:\n%s", out)
	}
}

func TestRunTranscriptionRejected(t *testing.T) {
	opts, _ := healthyOptions()
	code, out := runDoctor(t, opts, "\nn\ny\n")
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(out, "FAIL: transcription not confirmed") {
		t.Errorf("output:\n%s", out)
	}
}

func TestRunSkipsUnconfiguredServices(t *testing.T) {
	opts, _ := healthyOptions()
	opts.Recognizer = nil
	opts.Synthesizer = nil
	code, out := runDoctor(t, opts, "\n")
	if code != 0 {
		t.Fatalf("exit code = %d, output:\n%s", code, out)
	}
	if strings.Count(out, "SKIP:") != 2 {
		t.Errorf("output:\n%s", out)
	}
}

func TestRunSpeechFailure(t *testing.T) {
	opts, voice := healthyOptions()
	voice.err = errors.New("401 unauthorized")
	code, out := runDoctor(t, opts, "\ny\n")
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(out, "FAIL: speech synthesis: 401 unauthorized") {
		t.Errorf("output:\n%s", out)
	}
}
