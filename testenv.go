package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"parrot/api"
	"parrot/audio"
	"parrot/beep"
	"parrot/config"
	"parrot/encoder"
	"parrot/feedback"
	"parrot/log"
	"parrot/practice"
)

// stdoutSink prints the state changes a script can wait for or grep.
type stdoutSink struct {
	mu   sync.Mutex
	w    io.Writer
	last practice.UIState
}

func (s *stdoutSink) State(st practice.UIState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.last
	s.last = st
	if st.Mode != prev.Mode {
		fmt.Fprintf(s.w, "MODE %s\n", st.Mode)
	}
	if st.Sentence != prev.Sentence && st.Sentence != "" {
		fmt.Fprintf(s.w, "SENTENCE %s\n", st.Sentence)
	}
	if st.Level != prev.Level {
		fmt.Fprintf(s.w, "LEVEL %s\n", st.Level)
	}
	if st.NoVoice && !prev.NoVoice {
		fmt.Fprintf(s.w, "WARN %s\n", practice.NoVoiceWarning)
	}
	if st.Alert != prev.Alert && st.Alert != "" {
		fmt.Fprintf(s.w, "ALERT %s\n", st.Alert)
	}
	if st.Notice != prev.Notice && st.Notice != "" {
		fmt.Fprintf(s.w, "NOTICE %s\n", st.Notice)
	}
	if st.ErrorPanel && !prev.ErrorPanel {
		fmt.Fprintf(s.w, "ERROR %s: %s\n", practice.ErrorTitle, practice.ErrorBody)
	}
	if st.Report != nil && st.Report != prev.Report {
		fmt.Fprintf(s.w, "RESULT\n%s\n", feedback.Plain(*st.Report))
	}
}

func (s *stdoutSink) AudioLevel(float64)    {}
func (s *stdoutSink) RecordingTick(float64) {}

// stdoutPlayer stands in for the speakers.
type stdoutPlayer struct{ w io.Writer }

func (p stdoutPlayer) Play(samples []int16, sampleRate, channels int) error {
	fmt.Fprintf(p.w, "PLAY %d samples %dHz\n", len(samples), sampleRate)
	return nil
}

func runTestMode(ctx context.Context, cfg config.Config, format encoder.Format, level api.Difficulty, wavPath string) int {
	beep.Disable()

	fakeCtx, err := audio.NewFakeContext(wavPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		return 1
	}

	svc, err := newServices(cfg, stdoutPlayer{w: os.Stdout})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	rec := audio.NewRecorder(fakeCtx, nil, captureConfig())
	sink := &stdoutSink{w: os.Stdout}
	ctl := svc.controller(ctx, cfg, rec, sink, format, level)
	defer func() {
		ctl.Shutdown()
		log.SessionEnd(ctl.Evaluations())
	}()

	svc.prime(ctx)
	ctl.Next()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return 0
		case l, ok := <-lines:
			if !ok {
				return 0
			}
			line = l
		}
		if !runTestCommand(ctl, fakeCtx, strings.TrimSpace(line)) {
			return 0
		}
	}
}

// runTestCommand executes one script line and reports whether to continue.
func runTestCommand(ctl *practice.Controller, fake *audio.FakeContext, cmd string) bool {
	name, arg, _ := strings.Cut(cmd, " ")
	switch strings.ToUpper(name) {
	case "":
	case "SPEAK":
		ctl.Speak()
	case "RECORD":
		if err := ctl.Record(); err != nil {
			fmt.Printf("RECORD failed: %v\n", err)
		}
	case "STOP":
		ctl.Stop()
	case "NEXT":
		ctl.Next()
	case "LEVEL":
		level, err := api.ParseDifficulty(arg)
		if err != nil {
			fmt.Printf("LEVEL failed: %v\n", err)
			break
		}
		ctl.SelectLevel(level)
	case "REPLAY":
		if err := ctl.Replay(); err != nil {
			fmt.Printf("REPLAY failed: %v\n", err)
		}
	case "WAIT_AUDIO_DONE":
		if done := fake.AudioDone(); done != nil {
			<-done
		}
	case "SLEEP":
		if ms, err := strconv.Atoi(strings.TrimSpace(arg)); err == nil {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		}
	case "QUIT":
		return false
	default:
		fmt.Printf("unknown command %q\n", cmd)
	}
	return true
}
