package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"parrot/api"
	"parrot/audio"
	"parrot/encoder"
	"parrot/feedback"
	"parrot/practice"
)

type nopSink struct{}

func (nopSink) State(practice.UIState) {}
func (nopSink) AudioLevel(float64)     {}
func (nopSink) RecordingTick(float64)  {}

type stubServer struct{}

func (stubServer) RandomSentence(_ context.Context, level api.Difficulty) (api.Sentence, error) {
	return api.Sentence{Text: "Red lorry, yellow lorry.", Difficulty: string(level)}, nil
}

func (stubServer) Evaluate(context.Context, api.EvaluationRequest) (*api.Evaluation, error) {
	return nil, errors.New("not scoring in this test")
}

func testModel(t *testing.T) tuiModel {
	t.Helper()
	rec := audio.NewRecorder(audio.NewFakeContextSamples(nil), nil, captureConfig())
	ctl := practice.New(context.Background(), practice.Options{
		Recorder: rec,
		Server:   stubServer{},
		Sink:     nopSink{},
		Format:   encoder.FormatWAV,
	})
	m := newTUIModel(ctl, nil, "[wav | off | off]", deviceLineText(nil))
	m.width, m.height = 80, 40
	return m
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		text  string
		width int
		want  []string
	}{
		{"", 10, []string{""}},
		{"short", 10, []string{"short"}},
		{"the cat sat on the mat", 10, []string{"the cat", "sat on the", "mat"}},
		{"supercalifragilistic word", 5, []string{"supercalifragilistic", "word"}},
		{"  spaced   out  ", 20, []string{"spaced out"}},
		{"a b", 0, []string{"a", "b"}},
	}
	for _, tt := range tests {
		got := wrapText(tt.text, tt.width)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("wrapText(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
		}
	}
}

func TestRenderMeterWidth(t *testing.T) {
	for _, level := range []float64{-1, 0, 0.03, 0.5, 10} {
		if w := lipgloss.Width(renderMeter(level, meterWidth)); w != meterWidth {
			t.Errorf("renderMeter(%v) width = %d, want %d", level, w, meterWidth)
		}
	}
}

func TestViewBeforeWindowSize(t *testing.T) {
	m := testModel(t)
	m.width = 0
	if got := m.View(); got != "Loading..." {
		t.Errorf("View() = %q", got)
	}
}

func TestViewErrorPanel(t *testing.T) {
	m := testModel(t)
	m.state.Mode = practice.Idle
	m.state.ResultsVisible = true
	m.state.ErrorPanel = true
	view := m.View()
	for _, want := range []string{practice.ErrorTitle, "There was a problem"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestViewLoadingStates(t *testing.T) {
	m := testModel(t)
	m.state.Sentence = practice.LoadingSentence
	m.state.SentenceLoading = true
	m.state.ResultsVisible = true
	m.state.Loading = true
	view := m.View()
	if !strings.Contains(view, practice.LoadingSentence) {
		t.Errorf("view missing loading sentence:\n%s", view)
	}
	if !strings.Contains(view, "Analyzing your pronunciation") {
		t.Errorf("view missing analysis spinner:\n%s", view)
	}
}

func TestViewReport(t *testing.T) {
	m := testModel(t)
	m.state.Mode = practice.Results
	m.state.ResultsVisible = true
	m.state.Report = &feedback.Report{Overall: 87, Tier: feedback.TierGood, Recognized: "red lorry"}
	view := m.View()
	if !strings.Contains(view, "87") {
		t.Errorf("view missing score:\n%s", view)
	}
	if !strings.Contains(m.renderHelp(), "copy") {
		t.Error("copy hint missing with recognized text")
	}
}

func TestRecordingHidesRecordHint(t *testing.T) {
	m := testModel(t)
	m.state.Mode = practice.Recording
	m.state.RecordVisible = false
	m.state.StopVisible = true
	m.state.Indicator = practice.RecordingIndicator
	help := m.renderHelp()
	if strings.Contains(help, "record") {
		t.Errorf("help shows record while recording: %q", help)
	}
	if !strings.Contains(help, "stop") {
		t.Errorf("help missing stop: %q", help)
	}
	if _, cmd := m.Update(keyRunes("r")); cmd != nil {
		t.Error("r while recording should be ignored")
	}
}

func TestStopKeyIgnoredWhenIdle(t *testing.T) {
	m := testModel(t)
	if _, cmd := m.Update(keyRunes("x")); cmd != nil {
		t.Error("x while idle should be ignored")
	}
	if _, cmd := m.Update(keyRunes("p")); cmd != nil {
		t.Error("p without a clip should be ignored")
	}
}

func TestStaleStateIgnored(t *testing.T) {
	m := testModel(t)
	next, _ := m.Update(StateMsg{State: practice.UIState{Version: 5, Sentence: "new"}})
	next, _ = next.Update(StateMsg{State: practice.UIState{Version: 3, Sentence: "old"}})
	if got := next.(tuiModel).state.Sentence; got != "new" {
		t.Errorf("sentence = %q, want new", got)
	}
}

func TestAudioLevelOnlyWhileRecording(t *testing.T) {
	m := testModel(t)
	next, _ := m.Update(AudioLevelMsg{Level: 1})
	if lvl := next.(tuiModel).audioLevel; lvl != 0 {
		t.Errorf("idle level = %v, want 0", lvl)
	}
	m.state.Mode = practice.Recording
	next, _ = m.Update(AudioLevelMsg{Level: 1})
	if lvl := next.(tuiModel).audioLevel; lvl <= 0 {
		t.Errorf("recording level = %v, want > 0", lvl)
	}
}

func TestLevelKeys(t *testing.T) {
	m := testModel(t)
	_, cmd := m.Update(keyRunes("3"))
	if cmd == nil {
		t.Fatal("expected level command")
	}
	cmd()
	if got := m.ctl.State().Level; got != api.Medium {
		t.Errorf("level = %q, want medium", got)
	}

	m.state = m.ctl.State()
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	cmd()
	if got := m.ctl.State().Level; got != api.Hard {
		t.Errorf("level after tab = %q, want hard", got)
	}

	m.state = m.ctl.State()
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	cmd()
	if got := m.ctl.State().Level; got != api.Medium {
		t.Errorf("level after shift+tab = %q, want medium", got)
	}
	if got := m.ctl.State().Sentence; got != "Red lorry, yellow lorry." {
		t.Errorf("sentence = %q", got)
	}
}

func TestDeviceLineText(t *testing.T) {
	if got := deviceLineText(nil); got != "mic: system default" {
		t.Errorf("default = %q", got)
	}
	if got := deviceLineText(&audio.DeviceInfo{Name: "AirPods Pro"}); !strings.HasSuffix(got, "(BT!)") {
		t.Errorf("bluetooth = %q", got)
	}
}

func TestStatusLineWithoutIndicator(t *testing.T) {
	m := testModel(t)
	m.state.Mode = practice.Processing
	m.state.Indicator = ""
	lines := m.statusLines(80)
	if len(lines) == 0 || !strings.Contains(lines[0], "ready") {
		t.Errorf("status = %q, want ready line", lines)
	}

	m.state.Indicator = practice.ProcessingIndicator
	lines = m.statusLines(80)
	if len(lines) == 0 || !strings.Contains(lines[0], practice.ProcessingIndicator) {
		t.Errorf("status = %q, want processing line", lines)
	}
}
