package main

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"parrot/practice"
)

// TUI message types
type StateMsg struct{ State practice.UIState }
type RecordingTickMsg struct{ Duration float64 }
type AudioLevelMsg struct{ Level float64 }
type CopiedMsg struct{ Err error }

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// tuiSink forwards controller events into the running program.
type tuiSink struct{}

func (tuiSink) State(s practice.UIState)      { tuiSend(StateMsg{State: s}) }
func (tuiSink) AudioLevel(level float64)      { tuiSend(AudioLevelMsg{Level: level}) }
func (tuiSink) RecordingTick(seconds float64) { tuiSend(RecordingTickMsg{Duration: seconds}) }
