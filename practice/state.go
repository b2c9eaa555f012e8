package practice

import (
	"parrot/api"
	"parrot/feedback"
)

type Mode int

const (
	Idle Mode = iota
	Recording
	Processing
	Results
)

func (m Mode) String() string {
	switch m {
	case Recording:
		return "recording"
	case Processing:
		return "processing"
	case Results:
		return "results"
	}
	return "idle"
}

// Texts shown by the UI.
const (
	MicrophoneAlert     = "Error accessing microphone. Please ensure you have given permission."
	LoadingSentence     = "Loading new sentence..."
	SentenceError       = "Error loading sentence. Please try again."
	RecordingIndicator  = "Recording"
	ProcessingIndicator = "Processing..."
	ErrorTitle          = "Error Processing Speech"
	ErrorBody           = "There was a problem processing your speech. Please try again."
	NoVoiceWarning      = "no voice detected"
	LiveUnavailable     = "live transcription unavailable"
	SpeechUnavailable   = "speech synthesis unavailable"
)

// UIState is a snapshot of everything the display needs. Version grows with
// every transition.
type UIState struct {
	Version uint64
	Mode    Mode

	Sentence        string
	SentenceLevel   string // difficulty the server reported for Sentence
	SentenceLoading bool
	Level           api.Difficulty

	RecordVisible bool
	StopVisible   bool
	Indicator     string
	NoVoice       bool
	LiveText      string

	ResultsVisible bool
	Loading        bool
	Report         *feedback.Report
	ErrorPanel     bool

	Alert     string
	Notice    string
	CanReplay bool
}

// clearResults hides the results area and drops whatever it showed.
func (s *UIState) clearResults() {
	s.ResultsVisible = false
	s.Loading = false
	s.Report = nil
	s.ErrorPanel = false
	if s.Mode == Results {
		s.Mode = Idle
	}
}
