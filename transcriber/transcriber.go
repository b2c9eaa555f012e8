package transcriber

import (
	"context"
	"errors"
)

// ErrRecognitionFailed is reported once live recognition has exhausted its
// restart budget.
var ErrRecognitionFailed = errors.New("live recognition failed")

type StreamConfig struct {
	SampleRate int
	Channels   int
	Language   string
	Model      string
}

type Update struct {
	Transcript   string
	IsFinal      bool
	SpeechFinal  bool
	FromFinalize bool
}

func (u Update) final() bool {
	return u.IsFinal || u.SpeechFinal || u.FromFinalize
}

// Stream is one recognizer connection. Send and Finalize are called from a
// single goroutine; Recv runs on another and must unblock when Close is called.
type Stream interface {
	Send(pcm []byte) error
	Finalize() error
	Recv() (Update, error)
	Close() error
}

type Recognizer interface {
	Name() string
	Dial(ctx context.Context, cfg StreamConfig) (Stream, error)
}
