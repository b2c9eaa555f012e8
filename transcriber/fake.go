package transcriber

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Fake is a scripted Recognizer. Each stream answers Finalize with an
// optional interim, one final update per segment, and an acknowledgement.
type Fake struct {
	Segments []string
	Interim  string
	// DropFirst makes the first n connections end as soon as they open.
	DropFirst int
	// DialErr fails every dial.
	DialErr error
	// NoAck suppresses the finalize acknowledgement.
	NoAck bool

	dials    atomic.Int32
	mu       sync.Mutex
	sent     int
	finalize int
}

func NewFake(segments ...string) *Fake {
	return &Fake{Segments: segments}
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Dials() int { return int(f.dials.Load()) }

func (f *Fake) SentBytes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

func (f *Fake) Finalizes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finalize
}

func (f *Fake) Dial(ctx context.Context, _ StreamConfig) (Stream, error) {
	n := int(f.dials.Add(1))
	if f.DialErr != nil {
		return nil, f.DialErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &fakeStream{owner: f, updates: make(chan Update, len(f.Segments)+2), closed: make(chan struct{})}
	if n <= f.DropFirst {
		s.dropped = true
	}
	return s, nil
}

var errFakeDropped = errors.New("connection reset by fake")

type fakeStream struct {
	owner     *Fake
	updates   chan Update
	closed    chan struct{}
	closeOnce sync.Once
	dropped   bool
}

func (s *fakeStream) Send(pcm []byte) error {
	s.owner.mu.Lock()
	s.owner.sent += len(pcm)
	s.owner.mu.Unlock()
	return nil
}

func (s *fakeStream) Finalize() error {
	f := s.owner
	f.mu.Lock()
	f.finalize++
	f.mu.Unlock()
	if f.Interim != "" {
		s.updates <- Update{Transcript: f.Interim}
	}
	for _, seg := range f.Segments {
		s.updates <- Update{Transcript: seg, IsFinal: true}
	}
	if !f.NoAck {
		s.updates <- Update{FromFinalize: true}
	}
	return nil
}

func (s *fakeStream) Recv() (Update, error) {
	if s.dropped {
		return Update{}, errFakeDropped
	}
	select {
	case u := <-s.updates:
		return u, nil
	case <-s.closed:
		return Update{}, errors.New("stream closed")
	}
}

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}
