package practice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"parrot/api"
	"parrot/audio"
	"parrot/beep"
	"parrot/encoder"
	"parrot/feedback"
	"parrot/log"
)

var ErrBusy = errors.New("a recording is already in progress")

type Recorder interface {
	Start(onChunk audio.DataCallback) error
	Stop() audio.Clip
}

// Transcriber is one live recognition session. transcriber.Live satisfies it.
type Transcriber interface {
	Start(ctx context.Context)
	Feed(pcm []byte)
	Updates() <-chan string
	Failed() <-chan struct{}
	Close() (string, error)
}

type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

type Server interface {
	RandomSentence(ctx context.Context, level api.Difficulty) (api.Sentence, error)
	Evaluate(ctx context.Context, req api.EvaluationRequest) (*api.Evaluation, error)
}

// EventSink receives every state transition plus the high-rate meter events.
type EventSink interface {
	State(s UIState)
	AudioLevel(level float64)
	RecordingTick(seconds float64)
}

type Options struct {
	Recorder Recorder
	Server   Server
	Sink     EventSink

	// NewTranscriber returns a fresh session per recording. Nil disables
	// live transcription.
	NewTranscriber func() Transcriber
	// Synthesizer and Player are optional.
	Synthesizer Synthesizer
	Player      audio.Player

	Format        encoder.Format
	RecordingsDir string // empty: clips are not written to disk
	Level         api.Difficulty

	Tick            time.Duration
	SilenceWarn     time.Duration
	SilenceAutoStop time.Duration
}

// Controller is the practice session state machine. All methods are safe for
// concurrent use; Record, Stop, Next and Speak block until their work is done.
type Controller struct {
	opts Options
	ctx  context.Context

	// recordMu serializes the capture halves of Record and Stop.
	recordMu sync.Mutex

	mu          sync.Mutex
	state       UIState
	cycle       *cycle
	cycles      uint64
	fetches     uint64
	reference   string
	lastClip    audio.Clip
	evaluations int

	emitMu  sync.Mutex
	emitted uint64
}

func New(ctx context.Context, opts Options) *Controller {
	if opts.Tick <= 0 {
		opts.Tick = 100 * time.Millisecond
	}
	if opts.SilenceWarn <= 0 {
		opts.SilenceWarn = 8 * time.Second
	}
	if opts.Format == "" {
		opts.Format = encoder.FormatWAV
	}
	if opts.Level == "" {
		opts.Level = api.All
	}
	return &Controller{
		opts: opts,
		ctx:  ctx,
		state: UIState{
			Mode:          Idle,
			Level:         opts.Level,
			RecordVisible: true,
		},
	}
}

func (c *Controller) State() UIState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reference is the sentence evaluations are scored against.
func (c *Controller) Reference() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reference
}

func (c *Controller) Evaluations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evaluations
}

// update applies fn under the state lock and publishes the result.
func (c *Controller) update(fn func(s *UIState)) {
	c.mu.Lock()
	fn(&c.state)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap)
}

func (c *Controller) snapshotLocked() UIState {
	c.state.Version++
	return c.state
}

// emit delivers snapshots in version order and drops any that were overtaken.
func (c *Controller) emit(s UIState) {
	if c.opts.Sink == nil {
		return
	}
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	if s.Version <= c.emitted {
		return
	}
	c.emitted = s.Version
	c.opts.Sink.State(s)
}

// Speak reads the current sentence aloud.
func (c *Controller) Speak() {
	text := c.Reference()
	if text == "" {
		return
	}
	if c.opts.Synthesizer == nil {
		c.update(func(s *UIState) { s.Notice = SpeechUnavailable })
		return
	}
	if err := c.opts.Synthesizer.Speak(c.ctx, text); err != nil {
		log.Warnf("speak: %v", err)
		c.update(func(s *UIState) { s.Notice = SpeechUnavailable })
	}
}

// Record starts a new cycle. It returns ErrBusy while a recording is active
// and audio.ErrPermission when the microphone cannot be opened.
func (c *Controller) Record() error {
	c.recordMu.Lock()
	defer c.recordMu.Unlock()

	c.mu.Lock()
	if c.cycle != nil && c.cycle.capturing {
		c.mu.Unlock()
		return ErrBusy
	}
	c.cycles++
	cy := newCycle(c.cycles)
	cy.capturing = true
	c.cycle = cy
	c.state.clearResults()
	c.state.Alert = ""
	c.state.Notice = ""
	c.state.NoVoice = false
	c.state.LiveText = ""
	c.mu.Unlock()

	sink := c.opts.Sink
	err := c.opts.Recorder.Start(func(data []byte, _ uint32) {
		level := audio.Level(data)
		cy.observe(data, level)
		if sink != nil {
			sink.AudioLevel(level)
		}
	})
	if err != nil {
		log.Errorf("cycle %d: microphone: %v", cy.id, err)
		beep.PlayError()
		c.mu.Lock()
		cy.capturing = false
		c.state.Mode = Idle
		c.state.Alert = MicrophoneAlert
		c.state.RecordVisible = true
		c.state.StopVisible = false
		c.state.Indicator = ""
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.emit(snap)
		return fmt.Errorf("record: %w", err)
	}

	// the device is live, so recognition can start without a delay
	if c.opts.NewTranscriber != nil {
		if live := c.opts.NewTranscriber(); live != nil {
			live.Start(c.ctx)
			cy.attach(live)
			cy.watchDone = make(chan struct{})
			go c.watchLive(cy, live)
		}
	}
	beep.PlayStart()
	log.Infof("cycle %d: recording", cy.id)

	c.update(func(s *UIState) {
		s.Mode = Recording
		s.RecordVisible = false
		s.StopVisible = true
		s.Indicator = RecordingIndicator
	})
	go c.tick(cy)
	return nil
}

// watchLive mirrors interim transcripts into the UI and reports a dead
// recognizer once.
func (c *Controller) watchLive(cy *cycle, live Transcriber) {
	defer close(cy.watchDone)
	updates := live.Updates()
	failed := live.Failed()
	for {
		select {
		case text, ok := <-updates:
			if !ok {
				return
			}
			c.updateCycle(cy, func(s *UIState) { s.LiveText = text })
		case <-failed:
			failed = nil
			log.Warnf("cycle %d: %s", cy.id, LiveUnavailable)
			c.updateCycle(cy, func(s *UIState) { s.Notice = LiveUnavailable })
		}
	}
}

// updateCycle is update restricted to the current cycle.
func (c *Controller) updateCycle(cy *cycle, fn func(s *UIState)) {
	c.mu.Lock()
	if c.cycle != cy {
		c.mu.Unlock()
		return
	}
	fn(&c.state)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap)
}

func (c *Controller) tick(cy *cycle) {
	defer close(cy.tickerDone)
	monitor := newSilenceMonitor(c.opts.Tick, c.opts.SilenceWarn, c.opts.SilenceAutoStop)
	ticker := time.NewTicker(c.opts.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-cy.stopTicker:
			return
		case <-ticker.C:
		}
		if c.opts.Sink != nil {
			c.opts.Sink.RecordingTick(cy.elapsed())
		}
		switch monitor.Tick(cy.takeSpeech()) {
		case SilenceWarn:
			beep.PlayError()
			c.updateCycle(cy, func(s *UIState) { s.NoVoice = true })
		case SilenceWarnClear:
			c.updateCycle(cy, func(s *UIState) { s.NoVoice = false })
		case SilenceRepeat:
			beep.PlayError()
		case SilenceAutoStop:
			log.Infof("cycle %d: auto-stop after %.0fs of silence", cy.id, cy.elapsed())
			go c.stop(cy)
			return
		}
	}
}

// Stop ends the active recording and evaluates it. It is a no-op when nothing
// is recording.
func (c *Controller) Stop() {
	c.stop(nil)
}

type attempt struct {
	cycle      *cycle
	clip       audio.Clip
	encoded    encoder.Encoded
	transcript string
	reference  string
}

func (c *Controller) stop(target *cycle) {
	c.recordMu.Lock()
	c.mu.Lock()
	cy := c.cycle
	if cy == nil || !cy.capturing || (target != nil && target != cy) {
		c.mu.Unlock()
		c.recordMu.Unlock()
		return
	}
	cy.capturing = false
	c.state.Mode = Processing
	c.state.Indicator = ProcessingIndicator
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap)

	cy.stopTicking()
	// the recorder drains its last fragments before the transcriber is told
	// to finalize
	clip := c.opts.Recorder.Stop()
	beep.PlayEnd()
	log.Debugf("cycle %d: captured %.1fs, peak level %.3f", cy.id, clip.Duration().Seconds(), cy.peakLevel())

	at := attempt{cycle: cy, clip: clip}
	var g errgroup.Group
	g.Go(func() error {
		live := cy.transcriber()
		if live == nil {
			return nil
		}
		text, err := live.Close()
		<-cy.watchDone
		at.transcript = text
		if err != nil {
			log.Warnf("cycle %d: live transcription: %v", cy.id, err)
			c.updateCycle(cy, func(s *UIState) { s.Notice = LiveUnavailable })
		}
		return nil
	})
	g.Go(func() error {
		enc, err := encoder.Encode(c.opts.Format, clip.Samples())
		if err != nil {
			return err
		}
		at.encoded = enc
		c.saveClip(cy, enc)
		return nil
	})
	err := g.Wait()

	c.mu.Lock()
	c.lastClip = clip
	at.reference = c.reference
	s := &c.state
	s.Mode = Idle
	s.RecordVisible = true
	s.StopVisible = false
	s.Indicator = ""
	s.NoVoice = false
	s.CanReplay = !clip.Empty() && c.opts.Player != nil
	if at.transcript != "" {
		s.LiveText = at.transcript
	}
	s.ResultsVisible = true
	s.Loading = true
	s.Report = nil
	s.ErrorPanel = false
	snap = c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap)
	c.recordMu.Unlock()

	if err != nil {
		log.Errorf("cycle %d: %v", cy.id, err)
		c.finish(at, nil, err)
		return
	}
	ev, err := c.opts.Server.Evaluate(c.ctx, api.EvaluationRequest{
		Reference: at.reference,
		Speech:    at.transcript,
		Audio:     at.encoded.Data,
		Format:    string(c.opts.Format),
	})
	c.finish(at, ev, err)
}

// finish shows the outcome of an evaluation unless a newer cycle has started.
func (c *Controller) finish(at attempt, ev *api.Evaluation, err error) {
	c.mu.Lock()
	if c.cycle != at.cycle {
		c.mu.Unlock()
		log.Infof("cycle %d: dropping stale evaluation", at.cycle.id)
		return
	}
	s := &c.state
	s.Loading = false
	s.ResultsVisible = true
	if err != nil {
		s.Mode = Idle
		s.ErrorPanel = true
		s.Report = nil
	} else {
		report := feedback.Build(ev)
		s.Mode = Results
		s.ErrorPanel = false
		s.Report = &report
		c.evaluations++
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap)

	if err != nil {
		beep.PlayError()
		log.Errorf("cycle %d: evaluate: %v", at.cycle.id, err)
		return
	}
	c.logEvaluation(at, ev)
}

func (c *Controller) logEvaluation(at attempt, ev *api.Evaluation) {
	log.EvaluationText(ev.OverallScore, at.reference, ev.RecognizedText)
	m := log.EvaluationData{
		Cycle:       at.cycle.id,
		RequestID:   ev.Trace.RequestID,
		Format:      string(c.opts.Format),
		AudioS:      at.clip.Duration().Seconds(),
		Score:       ev.OverallScore,
		Words:       len(ev.WordScores),
		Placeholder: at.transcript == "",
		StatusCode:  ev.Trace.StatusCode,
	}
	if at.encoded.Data != nil {
		m.EncodedKB = float64(len(at.encoded.Data)) / 1024
		m.EncodeMs = float64(at.encoded.Took) / float64(time.Millisecond)
	}
	if nm := ev.Trace.Metrics; nm != nil {
		m.DNSTimeMs = float64(nm.DNS) / float64(time.Millisecond)
		m.TLSTimeMs = float64(nm.TLS) / float64(time.Millisecond)
		m.TTFBMs = float64(nm.TTFB) / float64(time.Millisecond)
		m.TotalTimeMs = float64(nm.Total) / float64(time.Millisecond)
		m.ConnReused = nm.ConnReused
	}
	log.Evaluation(m)
}

func (c *Controller) saveClip(cy *cycle, enc encoder.Encoded) {
	if c.opts.RecordingsDir == "" {
		return
	}
	if err := os.MkdirAll(c.opts.RecordingsDir, 0o755); err != nil {
		log.Warnf("recordings dir: %v", err)
		return
	}
	name := fmt.Sprintf("%s-%s%s", time.Now().Format("20060102-150405"), uuid.NewString()[:8], c.opts.Format.Ext())
	path := filepath.Join(c.opts.RecordingsDir, name)
	if err := os.WriteFile(path, enc.Data, 0o644); err != nil {
		log.Warnf("cycle %d: save clip: %v", cy.id, err)
		return
	}
	log.Debugf("cycle %d: saved %s", cy.id, path)
}

// Next fetches a sentence for the active difficulty. On failure the previous
// sentence stays the evaluation reference.
func (c *Controller) Next() {
	c.mu.Lock()
	c.fetches++
	seq := c.fetches
	level := c.state.Level
	c.state.Sentence = LoadingSentence
	c.state.SentenceLevel = ""
	c.state.SentenceLoading = true
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap)

	sentence, err := c.opts.Server.RandomSentence(c.ctx, level)

	c.mu.Lock()
	if seq != c.fetches {
		c.mu.Unlock()
		return
	}
	c.state.SentenceLoading = false
	if err != nil {
		c.state.Sentence = SentenceError
	} else {
		c.reference = sentence.Text
		c.state.Sentence = sentence.Text
		c.state.SentenceLevel = sentence.Difficulty
		c.state.clearResults()
	}
	snap = c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap)

	if err != nil {
		log.Errorf("sentence (%s): %v", level, err)
		return
	}
	log.Debugf("sentence (%s): %q", level, sentence.Text)
}

// SelectLevel switches difficulty, clears results and loads one sentence.
func (c *Controller) SelectLevel(level api.Difficulty) {
	c.update(func(s *UIState) {
		s.Level = level
		s.clearResults()
	})
	c.Next()
}

// Replay plays the last recorded clip.
func (c *Controller) Replay() error {
	c.mu.Lock()
	clip := c.lastClip
	c.mu.Unlock()
	if c.opts.Player == nil || clip.Empty() {
		return nil
	}
	if err := c.opts.Player.Play(clip.Samples(), clip.SampleRate, 1); err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	return nil
}

// Dismiss clears the alert and notice lines.
func (c *Controller) Dismiss() {
	c.update(func(s *UIState) {
		s.Alert = ""
		s.Notice = ""
	})
}

// Shutdown releases the microphone and the recognizer without evaluating.
func (c *Controller) Shutdown() {
	c.recordMu.Lock()
	defer c.recordMu.Unlock()
	c.mu.Lock()
	cy := c.cycle
	active := cy != nil && cy.capturing
	if active {
		cy.capturing = false
	}
	c.mu.Unlock()
	if !active {
		return
	}
	cy.stopTicking()
	c.opts.Recorder.Stop()
	if live := cy.transcriber(); live != nil {
		live.Close()
		<-cy.watchDone
	}
}
