package transcriber

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"parrot/encoder"
	"parrot/log"
)

const (
	liveChunkMs    = 200
	liveChunkBytes = encoder.SampleRate * encoder.Channels * (encoder.BitsPerSample / 8) * liveChunkMs / 1000
	liveQueueLen   = 128
)

type LiveConfig struct {
	Stream          StreamConfig
	MaxRestarts     int
	RestartBackoff  time.Duration
	FinalizeTimeout time.Duration
}

func (c LiveConfig) withDefaults() LiveConfig {
	if c.MaxRestarts < 0 {
		c.MaxRestarts = 0
	}
	if c.RestartBackoff <= 0 {
		c.RestartBackoff = 250 * time.Millisecond
	}
	if c.FinalizeTimeout <= 0 {
		c.FinalizeTimeout = 2 * time.Second
	}
	return c
}

// Live keeps one recognition going for the length of a recording. Final
// segments are joined into the transcript; interim ones are only logged.
// A connection that ends before Close is redialed, at most MaxRestarts times.
type Live struct {
	rec Recognizer
	cfg LiveConfig

	audioCh chan []byte
	updates chan string
	done    chan struct{}
	failed  chan struct{}
	cancel  context.CancelFunc

	feedMu  sync.Mutex
	feedBuf []byte
	closed  bool

	mu        sync.Mutex
	started   bool
	committed string
	err       error
	result    chan struct{}
	stats     liveStats
}

type liveStats struct {
	startedAt    time.Time
	connect      time.Duration
	finalize     time.Duration
	sentChunks   int
	sentBytes    uint64
	droppedBytes uint64
	recvMessages int
	recvFinal    int
	recvInterim  int
	restarts     int
}

func NewLive(rec Recognizer, cfg LiveConfig) *Live {
	return &Live{
		rec:     rec,
		cfg:     cfg.withDefaults(),
		audioCh: make(chan []byte, liveQueueLen),
		updates: make(chan string, 16),
		done:    make(chan struct{}),
		failed:  make(chan struct{}),
		result:  make(chan struct{}),
	}
}

// Start dials in the background; audio fed before the connection is ready
// is queued.
func (l *Live) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return
	}
	l.started = true
	l.stats.startedAt = time.Now()
	ctx, l.cancel = context.WithCancel(ctx)
	go l.run(ctx)
}

// Updates carries the full committed transcript after each final segment.
// It is closed by Close.
func (l *Live) Updates() <-chan string { return l.updates }

// Failed is closed when the restart budget is exhausted.
func (l *Live) Failed() <-chan struct{} { return l.failed }

func (l *Live) Feed(pcm []byte) {
	l.feedMu.Lock()
	defer l.feedMu.Unlock()
	if l.closed {
		return
	}
	l.feedBuf = append(l.feedBuf, pcm...)
	for len(l.feedBuf) >= liveChunkBytes {
		chunk := make([]byte, liveChunkBytes)
		copy(chunk, l.feedBuf[:liveChunkBytes])
		l.feedBuf = l.feedBuf[liveChunkBytes:]
		l.enqueue(chunk)
	}
}

// enqueue never blocks the capture callback; audio is dropped while the
// queue is full or after recognition has failed.
func (l *Live) enqueue(chunk []byte) {
	select {
	case <-l.done:
		l.drop(len(chunk))
		return
	default:
	}
	select {
	case l.audioCh <- chunk:
	default:
		l.drop(len(chunk))
	}
}

func (l *Live) drop(n int) {
	l.mu.Lock()
	l.stats.droppedBytes += uint64(n)
	l.mu.Unlock()
}

// Close flushes pending audio, asks the recognizer to finalize, and waits
// for its acknowledgement before returning the transcript.
func (l *Live) Close() (string, error) {
	l.feedMu.Lock()
	if l.closed {
		l.feedMu.Unlock()
		<-l.result
		return l.final()
	}
	l.closed = true
	if len(l.feedBuf) > 0 {
		l.enqueue(l.feedBuf)
		l.feedBuf = nil
	}
	close(l.audioCh)
	l.feedMu.Unlock()

	l.mu.Lock()
	started := l.started
	l.mu.Unlock()
	if started {
		select {
		case <-l.done:
		case <-time.After(2*l.cfg.FinalizeTimeout + l.cfg.RestartBackoff*time.Duration(l.cfg.MaxRestarts)):
			log.Warn("live transcription close timeout")
			l.cancel()
			<-l.done
		}
		l.cancel()
	}
	close(l.updates)
	l.logMetrics()
	close(l.result)
	return l.final()
}

func (l *Live) final() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.TrimSpace(l.committed), l.err
}

func (l *Live) run(ctx context.Context) {
	defer close(l.done)
	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if attempt > l.cfg.MaxRestarts {
				l.fail(lastErr)
				return
			}
			l.mu.Lock()
			l.stats.restarts = attempt
			l.mu.Unlock()
			log.Warnf("live transcription restart %d/%d: %v", attempt, l.cfg.MaxRestarts, lastErr)
			select {
			case <-time.After(l.cfg.RestartBackoff * time.Duration(attempt)):
			case <-ctx.Done():
				l.fail(ctx.Err())
				return
			}
		}

		connectStart := time.Now()
		stream, err := l.rec.Dial(ctx, l.cfg.Stream)
		if err != nil {
			lastErr = err
			continue
		}
		l.mu.Lock()
		l.stats.connect = time.Since(connectStart)
		l.mu.Unlock()

		finished, err := l.pump(stream)
		if finished {
			return
		}
		lastErr = err
	}
}

// pump sends queued audio until the queue is closed (finished) or the
// connection ends early (err).
func (l *Live) pump(stream Stream) (bool, error) {
	recvErr := make(chan error, 1)
	finalized := make(chan struct{})
	go func() { recvErr <- l.receive(stream, finalized) }()

	for {
		select {
		case chunk, ok := <-l.audioCh:
			if !ok {
				l.finish(stream, recvErr, finalized)
				return true, nil
			}
			if err := stream.Send(chunk); err != nil {
				stream.Close()
				<-recvErr
				return false, fmt.Errorf("send: %w", err)
			}
			l.mu.Lock()
			l.stats.sentChunks++
			l.stats.sentBytes += uint64(len(chunk))
			l.mu.Unlock()
		case err := <-recvErr:
			stream.Close()
			if err == nil {
				err = fmt.Errorf("stream ended")
			}
			return false, err
		}
	}
}

func (l *Live) finish(stream Stream, recvErr <-chan error, finalized <-chan struct{}) {
	defer stream.Close()
	start := time.Now()
	defer func() {
		l.mu.Lock()
		l.stats.finalize = time.Since(start)
		l.mu.Unlock()
	}()

	if err := stream.Finalize(); err != nil {
		log.Warnf("live transcription finalize: %v", err)
		stream.Close()
		<-recvErr
		return
	}
	select {
	case <-finalized:
	case err := <-recvErr:
		log.Warnf("live transcription ended before finalize: %v", err)
		return
	case <-time.After(l.cfg.FinalizeTimeout):
		log.Warn("live transcription finalize timeout")
	}
	stream.Close()
	<-recvErr
}

func (l *Live) receive(stream Stream, finalized chan<- struct{}) error {
	var once sync.Once
	for {
		u, err := stream.Recv()
		if err != nil {
			return err
		}
		l.apply(u)
		if u.FromFinalize {
			once.Do(func() { close(finalized) })
		}
	}
}

func (l *Live) apply(u Update) {
	text := strings.TrimSpace(u.Transcript)

	l.mu.Lock()
	l.stats.recvMessages++
	if !u.final() {
		l.stats.recvInterim++
		l.mu.Unlock()
		if text != "" {
			log.Debugf("interim: %s", text)
		}
		return
	}
	l.stats.recvFinal++
	if text == "" {
		l.mu.Unlock()
		return
	}
	if l.committed != "" {
		l.committed += " " + text
	} else {
		l.committed = text
	}
	full := l.committed
	l.mu.Unlock()

	select {
	case l.updates <- full:
	default:
	}
}

func (l *Live) fail(err error) {
	l.mu.Lock()
	l.err = fmt.Errorf("%w: %v", ErrRecognitionFailed, err)
	l.mu.Unlock()
	log.Errorf("live transcription gave up: %v", err)
	close(l.failed)
}

func (l *Live) logMetrics() {
	l.mu.Lock()
	s := l.stats
	failed := l.err != nil
	l.mu.Unlock()
	bytesPerSec := float64(encoder.SampleRate * encoder.Channels * (encoder.BitsPerSample / 8))
	log.LiveMetrics(log.LiveMetricsData{
		ConnectMs:    float64(s.connect.Milliseconds()),
		FinalizeMs:   float64(s.finalize.Milliseconds()),
		TotalMs:      float64(time.Since(s.startedAt).Milliseconds()),
		AudioS:       float64(s.sentBytes) / bytesPerSec,
		SentChunks:   s.sentChunks,
		SentKB:       float64(s.sentBytes) / 1024,
		DroppedKB:    float64(s.droppedBytes) / 1024,
		RecvMessages: s.recvMessages,
		RecvFinal:    s.recvFinal,
		RecvInterim:  s.recvInterim,
		Restarts:     s.restarts,
		Failed:       failed,
	})
}
