package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"parrot/audio"
)

type speechServer struct {
	calls   atomic.Int32
	mu      sync.Mutex
	lastReq map[string]any
	status  int
}

func (s *speechServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/audio/speech") {
		http.NotFound(w, r)
		return
	}
	s.calls.Add(1)
	var body map[string]any
	json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	s.lastReq = body
	s.mu.Unlock()
	if s.status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(s.status)
		w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
		return
	}
	w.Header().Set("Content-Type", "audio/pcm")
	w.Write(make([]byte, 4800)) // 100ms of silence
}

func newTestClient(t *testing.T, srv *httptest.Server, player audio.Player) *Client {
	t.Helper()
	c, err := NewClient(Config{
		APIKey:   "sk-test",
		BaseURL:  srv.URL + "/v1",
		CacheDir: t.TempDir(),
	}, player, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestSpeakPlaysAndCaches(t *testing.T) {
	ss := &speechServer{}
	srv := httptest.NewServer(ss)
	defer srv.Close()
	player := &audio.FakePlayer{}
	c := newTestClient(t, srv, player)

	if err := c.Speak(context.Background(), "How are you doing today?"); err != nil {
		t.Fatal(err)
	}
	if err := c.Speak(context.Background(), "  How are you doing today?  "); err != nil {
		t.Fatal(err)
	}

	if ss.calls.Load() != 1 {
		t.Errorf("api calls = %d, want 1 (second speak is a cache hit)", ss.calls.Load())
	}
	if player.Count() != 2 {
		t.Fatalf("plays = %d, want 2", player.Count())
	}
	if p := player.Plays[0]; p.Samples != 2400 || p.SampleRate != 24000 || p.Channels != 1 {
		t.Errorf("play = %+v", p)
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.lastReq["response_format"] != "pcm" || ss.lastReq["voice"] != "nova" || ss.lastReq["input"] != "How are you doing today?" {
		t.Errorf("request = %v", ss.lastReq)
	}
}

func TestSynthesizeConcurrentCallsShareOneRequest(t *testing.T) {
	ss := &speechServer{}
	srv := httptest.NewServer(ss)
	defer srv.Close()
	c := newTestClient(t, srv, nil)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Synthesize(context.Background(), "Practice makes perfect."); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if n := ss.calls.Load(); n < 1 || n > 2 {
		t.Errorf("api calls = %d, want concurrent requests collapsed", n)
	}
}

func TestSynthesizeErrors(t *testing.T) {
	ss := &speechServer{status: http.StatusUnauthorized}
	srv := httptest.NewServer(ss)
	defer srv.Close()
	c := newTestClient(t, srv, nil)

	if _, err := c.Synthesize(context.Background(), "hello"); err == nil {
		t.Error("expected error on 401")
	}
	if _, err := c.Synthesize(context.Background(), "   "); err == nil {
		t.Error("expected error on empty text")
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(Config{CacheDir: t.TempDir()}, nil, zerolog.Nop()); err == nil {
		t.Error("expected error without API key")
	}
}
