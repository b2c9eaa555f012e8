package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const evaluationJSON = `{
	"overall_score": 72,
	"recognized_text": "the quick brown fox",
	"word_scores": {"the": 95, "quick": 64.5, "brown": 40, "fox": 88},
	"phoneme_analysis": {
		"quick": {"reference_phonemes": ["k", "w", "ih", "k"], "problem_phonemes": [1], "user_phonemes": ["k", "ih", "k"]}
	}
}`

type fakeServer struct {
	lastBody   evaluationBody
	lastHeader http.Header
	lastQuery  string
}

func (f *fakeServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "tok-123", Path: "/"})
		io.WriteString(w, "<html></html>")
	})
	mux.HandleFunc("/api/random-sentence/", func(w http.ResponseWriter, r *http.Request) {
		f.lastQuery = r.URL.Query().Get("difficulty")
		switch f.lastQuery {
		case "hard":
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `{"error": "database unavailable"}`)
		case "medium":
			io.WriteString(w, `not json`)
		default:
			io.WriteString(w, `{"sentence": " How are you doing today? ", "difficulty": "easy"}`)
		}
	})
	mux.HandleFunc("/api/evaluate-pronunciation/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		f.lastHeader = r.Header.Clone()
		if err := json.NewDecoder(r.Body).Decode(&f.lastBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		switch f.lastBody.Reference {
		case "":
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error": "Reference text is required"}`)
		case "garbage":
			io.WriteString(w, `{"overall_score": `)
		default:
			io.WriteString(w, evaluationJSON)
		}
	})
	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeServer, *httptest.Server) {
	t.Helper()
	fs := &fakeServer{}
	srv := httptest.NewServer(fs.handler(t))
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatal(err)
	}
	return c, fs, srv
}

func TestRandomSentence(t *testing.T) {
	c, fs, _ := newTestClient(t)

	s, err := c.RandomSentence(context.Background(), Easy)
	if err != nil {
		t.Fatal(err)
	}
	if fs.lastQuery != "easy" {
		t.Errorf("difficulty query = %q, want easy", fs.lastQuery)
	}
	if s.Text != "How are you doing today?" || s.Difficulty != "easy" {
		t.Errorf("sentence = %+v", s)
	}
}

func TestRandomSentenceErrors(t *testing.T) {
	c, _, _ := newTestClient(t)

	_, err := c.RandomSentence(context.Background(), Hard)
	var se *ServerError
	if !errors.As(err, &se) || se.Status != 500 || se.Message != "database unavailable" {
		t.Errorf("hard: err = %v, want ServerError 500", err)
	}

	_, err = c.RandomSentence(context.Background(), Medium)
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("medium: err = %v, want ErrMalformed", err)
	}
}

func TestEvaluateSendsCSRFAndPlaceholder(t *testing.T) {
	c, fs, _ := newTestClient(t)
	if err := c.Prime(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.CSRFToken() != "tok-123" {
		t.Fatalf("CSRFToken = %q, want cookie value", c.CSRFToken())
	}

	ev, err := c.Evaluate(context.Background(), EvaluationRequest{
		Reference: "the quick brown fox",
		Speech:    "   ",
		Audio:     []byte("RIFF"),
		Format:    "wav",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := fs.lastHeader.Get("X-CSRFToken"); got != "tok-123" {
		t.Errorf("X-CSRFToken = %q", got)
	}
	if fs.lastHeader.Get("X-Request-ID") != ev.Trace.RequestID || ev.Trace.RequestID == "" {
		t.Errorf("request id mismatch: header %q, trace %q", fs.lastHeader.Get("X-Request-ID"), ev.Trace.RequestID)
	}
	if fs.lastBody.Speech != PlaceholderSpeech {
		t.Errorf("speech = %q, want placeholder", fs.lastBody.Speech)
	}
	if fs.lastBody.AudioData != "data:audio/wav;base64,UklGRg==" {
		t.Errorf("audio_data = %q", fs.lastBody.AudioData)
	}
	if ev.Trace.Metrics == nil || ev.Trace.StatusCode != 200 {
		t.Errorf("trace not populated: %+v", ev.Trace)
	}
}

func TestEvaluateKeepsWordOrder(t *testing.T) {
	c, _, _ := newTestClient(t)
	ev, err := c.Evaluate(context.Background(), EvaluationRequest{Reference: "the quick brown fox", Speech: "the quick brown fox"})
	if err != nil {
		t.Fatal(err)
	}
	var words []string
	for _, ws := range ev.WordScores {
		words = append(words, ws.Word)
	}
	if strings.Join(words, " ") != "the quick brown fox" {
		t.Errorf("word order = %v", words)
	}
	if ev.WordScores[1].Score != 64.5 {
		t.Errorf("quick score = %v", ev.WordScores[1].Score)
	}
	pa, ok := ev.PhonemeAnalysis["quick"]
	if !ok || len(pa.ReferencePhonemes) != 4 || pa.ProblemPhonemes[0] != 1 || len(pa.UserPhonemes) != 3 {
		t.Errorf("phoneme analysis = %+v", ev.PhonemeAnalysis)
	}
}

func TestWordScoresRepeatedKey(t *testing.T) {
	var ws WordScores
	if err := json.Unmarshal([]byte(`{"the": 10, "cat": 80, "the": 90}`), &ws); err != nil {
		t.Fatal(err)
	}
	want := WordScores{{Word: "the", Score: 90}, {Word: "cat", Score: 80}}
	if len(ws) != len(want) {
		t.Fatalf("got %+v, want %+v", ws, want)
	}
	for i := range want {
		if ws[i] != want[i] {
			t.Errorf("ws[%d] = %+v, want %+v", i, ws[i], want[i])
		}
	}
}

func TestEvaluateFailures(t *testing.T) {
	c, _, srv := newTestClient(t)

	_, err := c.Evaluate(context.Background(), EvaluationRequest{Reference: ""})
	var se *ServerError
	if !errors.As(err, &se) || se.Status != 400 || se.Message != "Reference text is required" {
		t.Errorf("missing reference: err = %v", err)
	}

	_, err = c.Evaluate(context.Background(), EvaluationRequest{Reference: "garbage"})
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("malformed: err = %v, want ErrMalformed", err)
	}

	srv.Close()
	_, err = c.Evaluate(context.Background(), EvaluationRequest{Reference: "x"})
	if !errors.Is(err, ErrTransport) {
		t.Errorf("closed server: err = %v, want ErrTransport", err)
	}
}

func TestCSRFTokenOverride(t *testing.T) {
	c, err := NewClient(Config{BaseURL: "http://localhost:8000", CSRFToken: "fixed"})
	if err != nil {
		t.Fatal(err)
	}
	if c.CSRFToken() != "fixed" {
		t.Errorf("CSRFToken = %q, want fixed", c.CSRFToken())
	}
}

func TestNewClientRejectsBadScheme(t *testing.T) {
	if _, err := NewClient(Config{BaseURL: "ftp://example.com"}); err == nil {
		t.Error("expected error for ftp scheme")
	}
}

func TestParseDifficulty(t *testing.T) {
	tests := []struct {
		in   string
		want Difficulty
	}{
		{"", All},
		{"Easy", Easy},
		{"beginner", Easy},
		{"intermediate", Medium},
		{"advanced", Hard},
		{"hard", Hard},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDifficulty(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
	if _, err := ParseDifficulty("expert"); err == nil {
		t.Error("expected error for unknown level")
	}
	if Medium.Label() != "Medium" {
		t.Errorf("Label = %q", Medium.Label())
	}
}
