package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const DefaultDeepgramURL = "wss://api.deepgram.com/v1/listen"

type Deepgram struct {
	apiKey   string
	endpoint string
	dialer   *websocket.Dialer
}

func NewDeepgram(apiKey, endpoint string) *Deepgram {
	if endpoint == "" {
		endpoint = DefaultDeepgramURL
	}
	return &Deepgram{
		apiKey:   apiKey,
		endpoint: endpoint,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

func (d *Deepgram) Name() string { return "deepgram" }

type deepgramResponse struct {
	Type         string `json:"type"`
	IsFinal      bool   `json:"is_final"`
	SpeechFinal  bool   `json:"speech_final"`
	FromFinalize bool   `json:"from_finalize"`
	Channel      struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (d *Deepgram) Dial(ctx context.Context, cfg StreamConfig) (Stream, error) {
	endpoint, err := url.Parse(d.endpoint)
	if err != nil {
		return nil, fmt.Errorf("deepgram endpoint: %w", err)
	}

	q := endpoint.Query()
	model := cfg.Model
	if model == "" {
		model = "nova-3"
	}
	q.Set("model", model)
	q.Set("encoding", "linear16")
	q.Set("interim_results", "true")
	q.Set("punctuate", "true")
	if cfg.SampleRate > 0 {
		q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	}
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	endpoint.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.apiKey)

	conn, resp, err := d.dialer.DialContext(ctx, endpoint.String(), headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("deepgram dial: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("deepgram dial: %w", err)
	}
	return &deepgramStream{conn: conn}, nil
}

type deepgramStream struct {
	conn      *websocket.Conn
	closeOnce sync.Once
}

func (s *deepgramStream) Send(pcm []byte) error {
	return s.conn.WriteMessage(websocket.BinaryMessage, pcm)
}

func (s *deepgramStream) Finalize() error {
	return s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Finalize"}`))
}

func (s *deepgramStream) Recv() (Update, error) {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			return Update{}, err
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var resp deepgramResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return Update{}, fmt.Errorf("deepgram response: %w", err)
		}
		if resp.Type != "" && resp.Type != "Results" {
			continue // Metadata, SpeechStarted, UtteranceEnd
		}

		transcript := ""
		if len(resp.Channel.Alternatives) > 0 {
			transcript = resp.Channel.Alternatives[0].Transcript
		}
		return Update{
			Transcript:   strings.TrimSpace(transcript),
			IsFinal:      resp.IsFinal,
			SpeechFinal:  resp.SpeechFinal,
			FromFinalize: resp.FromFinalize,
		}, nil
	}
}

func (s *deepgramStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}
