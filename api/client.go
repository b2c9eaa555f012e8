package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"parrot/encoder"
)

const (
	sentencePath = "/api/random-sentence/"
	evaluatePath = "/api/evaluate-pronunciation/"
)

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	CSRFCookie string
	CSRFHeader string
	// CSRFToken, when set, is used instead of the cookie value.
	CSRFToken string
	UserAgent string
}

// Client talks to the scoring server. It keeps a cookie jar so the CSRF
// cookie set by the server is echoed back on writes.
type Client struct {
	cfg    Config
	base   *url.URL
	jar    http.CookieJar
	traced *tracedClient
}

func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", cfg.BaseURL)
	}
	if cfg.CSRFCookie == "" {
		cfg.CSRFCookie = "csrftoken"
	}
	if cfg.CSRFHeader == "" {
		cfg.CSRFHeader = "X-CSRFToken"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "parrot"
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{
		Jar:     jar,
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        4,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
	return &Client{cfg: cfg, base: base, jar: jar, traced: &tracedClient{client: httpClient}}, nil
}

func (c *Client) BaseURL() string { return c.base.String() }

func (c *Client) endpoint(path string) *url.URL {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + path
	return &u
}

// Prime loads the site root so the server can issue its CSRF cookie.
func (c *Client) Prime(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, c.endpoint("/"), nil)
	if err != nil {
		return err
	}
	if _, err := c.traced.Do(req); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// CSRFToken returns the configured token or the current cookie value.
func (c *Client) CSRFToken() string {
	if c.cfg.CSRFToken != "" {
		return c.cfg.CSRFToken
	}
	for _, ck := range c.jar.Cookies(c.base) {
		if ck.Name == c.cfg.CSRFCookie {
			return ck.Value
		}
	}
	return ""
}

func (c *Client) RandomSentence(ctx context.Context, level Difficulty) (Sentence, error) {
	u := c.endpoint(sentencePath)
	q := u.Query()
	q.Set("difficulty", string(level))
	u.RawQuery = q.Encode()

	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Sentence{}, err
	}
	resp, err := c.traced.Do(req)
	if err != nil {
		return Sentence{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if err := statusError(resp); err != nil {
		return Sentence{}, err
	}
	var s Sentence
	if err := json.Unmarshal(resp.Body, &s); err != nil {
		return Sentence{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	s.Text = strings.TrimSpace(s.Text)
	if s.Text == "" {
		return Sentence{}, fmt.Errorf("%w: empty sentence", ErrMalformed)
	}
	return s, nil
}

// Evaluate submits one attempt. It is never retried.
func (c *Client) Evaluate(ctx context.Context, er EvaluationRequest) (*Evaluation, error) {
	speech := strings.TrimSpace(er.Speech)
	if speech == "" {
		speech = PlaceholderSpeech
	}
	format := encoder.Format(er.Format)
	if format == "" {
		format = encoder.FormatWAV
	}
	body, err := json.Marshal(evaluationBody{
		Speech:    speech,
		AudioData: encoder.DataURL(format, er.Audio),
		Reference: er.Reference,
	})
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint(evaluatePath), body)
	if err != nil {
		return nil, err
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Referer", c.base.String()+"/")
	req.Header.Set("Origin", c.base.Scheme+"://"+c.base.Host)
	if token := c.CSRFToken(); token != "" {
		req.Header.Set(c.cfg.CSRFHeader, token)
	}

	resp, err := c.traced.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if err := statusError(resp); err != nil {
		return nil, err
	}
	var ev Evaluation
	if err := json.Unmarshal(resp.Body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ev.Trace = Trace{RequestID: requestID, StatusCode: resp.StatusCode, Metrics: resp.Metrics}
	return &ev, nil
}

func (c *Client) newRequest(ctx context.Context, method string, u *url.URL, body []byte) (*http.Request, error) {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u.String(), nil)
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func statusError(resp *tracedResponse) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var body struct {
		Error string `json:"error"`
	}
	msg := http.StatusText(resp.StatusCode)
	if err := json.Unmarshal(resp.Body, &body); err == nil && body.Error != "" {
		msg = body.Error
	}
	return &ServerError{Status: resp.StatusCode, Message: msg}
}
