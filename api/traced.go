package api

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptrace"
	"sync"
	"time"
)

type NetworkMetrics struct {
	DNS         time.Duration
	ConnWait    time.Duration
	TCP         time.Duration
	TLS         time.Duration
	ReqHeaders  time.Duration
	ReqBody     time.Duration
	TTFB        time.Duration
	Download    time.Duration
	Total       time.Duration
	ConnReused  bool
	TLSProtocol string
}

type phase int

const (
	phaseGetConn phase = iota
	phaseGotConn
	phaseDNSStart
	phaseDNSDone
	phaseConnectStart
	phaseConnectDone
	phaseTLSStart
	phaseTLSDone
	phaseWroteHeaders
	phaseWroteRequest
	phaseFirstByte
	phaseCount
)

// timeline collects httptrace events. The transport fires them from its
// read and write goroutines, so every access goes through mu.
type timeline struct {
	mu       sync.Mutex
	at       [phaseCount]time.Time
	reused   bool
	protocol string
}

func (t *timeline) mark(p phase) {
	now := time.Now()
	t.mu.Lock()
	t.at[p] = now
	t.mu.Unlock()
}

func (t *timeline) trace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		GetConn: func(string) { t.mark(phaseGetConn) },
		GotConn: func(info httptrace.GotConnInfo) {
			t.mark(phaseGotConn)
			t.mu.Lock()
			t.reused = info.Reused
			t.mu.Unlock()
		},
		DNSStart:          func(httptrace.DNSStartInfo) { t.mark(phaseDNSStart) },
		DNSDone:           func(httptrace.DNSDoneInfo) { t.mark(phaseDNSDone) },
		ConnectStart:      func(_, _ string) { t.mark(phaseConnectStart) },
		ConnectDone:       func(_, _ string, _ error) { t.mark(phaseConnectDone) },
		TLSHandshakeStart: func() { t.mark(phaseTLSStart) },
		TLSHandshakeDone: func(state tls.ConnectionState, _ error) {
			t.mark(phaseTLSDone)
			t.mu.Lock()
			t.protocol = state.NegotiatedProtocol
			t.mu.Unlock()
		},
		WroteHeaders:         func() { t.mark(phaseWroteHeaders) },
		WroteRequest:         func(httptrace.WroteRequestInfo) { t.mark(phaseWroteRequest) },
		GotFirstResponseByte: func() { t.mark(phaseFirstByte) },
	}
}

// metrics turns the recorded events into phase durations. Phases that did
// not happen, such as DNS on a reused connection, stay zero.
func (t *timeline) metrics(start, end time.Time) *NetworkMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	span := func(from, to phase) time.Duration {
		a, b := t.at[from], t.at[to]
		if a.IsZero() || b.IsZero() || b.Before(a) {
			return 0
		}
		return b.Sub(a)
	}
	m := &NetworkMetrics{
		DNS:         span(phaseDNSStart, phaseDNSDone),
		ConnWait:    span(phaseGetConn, phaseGotConn),
		TCP:         span(phaseConnectStart, phaseConnectDone),
		TLS:         span(phaseTLSStart, phaseTLSDone),
		ReqHeaders:  span(phaseGotConn, phaseWroteHeaders),
		ReqBody:     span(phaseWroteHeaders, phaseWroteRequest),
		TTFB:        span(phaseWroteRequest, phaseFirstByte),
		Total:       end.Sub(start),
		ConnReused:  t.reused,
		TLSProtocol: t.protocol,
	}
	if first := t.at[phaseFirstByte]; !first.IsZero() && end.After(first) {
		m.Download = end.Sub(first)
	}
	return m
}

// tracedClient buffers response bodies and reports per-phase timings.
type tracedClient struct {
	client *http.Client
}

type tracedResponse struct {
	Body       []byte
	StatusCode int
	Header     http.Header
	Metrics    *NetworkMetrics
}

func (c *tracedClient) Do(req *http.Request) (*tracedResponse, error) {
	tl := &timeline{}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), tl.trace()))
	start := time.Now()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &tracedResponse{
		Body:       body,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Metrics:    tl.metrics(start, time.Now()),
	}, nil
}
