package encoder

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

// Format names a clip container accepted by the scoring server.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatFLAC Format = "flac"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatWAV:
		return FormatWAV, nil
	case FormatFLAC:
		return FormatFLAC, nil
	}
	return "", fmt.Errorf("unknown audio format %q (want wav or flac)", s)
}

func (f Format) ContentType() string {
	return "audio/" + string(f)
}

func (f Format) Ext() string {
	return "." + string(f)
}

// Encoded is one finished recording packed for upload.
type Encoded struct {
	Format Format
	Data   []byte
	Frames int
	Took   time.Duration
}

// Encode packs a complete mono clip at SampleRate into f.
func Encode(f Format, samples []int16) (Encoded, error) {
	start := time.Now()
	var (
		data []byte
		err  error
	)
	switch f {
	case FormatWAV:
		data, err = encodeWAV(samples)
	case FormatFLAC:
		data, err = encodeFLAC(samples)
	default:
		return Encoded{}, fmt.Errorf("unknown audio format %q", f)
	}
	if err != nil {
		return Encoded{}, fmt.Errorf("encode %s: %w", f, err)
	}
	return Encoded{Format: f, Data: data, Frames: len(samples), Took: time.Since(start)}, nil
}

// DataURL wraps encoded audio the way a browser FileReader would.
func DataURL(f Format, data []byte) string {
	return "data:" + f.ContentType() + ";base64," + base64.StdEncoding.EncodeToString(data)
}
