package encoder

import (
	"encoding/binary"
	"strings"
	"testing"
)

func TestEncodeWAVHeader(t *testing.T) {
	samples := sine(1000, 220)
	enc, err := Encode(FormatWAV, samples)
	if err != nil {
		t.Fatal(err)
	}

	data := enc.Data
	if len(data) != 44+2*len(samples) {
		t.Fatalf("len = %d, want %d", len(data), 44+2*len(samples))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("bad magic: %q", data[:12])
	}
	if got := binary.LittleEndian.Uint32(data[24:28]); got != SampleRate {
		t.Errorf("sample rate = %d, want %d", got, SampleRate)
	}
	if got := binary.LittleEndian.Uint32(data[40:44]); got != uint32(2*len(samples)) {
		t.Errorf("data size = %d, want %d", got, 2*len(samples))
	}
	if got := int16(binary.LittleEndian.Uint16(data[44+2*10:])); got != samples[10] {
		t.Errorf("sample 10 = %d, want %d", got, samples[10])
	}
}

func TestEncodeWAVEmpty(t *testing.T) {
	enc, err := Encode(FormatWAV, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(enc.Data) != 44 {
		t.Errorf("len = %d, want bare 44-byte header", len(enc.Data))
	}
}

func TestEncodeUnknownFormat(t *testing.T) {
	if _, err := Encode("mp3", []int16{1}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatWAV, false},
		{"wav", FormatWAV, false},
		{"FLAC", FormatFLAC, false},
		{"mp3", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeAndDataURL(t *testing.T) {
	enc, err := Encode(FormatWAV, sine(BlockSize*2+17, 300))
	if err != nil {
		t.Fatal(err)
	}
	if enc.Frames != BlockSize*2+17 {
		t.Errorf("Frames = %d", enc.Frames)
	}
	url := DataURL(FormatWAV, enc.Data)
	if !strings.HasPrefix(url, "data:audio/wav;base64,UklGR") {
		t.Errorf("unexpected data url prefix: %.40s", url)
	}
}
