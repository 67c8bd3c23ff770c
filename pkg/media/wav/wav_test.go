package wav_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/MrWong99/livescript/pkg/media/wav"
)

// buildWAV assembles a minimal PCM file with an optional LIST chunk before
// the data chunk.
func buildWAV(t *testing.T, sampleRate uint32, channels, bits uint16, dataBytes int, withList bool) []byte {
	t.Helper()

	var body bytes.Buffer
	body.WriteString("WAVE")

	body.WriteString("fmt ")
	_ = binary.Write(&body, binary.LittleEndian, uint32(16))
	_ = binary.Write(&body, binary.LittleEndian, uint16(1))
	_ = binary.Write(&body, binary.LittleEndian, channels)
	_ = binary.Write(&body, binary.LittleEndian, sampleRate)
	byteRate := sampleRate * uint32(channels) * uint32(bits) / 8
	_ = binary.Write(&body, binary.LittleEndian, byteRate)
	_ = binary.Write(&body, binary.LittleEndian, channels*bits/8)
	_ = binary.Write(&body, binary.LittleEndian, bits)

	if withList {
		body.WriteString("LIST")
		_ = binary.Write(&body, binary.LittleEndian, uint32(3))
		body.Write([]byte{1, 2, 3, 0}) // odd size plus pad byte
	}

	body.WriteString("data")
	_ = binary.Write(&body, binary.LittleEndian, uint32(dataBytes))
	body.Write(make([]byte, dataBytes))

	var out bytes.Buffer
	out.WriteString("RIFF")
	_ = binary.Write(&out, binary.LittleEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

// withFmtSize rewrites the declared fmt chunk size of a buildWAV file and
// inserts extra bytes after the 16 standard fields.
func withFmtSize(data []byte, size uint32, extra []byte) []byte {
	out := append([]byte(nil), data[:36]...)
	binary.LittleEndian.PutUint32(out[16:20], size)
	out = append(out, extra...)
	return append(out, data[36:]...)
}

func TestDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		data     []byte
		want     float64
		wantFail bool
	}{
		{name: "8k mono 16bit 2s", data: buildWAV(t, 8000, 1, 16, 32000, false), want: 2},
		{name: "with list chunk", data: buildWAV(t, 16000, 2, 16, 64000, true), want: 1},
		{name: "not riff", data: []byte("OggS0000WAVEjunk"), wantFail: true},
		{name: "truncated", data: []byte("RIFF"), wantFail: true},
		{name: "extended fmt", data: withFmtSize(buildWAV(t, 8000, 1, 16, 16000, false), 18, []byte{0, 0}), want: 1},
		{name: "fmt size beyond stream", data: withFmtSize(buildWAV(t, 8000, 1, 16, 16000, false), 0xFFFFFFF0, nil), wantFail: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := wav.Duration(bytes.NewReader(tc.data))
			if tc.wantFail {
				if err == nil {
					t.Fatalf("expected error, got duration %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Duration: %v", err)
			}
			if got != tc.want {
				t.Errorf("Duration = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestProber(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"demo.wav": &fstest.MapFile{Data: buildWAV(t, 8000, 1, 8, 4000, false)},
	}
	p := wav.NewProberFS(fsys)

	got, err := p.Probe(context.Background(), "assets/demo.wav")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if got != 0.5 {
		t.Errorf("Probe = %v, want 0.5", got)
	}

	if _, err := p.Probe(context.Background(), "assets/demo.mp3"); !errors.Is(err, wav.ErrNotWAV) {
		t.Errorf("Probe mp3 error = %v, want ErrNotWAV", err)
	}
	if _, err := p.Probe(context.Background(), "missing.wav"); err == nil {
		t.Error("Probe missing file should fail")
	}
}
