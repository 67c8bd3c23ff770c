// Package wav reads the duration of RIFF/WAVE files from their header without
// decoding samples.
package wav

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/MrWong99/livescript/pkg/media"
)

// ErrNotWAV is returned when the input lacks a RIFF/WAVE signature.
var ErrNotWAV = errors.New("wav: not a RIFF/WAVE file")

// Duration walks the chunk list of a WAV stream and returns the length of the
// data chunk in seconds, computed from the byte rate of the fmt chunk.
func Duration(r io.Reader) (float64, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, fmt.Errorf("wav: read header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return 0, ErrNotWAV
	}

	var byteRate uint32
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return 0, fmt.Errorf("wav: read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return 0, fmt.Errorf("wav: fmt chunk too short (%d bytes)", size)
			}
			var body [16]byte
			if _, err := io.ReadFull(r, body[:]); err != nil {
				return 0, fmt.Errorf("wav: read fmt chunk: %w", err)
			}
			byteRate = binary.LittleEndian.Uint32(body[8:12])
			if _, err := io.CopyN(io.Discard, r, int64(size)-16); err != nil {
				return 0, fmt.Errorf("wav: skip fmt extension: %w", err)
			}
		case "data":
			if byteRate == 0 {
				return 0, errors.New("wav: data chunk before fmt chunk or zero byte rate")
			}
			return float64(size) / float64(byteRate), nil
		default:
			if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
				return 0, fmt.Errorf("wav: skip %q chunk: %w", id, err)
			}
		}
		// Chunks are word aligned.
		if size%2 == 1 && id != "data" {
			if _, err := io.CopyN(io.Discard, r, 1); err != nil {
				return 0, fmt.Errorf("wav: skip pad byte: %w", err)
			}
		}
	}
}

// Prober implements [media.Prober] for .wav sources stored in a file system.
type Prober struct {
	fsys fs.FS
}

var _ media.Prober = (*Prober)(nil)

// NewProber returns a prober reading from dir.
func NewProber(dir string) *Prober {
	return &Prober{fsys: os.DirFS(dir)}
}

// NewProberFS returns a prober reading from fsys.
func NewProberFS(fsys fs.FS) *Prober {
	return &Prober{fsys: fsys}
}

// Probe implements [media.Prober]. Sources are resolved by their base name
// relative to the prober's root; only .wav files are supported.
func (p *Prober) Probe(ctx context.Context, src string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	name := path.Base(strings.ReplaceAll(src, "\\", "/"))
	if !strings.EqualFold(path.Ext(name), ".wav") {
		return 0, fmt.Errorf("wav: probe %q: %w", src, ErrNotWAV)
	}
	f, err := p.fsys.Open(name)
	if err != nil {
		return 0, fmt.Errorf("wav: probe %q: %w", src, err)
	}
	defer f.Close()

	d, err := Duration(f)
	if err != nil {
		return 0, fmt.Errorf("wav: probe %q: %w", src, err)
	}
	return d, nil
}
