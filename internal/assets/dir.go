package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
)

// DirSource serves assets from a filesystem tree.
type DirSource struct {
	name string
	fsys fs.FS
}

var _ Source = (*DirSource)(nil)

// NewDirSource serves assets from the directory dir.
func NewDirSource(dir string) *DirSource {
	return NewFSSource("dir", os.DirFS(dir))
}

// NewFSSource serves assets from fsys under the given source name.
func NewFSSource(name string, fsys fs.FS) *DirSource {
	return &DirSource{name: name, fsys: fsys}
}

// Name implements [Source].
func (s *DirSource) Name() string { return s.name }

// Fetch implements [Source]. Names are cleaned and must stay inside the tree.
func (s *DirSource) Fetch(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p := path.Clean(name)
	if !fs.ValidPath(p) {
		return "", fmt.Errorf("assets: dir: invalid name %q: %w", name, ErrNotFound)
	}
	data, err := fs.ReadFile(s.fsys, p)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("assets: dir: %s: %w", p, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("assets: dir: read %s: %w", p, err)
	}
	return string(data), nil
}
