package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalRefPrefix is the URL path local images are served under.
const LocalRefPrefix = "uploads/images"

// Local stores images on disk. References look like
// "uploads/images/<uuid>.png" and double as the public URL path.
type Local struct {
	dir  string
	opts Options
}

// NewLocal creates dir if needed.
func NewLocal(dir string, opts Options) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &Local{dir: dir, opts: opts.withDefaults()}, nil
}

// Dir returns the directory images are written to.
func (l *Local) Dir() string { return l.dir }

func (l *Local) Save(ctx context.Context, _ string, r io.Reader) (string, error) {
	up, err := prepare(r, l.opts)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := uuid.New().String() + up.ext
	tmp, err := os.CreateTemp(l.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(up.data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close image: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(l.dir, name)); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("store image: %w", err)
	}
	return path.Join(LocalRefPrefix, name), nil
}

func (l *Local) Release(_ context.Context, ref string) error {
	name, err := localName(ref)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(l.dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove image %s: %w", ref, err)
	}
	return nil
}

// localName extracts the file name from ref, refusing anything that could
// escape the image directory.
func localName(ref string) (string, error) {
	name, ok := strings.CutPrefix(ref, LocalRefPrefix+"/")
	if !ok || name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return name, nil
}
