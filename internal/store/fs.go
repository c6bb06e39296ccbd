package store

import (
	"io"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
)

// FSCapability is the private-filesystem-backed Capability: each
// dataset key gets a subdirectory under root.
type FSCapability struct {
	root string
	log  zerolog.Logger
}

// NewFSCapability roots a Capability at dir, creating it if absent.
func NewFSCapability(dir string, log zerolog.Logger) (*FSCapability, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FSCapability{root: dir, log: log.With().Str("component", "store").Logger()}, nil
}

func (c *FSCapability) GetDirectory(key string) (Dataset, error) {
	dir := filepath.Join(c.root, sanitizeKey(key))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fsDataset{dir: dir, log: c.log}, nil
}

// sanitizeKey keeps dataset directory names filesystem-safe without
// pretending to be a general-purpose slugifier: fingerprints and
// dataset keys are already short ASCII-ish strings in practice.
func sanitizeKey(key string) string {
	out := make([]rune, 0, len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "_"
	}
	return string(out)
}

type fsDataset struct {
	dir string
	log zerolog.Logger
}

func (d *fsDataset) Get(name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(d.dir, name))
	if os.IsNotExist(err) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (d *fsDataset) WriteAtomic(name string, r io.Reader) error {
	target := filepath.Join(d.dir, name)
	tmp, err := os.CreateTemp(d.dir, name+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, target); err != nil {
		d.log.Warn().Err(err).Str("target", target).Msg("atomic rename failed, falling back to truncate+write")
		defer os.Remove(tmpName)

		src, serr := os.Open(tmpName)
		if serr != nil {
			return serr
		}
		defer src.Close()

		f, ferr := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if ferr != nil {
			return ferr
		}
		defer f.Close()

		if _, err := io.Copy(f, src); err != nil {
			return err
		}
	}
	return nil
}

func (d *fsDataset) Remove(name string) error {
	err := os.Remove(filepath.Join(d.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (d *fsDataset) Iterate(glob string) ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var matches []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ok, err := doublestar.Match(glob, e.Name())
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, e.Name())
		}
	}
	return matches, nil
}
