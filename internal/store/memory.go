package store

import (
	"bytes"
	"io"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// MemoryCapability is the memory-only fallback backend used when the
// process has no writable private filesystem, and by tests. Writes are
// trivially atomic since nothing ever observes a partial buffer.
type MemoryCapability struct {
	mu       sync.Mutex
	datasets map[string]*memoryDataset
}

// NewMemoryCapability returns a ready-to-use in-memory Capability.
func NewMemoryCapability() *MemoryCapability {
	return &MemoryCapability{datasets: make(map[string]*memoryDataset)}
}

func (c *MemoryCapability) GetDirectory(key string) (Dataset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.datasets[key]
	if !ok {
		d = &memoryDataset{files: make(map[string][]byte)}
		c.datasets[key] = d
	}
	return d, nil
}

type memoryDataset struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (d *memoryDataset) Get(name string) (io.ReadCloser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.files[name]
	if !ok {
		return nil, ErrNotExist
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return io.NopCloser(bytes.NewReader(cp)), nil
}

func (d *memoryDataset) WriteAtomic(name string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files[name] = b
	return nil
}

func (d *memoryDataset) Remove(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.files, name)
	return nil
}

func (d *memoryDataset) Iterate(glob string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var matches []string
	for name := range d.files {
		ok, err := doublestar.Match(glob, name)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, name)
		}
	}
	sort.Strings(matches)
	return matches, nil
}
