package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// A Bucket holds the cached asset bodies of one generation, keyed by
// URL path.
type Bucket interface {
	Get(path string) ([]byte, bool, error)
	Put(path string, body []byte) error
}

// BucketStore manages the buckets of all generations present on disk
// (or in memory). Exactly one bucket survives activation.
type BucketStore interface {
	// Open creates or opens the bucket for a version tag.
	Open(version string) (Bucket, error)
	// List returns the version tags of all existing buckets.
	List() ([]string, error)
	// Delete removes a bucket and everything in it.
	Delete(version string) error
}

// assetKey flattens a URL path into a single file name.
func assetKey(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return "__root"
	}
	return strings.ReplaceAll(path, "/", "__")
}

// DiskBucketStore keeps one directory per generation under a base dir.
type DiskBucketStore struct {
	base string
}

func NewDiskBucketStore(base string) (*DiskBucketStore, error) {
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &DiskBucketStore{base: base}, nil
}

func (s *DiskBucketStore) Open(version string) (Bucket, error) {
	dir := filepath.Join(s.base, version)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create bucket %q: %w", version, err)
	}
	return &diskBucket{dir: dir}, nil
}

func (s *DiskBucketStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.base)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	return versions, nil
}

func (s *DiskBucketStore) Delete(version string) error {
	if err := os.RemoveAll(filepath.Join(s.base, version)); err != nil {
		return fmt.Errorf("delete bucket %q: %w", version, err)
	}
	return nil
}

type diskBucket struct {
	dir string
}

func (b *diskBucket) Get(path string) ([]byte, bool, error) {
	body, err := os.ReadFile(filepath.Join(b.dir, assetKey(path)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cached asset %q: %w", path, err)
	}
	return body, true, nil
}

func (b *diskBucket) Put(path string, body []byte) error {
	name := filepath.Join(b.dir, assetKey(path))
	// Write-then-rename so a torn write never surfaces as a cached asset.
	tmp := name + ".tmp"
	if err := os.WriteFile(tmp, body, 0644); err != nil {
		return fmt.Errorf("write cached asset %q: %w", path, err)
	}
	if err := os.Rename(tmp, name); err != nil {
		return fmt.Errorf("publish cached asset %q: %w", path, err)
	}
	return nil
}

// MemoryBucketStore is the in-process BucketStore used by tests.
type MemoryBucketStore struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
}

func NewMemoryBucketStore() *MemoryBucketStore {
	return &MemoryBucketStore{buckets: make(map[string]*memoryBucket)}
}

func (s *MemoryBucketStore) Open(version string) (Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[version]
	if !ok {
		b = &memoryBucket{entries: make(map[string][]byte)}
		s.buckets[version] = b
	}
	return b, nil
}

func (s *MemoryBucketStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := make([]string, 0, len(s.buckets))
	for v := range s.buckets {
		versions = append(versions, v)
	}
	return versions, nil
}

func (s *MemoryBucketStore) Delete(version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, version)
	return nil
}

type memoryBucket struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func (b *memoryBucket) Get(path string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	body, ok := b.entries[assetKey(path)]
	return body, ok, nil
}

func (b *memoryBucket) Put(path string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[assetKey(path)] = body
	return nil
}
