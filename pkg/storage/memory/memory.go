// Package memory keeps objects in process memory. It backs the CLI and tests.
package memory

import (
    "bytes"
    "context"
    "fmt"
    "io"
    "io/fs"
    "sort"
    "sync"
    "time"
)

type object struct {
    data         []byte
    lastModified time.Time
}

type MemoryStorage struct {
    mu      sync.RWMutex
    objects map[string]object
    now     func() time.Time
}

func New() *MemoryStorage {
    return &MemoryStorage{
        objects: make(map[string]object),
        now:     time.Now,
    }
}

// SetClock overrides the modification timestamp source.
func (m *MemoryStorage) SetClock(now func() time.Time) {
    m.mu.Lock()
    defer m.mu.Unlock()
    m.now = now
}

func (m *MemoryStorage) Store(ctx context.Context, reader io.Reader, key string) (string, error) {
    data, err := io.ReadAll(reader)
    if err != nil {
        return "", fmt.Errorf("failed to store file: %w", err)
    }
    m.mu.Lock()
    defer m.mu.Unlock()
    m.objects[key] = object{data: data, lastModified: m.now()}
    return key, nil
}

func (m *MemoryStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
    m.mu.RLock()
    defer m.mu.RUnlock()
    obj, ok := m.objects[key]
    if !ok {
        return nil, fmt.Errorf("failed to get file %s: %w", key, fs.ErrNotExist)
    }
    return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Delete is a no-op for missing keys, like S3.
func (m *MemoryStorage) Delete(ctx context.Context, key string) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    delete(m.objects, key)
    return nil
}

func (m *MemoryStorage) CleanupBefore(ctx context.Context, threshold time.Time) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    for key, obj := range m.objects {
        if obj.lastModified.Before(threshold) {
            delete(m.objects, key)
        }
    }
    return nil
}

// Keys returns the stored keys in order.
func (m *MemoryStorage) Keys() []string {
    m.mu.RLock()
    defer m.mu.RUnlock()
    keys := make([]string, 0, len(m.objects))
    for k := range m.objects {
        keys = append(keys, k)
    }
    sort.Strings(keys)
    return keys
}
