package cart

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// Storage is the device-local key/value area the cart lives in.
// Load returns ErrNoData when nothing was saved under key yet.
type Storage interface {
	Load(key string) ([]byte, error)
	Save(key string, data []byte) error
}

var ErrNoData = errors.New("no stored data")

// FileStorage keeps each key as <dir>/<key>.json.
type FileStorage struct {
	Dir string
}

func NewFileStorage(dir string) *FileStorage { return &FileStorage{Dir: dir} }

func (f *FileStorage) path(key string) string {
	return filepath.Join(f.Dir, key+".json")
}

func (f *FileStorage) Load(key string) ([]byte, error) {
	b, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoData
	}
	return b, err
}

// Save writes through a temp file and rename so a crash never leaves half a cart.
func (f *FileStorage) Save(key string, data []byte) error {
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.Dir, key+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.path(key))
}

// MemoryStorage is a Storage for tests and ephemeral sessions.
type MemoryStorage struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string][]byte)}
}

func (m *MemoryStorage) Load(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if !ok {
		return nil, ErrNoData
	}
	return append([]byte(nil), b...), nil
}

func (m *MemoryStorage) Save(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}
