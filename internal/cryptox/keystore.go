package cryptox

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/dmitrijs2005/relaypacs/internal/common"
	"github.com/dmitrijs2005/relaypacs/internal/filex"
)

var (
	// ErrNoKey is returned by KeyStore.Load when no key has been stored yet.
	ErrNoKey = errors.New("no session key")
	// ErrKeyExists is returned by KeyStore.Create when another writer got
	// there first. The caller should Load the stored key instead.
	ErrKeyExists = errors.New("session key already exists")
)

// KeyStore holds the session key outside the durable staging database.
// Create stores key only if none is present, so processes sharing a store
// agree on a single key.
type KeyStore interface {
	Load() ([]byte, error)
	Create(key []byte) error
	Clear() error
}

// MemoryKeyStore keeps the key for the lifetime of the process only.
type MemoryKeyStore struct {
	mu  sync.Mutex
	key []byte
}

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{}
}

func (m *MemoryKeyStore) Load() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.key == nil {
		return nil, ErrNoKey
	}
	return append([]byte(nil), m.key...), nil
}

func (m *MemoryKeyStore) Create(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.key != nil {
		return ErrKeyExists
	}
	m.key = append([]byte(nil), key...)
	return nil
}

func (m *MemoryKeyStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	common.WipeByteArray(m.key)
	m.key = nil
	return nil
}

// SessionKeyFile stores the key base64 encoded in a 0600 file, normally in
// the user's runtime directory so it disappears with the login session.
// The staging database never sees it.
type SessionKeyFile struct {
	Path string
}

func NewSessionKeyFile(path string) *SessionKeyFile {
	return &SessionKeyFile{Path: path}
}

func (f *SessionKeyFile) Load() ([]byte, error) {
	raw, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoKey
	}
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return key, nil
}

func (f *SessionKeyFile) Create(key []byte) error {
	data := []byte(base64.StdEncoding.EncodeToString(key))
	err := filex.CreateExclusive(f.Path, data, 0o600)
	if errors.Is(err, os.ErrExist) {
		return ErrKeyExists
	}
	if err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

func (f *SessionKeyFile) Clear() error {
	err := os.Remove(f.Path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove key file: %w", err)
	}
	return nil
}
