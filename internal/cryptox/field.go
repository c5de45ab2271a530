package cryptox

import (
	"crypto/cipher"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/relaypacs/internal/common"
)

// EncryptedPlaceholder is what Decrypt returns when an envelope cannot be
// opened. Callers that need the real value must use DecryptStrict.
const EncryptedPlaceholder = "[Encrypted Data]"

// FieldCipher encrypts individual string fields with a session key that is
// created lazily on first use and kept in a KeyStore.
type FieldCipher struct {
	mu    sync.Mutex
	suite Suite
	store KeyStore
	aead  cipher.AEAD
}

func NewFieldCipher(store KeyStore, suite Suite) (*FieldCipher, error) {
	if _, err := ParseSuite(string(suite)); err != nil {
		return nil, err
	}
	if suite == "" {
		suite = SuiteAESGCM
	}
	return &FieldCipher{suite: suite, store: store}, nil
}

// current returns the AEAD for the session key, generating and storing a new
// key when the store is empty.
func (c *FieldCipher) current() (cipher.AEAD, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.aead != nil {
		return c.aead, nil
	}

	key, err := c.loadOrCreate()
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	aead, err := newAEAD(c.suite, key)
	if err != nil {
		return nil, err
	}
	c.aead = aead
	return aead, nil
}

// loadOrCreate returns the stored key, creating one when the store is empty.
// If another process creates the key first, its key wins.
func (c *FieldCipher) loadOrCreate() ([]byte, error) {
	key, err := c.store.Load()
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrNoKey) {
		return nil, fmt.Errorf("load session key: %w", err)
	}

	key = common.GenerateRandByteArray(KeySize)
	err = c.store.Create(key)
	if err == nil {
		return key, nil
	}
	common.WipeByteArray(key)
	if !errors.Is(err, ErrKeyExists) {
		return nil, fmt.Errorf("save session key: %w", err)
	}

	key, err = c.store.Load()
	if err != nil {
		return nil, fmt.Errorf("load session key: %w", err)
	}
	return key, nil
}

// Encrypt seals plain under the session key. An empty string stays empty.
func (c *FieldCipher) Encrypt(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	aead, err := c.current()
	if err != nil {
		return "", err
	}
	return seal(aead, plain)
}

// Decrypt opens envelope, returning EncryptedPlaceholder on any failure.
func (c *FieldCipher) Decrypt(envelope string) string {
	plain, err := c.DecryptStrict(envelope)
	if err != nil {
		return EncryptedPlaceholder
	}
	return plain
}

// DecryptStrict opens envelope and reports failures as errors.
func (c *FieldCipher) DecryptStrict(envelope string) (string, error) {
	if envelope == "" {
		return "", nil
	}
	aead, err := c.current()
	if err != nil {
		return "", err
	}
	return open(aead, envelope)
}

// EndSession forgets the key in memory and in the store. Fields encrypted
// before the call can no longer be decrypted.
func (c *FieldCipher) EndSession() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aead = nil
	return c.store.Clear()
}
