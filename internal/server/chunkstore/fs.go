package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/relaypacs/internal/filex"
)

// FSStore writes each chunk to its own file under root. Writes are atomic,
// so a re-sent chunk replaces the previous copy whole.
type FSStore struct {
	root string
}

func NewFSStore(root string) (*FSStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if _, err := filex.EnsureDir(abs, 0o750); err != nil {
		return nil, err
	}
	return &FSStore{root: abs}, nil
}

func (s *FSStore) path(uploadID, fileID string, index int) (string, error) {
	key, err := objectKey(uploadID, fileID, index)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

func (s *FSStore) Put(_ context.Context, uploadID, fileID string, index int, data []byte) error {
	p, err := s.path(uploadID, fileID, index)
	if err != nil {
		return err
	}
	return filex.WriteFileAtomic(p, data, 0o640)
}

func (s *FSStore) Get(_ context.Context, uploadID, fileID string, index int) ([]byte, error) {
	p, err := s.path(uploadID, fileID, index)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read chunk: %w", err)
	}
	return data, nil
}

func (s *FSStore) DeleteUpload(_ context.Context, uploadID string) error {
	if !ValidFileID(uploadID) {
		return fmt.Errorf("%w: %q", ErrInvalidFileID, uploadID)
	}
	if err := os.RemoveAll(filepath.Join(s.root, uploadID)); err != nil {
		return fmt.Errorf("remove upload: %w", err)
	}
	return nil
}
