package rulestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/rafaeljc/eapproval/internal/ruleengine"
)

// Source supplies raw ruleset bytes.
type Source interface {
	// Name identifies the source in logs and errors (e.g. the file path).
	Name() string

	// Read returns the raw ruleset. A missing ruleset is reported as a
	// *ruleengine.NotFoundError.
	Read(ctx context.Context) ([]byte, error)
}

// FileSource reads the ruleset from the local file system.
type FileSource struct {
	path string
}

var _ Source = (*FileSource)(nil)

// NewFileSource creates a Source backed by the file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Name() string { return s.path }

func (s *FileSource) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &ruleengine.NotFoundError{Source: s.path}
		}
		return nil, fmt.Errorf("failed to read rules file %s: %w", s.path, err)
	}
	return data, nil
}

// BytesSource serves a fixed in-memory ruleset. It backs tests and the
// offline CLI when the ruleset is piped in.
type BytesSource struct {
	name string
	data []byte
}

var _ Source = (*BytesSource)(nil)

// NewBytesSource creates a Source returning data. A nil data slice behaves
// like a missing ruleset.
func NewBytesSource(name string, data []byte) *BytesSource {
	return &BytesSource{name: name, data: data}
}

func (s *BytesSource) Name() string { return s.name }

func (s *BytesSource) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.data == nil {
		return nil, &ruleengine.NotFoundError{Source: s.name}
	}
	return s.data, nil
}
