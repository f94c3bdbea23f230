package audio

import (
	"fmt"
	"os"
)

// Staged is a clip written to a temporary file in its container format.
type Staged struct {
	Path string
	Clip Clip
}

// Stage writes the clip to a temp file under dir (os.TempDir when empty).
// The caller must call Release on every path.
func Stage(dir string, clip Clip) (*Staged, error) {
	if clip.Empty() {
		return nil, ErrEmptyClip
	}

	format := clip.Format
	if format == "" {
		format = DefaultFormat
	}

	file, err := os.CreateTemp(dir, "capture-*."+format)
	if err != nil {
		return nil, fmt.Errorf("create temp audio file: %w", err)
	}

	if _, err := file.Write(clip.Data); err != nil {
		file.Close()
		os.Remove(file.Name())
		return nil, fmt.Errorf("write temp audio file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return nil, fmt.Errorf("close temp audio file: %w", err)
	}

	return &Staged{Path: file.Name(), Clip: clip}, nil
}

// Open opens the staged file for reading.
func (s *Staged) Open() (*os.File, error) {
	return os.Open(s.Path)
}

// Release removes the temp file. Safe to call more than once.
func (s *Staged) Release() error {
	if s == nil || s.Path == "" {
		return nil
	}
	err := os.Remove(s.Path)
	if err != nil && os.IsNotExist(err) {
		err = nil
	}
	s.Path = ""
	return err
}
