// Package fsjson provides the JSON file read/write primitives shared by the
// journal store and the artifact store.
package fsjson

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type (
	Reader interface {
		ReadJSON(path string, target any) error
	}
	Writer interface {
		WriteJSON(path string, data any) error
		WriteBytes(path string, data []byte) error
	}
)

type FS struct{}

// New creates a filesystem-backed reader/writer.
func New() *FS {
	return &FS{}
}

// ReadJSON reads and unmarshals JSON from a file.
func (f *FS) ReadJSON(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	return nil
}

// WriteJSON writes data as JSON to the specified path.
func (f *FS) WriteJSON(path string, data any) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return f.WriteBytes(path, append(content, '\n'))
}

// WriteBytes writes raw bytes to the specified path, creating parent
// directories as needed.
func (f *FS) WriteBytes(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}
