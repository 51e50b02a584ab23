// Package storage defines the chart library file-system abstraction.
package storage

import "time"

// FileInfo is the metadata returned for each chart document by List.
type FileInfo struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is the interface for library file operations. All paths are
// relative to the library root.
type Provider interface {
	// List returns metadata for every chart document under dir.
	List(dir string) ([]FileInfo, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
	// Root returns the absolute library directory.
	Root() string
}
