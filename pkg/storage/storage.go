package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrNotFound is returned when a requested path does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidPath rejects paths that are absolute or climb out of the root.
	ErrInvalidPath = errors.New("invalid path")
)

// Storage is a flat key-value store addressed by slash-separated paths.
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	// List returns the paths directly under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// clean normalizes p to a relative slash path.
func clean(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%q: %w", p, ErrInvalidPath)
	}
	c := path.Clean(p)
	if c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("%q: %w", p, ErrInvalidPath)
	}
	return c, nil
}
