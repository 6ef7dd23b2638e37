// Package id provides unique identifier generation for jobs and uploads.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// Generate creates a new unique job ID (a random UUID).
// Example: 3f0b8e52-6c1d-4d8b-9a43-2c1f7e0d9b11
func Generate() string {
	return uuid.NewString()
}

// Short returns 8 random hex characters, e.g. for object names like
// compilation_1a2b3c4d.mp4.
func Short() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Valid reports whether s is a well-formed job ID.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
