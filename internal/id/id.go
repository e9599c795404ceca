// Package id generates identifiers for catalog records and runtime objects.
package id

import (
	"fmt"
	"strconv"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// resourceSuffixAlphabet keeps resource ids lowercase alphanumeric so they
	// stay valid as store key segments and sort next to their timestamp part.
	resourceSuffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	resourceSuffixLength   = 8
)

// Generate creates a prefixed unique ID using NanoID.
// Format: prefix-nanoid (e.g., "sse-V1StGXR8_Z5jdHi6B-myT").
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// NewResourceID returns a collision-resistant resource id: the creation time
// in milliseconds as base36, followed by a random base36 suffix.
func NewResourceID(now time.Time) (string, error) {
	suffix, err := gonanoid.Generate(resourceSuffixAlphabet, resourceSuffixLength)
	if err != nil {
		return "", fmt.Errorf("generate resource id: %w", err)
	}
	return strconv.FormatInt(now.UnixMilli(), 36) + suffix, nil
}
