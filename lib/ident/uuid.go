package ident

import (
	"strings"

	"github.com/google/uuid"
)

// NewUUID returns a time-ordered (V7) uuid in its canonical dashed form.
func NewUUID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewCompactID returns a V7 uuid without dashes, short enough for log attributes and headers.
func NewCompactID() (string, error) {
	s, err := NewUUID()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(s, "-", ""), nil
}

// MustCompactID is NewCompactID that falls back to a random V4 id if the V7 clock read fails.
func MustCompactID() string {
	if s, err := NewCompactID(); err == nil {
		return s
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
