// Package uuid generates archive record ids and request ids.
package uuid

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/JakeFAU/tab-harvester/internal/harvest"
)

// Generator creates UUIDv7 strings, which sort by creation time.
type Generator struct{}

var _ harvest.IDGenerator = Generator{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUIDv7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// IsValid reports whether s parses as a UUID. Incoming request ids that fail
// this check are replaced.
func IsValid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
