// Package uid generates unique identifiers for temp file names.
package uid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a random 32-character hex identifier.
func New() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// TempName returns a unique file name of the form "{prefix}-{id}.tmp".
func TempName(prefix string) string {
	return prefix + "-" + New() + ".tmp"
}
