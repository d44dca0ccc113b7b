package relay

import (
	"strings"

	"github.com/google/uuid"
)

// newRunID generates a globally unique, time-sortable identifier for
// a run handle, built from a UUIDv7 (RFC 9562).
func newRunID() string {
	return "run_" + strings.ReplaceAll(uuid.Must(uuid.NewV7()).String(), "-", "")
}
