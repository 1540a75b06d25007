package domain

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// NewID generates a UUIDv7 string for engine-owned entities such as executions.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ParseMappingRef interprets a CLI/API mapping reference. Purely numeric
// references are mapping ids; anything else is a mapping code.
func ParseMappingRef(ref string) (id int64, code string) {
	ref = strings.TrimSpace(ref)
	if n, err := strconv.ParseInt(ref, 10, 64); err == nil && n > 0 {
		return n, ""
	}
	return 0, ref
}
