package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a random identifier with the given prefix, e.g. "ret-1b9d6bcd...".
func New(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}
