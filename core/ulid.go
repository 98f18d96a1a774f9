// ABOUTME: ULID generation helper using crypto/rand entropy for time-prefixed IDs.
// ABOUTME: Centralizes ULID creation so all code uses the same entropy source.
package core

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// NewULID generates a new ULID using crypto/rand entropy. Used for the
// server's per-boot run id (AppState.RunID); graph ids default to the
// plain string "swarm", and human input request ids are minted with
// uuid.New.
func NewULID() ulid.ULID {
	return ulid.MustNew(ulid.Now(), rand.Reader)
}
