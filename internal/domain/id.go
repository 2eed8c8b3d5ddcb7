package domain

import (
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewID generates a new ULID for entity primary keys.
// ULIDs sort lexicographically by creation time, which keeps
// list-by-created-at queries index-friendly.
func NewID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
