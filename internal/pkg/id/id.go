package id

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// New returns a fresh user id: a ULID, so ids sort by registration time and
// spread evenly as the users table's partition key.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
