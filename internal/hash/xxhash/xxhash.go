// Package xxhash provides content digests for harvested markup.
package xxhash

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Hasher implements harvest.Hasher using xxHash64.
type Hasher struct{}

// New returns an xxHash64 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the 16-character hex digest of data.
func (*Hasher) Hash(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}
