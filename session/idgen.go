package session

import (
	"strconv"
	"sync/atomic"

	"github.com/rs/xid"
)

// IDGenerator generates frame IDs.
type IDGenerator interface {
	Generate() string
}

// SequentialIDGenerator generates deterministic IDs counting up from 1.
type SequentialIDGenerator struct {
	nextID atomic.Uint64
}

// Generate returns the next ID.
func (g *SequentialIDGenerator) Generate() string {
	return strconv.FormatUint(g.nextID.Add(1), 10)
}

// XIDGenerator generates globally unique IDs that do not repeat across runs.
type XIDGenerator struct{}

// Generate returns a new ID.
func (XIDGenerator) Generate() string {
	return xid.New().String()
}
