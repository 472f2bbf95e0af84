package orderlog

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDGenerator hands out ULIDs that sort by creation time, monotonically
// within the same millisecond.
type IDGenerator struct {
	mu      sync.Mutex
	entropy io.Reader
}

// NewIDGenerator seeds a monotonic ULID source from crypto/rand.
func NewIDGenerator() *IDGenerator {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return NewSeededIDGenerator(seed)
}

// NewSeededIDGenerator returns a generator with reproducible entropy.
func NewSeededIDGenerator(seed int64) *IDGenerator {
	return &IDGenerator{entropy: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)}
}

// New returns a ULID string for t.
func (g *IDGenerator) New(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t.UTC()), g.entropy)
	if err != nil {
		// only on entropy overflow within one millisecond
		panic(err)
	}
	return id.String()
}
