// Package ids generates identifiers for imported entities and import runs.
package ids

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// NewEntity returns a fresh random identifier for a destination row.
func NewEntity() string {
	return uuid.NewString()
}

// NewRun returns a time-sortable identifier for an import run.
// Runs created within the same millisecond still sort in creation order.
func NewRun() string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), mono)
	if err != nil {
		// Only possible if the clock goes backwards past the monotonic window.
		panic(err)
	}
	return id.String()
}

// RunTime extracts the creation time encoded in a run identifier.
func RunTime(runID string) (time.Time, error) {
	id, err := ulid.ParseStrict(runID)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(id.Time()).UTC(), nil
}

// RunFloor returns the smallest run identifier created at or after t.
// Every run started before t sorts below it.
func RunFloor(t time.Time) string {
	var id ulid.ULID
	if err := id.SetTime(ulid.Timestamp(t.UTC())); err != nil {
		panic(err)
	}
	return id.String()
}
