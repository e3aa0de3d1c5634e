// Package hlc provides hybrid logical clock timestamps. A timestamp is a
// 64-bit NTP-style time (seconds since the UNIX epoch in the upper 32 bits,
// binary fraction in the lower 32) tagged with the ID of the clock that
// produced it, so that timestamps from different writers are totally ordered.
package hlc

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxIDSize is the maximum number of bytes in an ID.
const MaxIDSize = 16

var ErrInvalidTimestamp = errors.New("invalid timestamp")

// NTP64 is a 64-bit fixed point time.
type NTP64 uint64

const fracPerSecond = 1 << 32

// FromTime converts t to NTP64. Times before the UNIX epoch map to zero.
func FromTime(t time.Time) NTP64 {
	if t.Before(time.Unix(0, 0)) {
		return 0
	}
	secs := uint64(t.Unix())
	frac := (uint64(t.Nanosecond()) * fracPerSecond) / uint64(time.Second)
	return NTP64(secs<<32 | frac)
}

// Time converts n back to wall clock time.
func (n NTP64) Time() time.Time {
	secs := int64(uint64(n) >> 32)
	frac := uint64(n) & (fracPerSecond - 1)
	nanos := int64((frac * uint64(time.Second)) / fracPerSecond)
	return time.Unix(secs, nanos).UTC()
}

func (n NTP64) String() string {
	return strconv.FormatUint(uint64(n), 10)
}

// ID identifies a clock. Leading zero bytes are not significant.
type ID struct {
	b   [MaxIDSize]byte
	len int
}

// NewID returns a random 16-byte ID.
func NewID() ID {
	u := uuid.New()
	id, _ := IDFromBytes(u[:])
	return id
}

// IDFromBytes builds an ID from 1 to MaxIDSize bytes.
func IDFromBytes(b []byte) (ID, error) {
	b = bytes.TrimLeft(b, "\x00")
	if len(b) == 0 || len(b) > MaxIDSize {
		return ID{}, fmt.Errorf("%w: id must be 1 to %d non-zero bytes", ErrInvalidTimestamp, MaxIDSize)
	}
	var id ID
	copy(id.b[:], b)
	id.len = len(b)
	return id, nil
}

// ParseID parses the hex form produced by ID.String.
func ParseID(s string) (ID, error) {
	if len(s)%2 == 1 {
		s = "0" + s
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, fmt.Errorf("%w: id %q: %v", ErrInvalidTimestamp, s, err)
	}
	return IDFromBytes(raw)
}

// Bytes returns the significant bytes of the ID.
func (id ID) Bytes() []byte {
	return append([]byte(nil), id.b[:id.len]...)
}

// IsZero reports whether id was never set.
func (id ID) IsZero() bool { return id.len == 0 }

func (id ID) String() string {
	return hex.EncodeToString(id.b[:id.len])
}

// Compare orders IDs as big-endian unsigned integers.
func (id ID) Compare(other ID) int {
	if id.len != other.len {
		if id.len < other.len {
			return -1
		}
		return 1
	}
	return bytes.Compare(id.b[:id.len], other.b[:other.len])
}

// Timestamp is a point in time produced by a specific clock.
type Timestamp struct {
	Time NTP64
	ID   ID
}

// New returns a timestamp for t produced by id.
func New(t time.Time, id ID) Timestamp {
	return Timestamp{Time: FromTime(t), ID: id}
}

// Parse reads the "<time>/<id>" form produced by Timestamp.String.
func Parse(s string) (Timestamp, error) {
	timePart, idPart, ok := strings.Cut(s, "/")
	if !ok {
		return Timestamp{}, fmt.Errorf("%w: %q: missing '/'", ErrInvalidTimestamp, s)
	}
	t, err := strconv.ParseUint(timePart, 10, 64)
	if err != nil {
		return Timestamp{}, fmt.Errorf("%w: %q: %v", ErrInvalidTimestamp, s, err)
	}
	id, err := ParseID(idPart)
	if err != nil {
		return Timestamp{}, err
	}
	return Timestamp{Time: NTP64(t), ID: id}, nil
}

func (ts Timestamp) String() string {
	return ts.Time.String() + "/" + ts.ID.String()
}

// IsZero reports whether ts is the zero timestamp.
func (ts Timestamp) IsZero() bool {
	return ts.Time == 0 && ts.ID.IsZero()
}

// Compare returns -1, 0 or +1 depending on whether ts is before, equal to or
// after other. Time is compared first, then the clock ID.
func (ts Timestamp) Compare(other Timestamp) int {
	switch {
	case ts.Time < other.Time:
		return -1
	case ts.Time > other.Time:
		return 1
	}
	return ts.ID.Compare(other.ID)
}

func (ts Timestamp) Before(other Timestamp) bool { return ts.Compare(other) < 0 }
func (ts Timestamp) After(other Timestamp) bool  { return ts.Compare(other) > 0 }

// Clock produces strictly increasing timestamps.
type Clock struct {
	id  ID
	now func() time.Time

	mu   sync.Mutex
	last NTP64
}

// NewClock creates a clock with the given ID. A zero ID gets a random one.
func NewClock(id ID) *Clock {
	if id.IsZero() {
		id = NewID()
	}
	return &Clock{id: id, now: time.Now}
}

// ID returns the clock ID.
func (c *Clock) ID() ID { return c.id }

// Now returns a timestamp greater than every timestamp previously returned
// or observed by this clock.
func (c *Clock) Now() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := FromTime(c.now())
	if t <= c.last {
		t = c.last + 1
	}
	c.last = t
	return Timestamp{Time: t, ID: c.id}
}

// Update merges a remote timestamp into the clock so later Now calls sort
// after it.
func (c *Clock) Update(ts Timestamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts.Time > c.last {
		c.last = ts.Time
	}
}
