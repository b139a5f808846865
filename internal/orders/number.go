package orders

import (
	"crypto/rand"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const orderNumberPrefix = "ORD-"

type NumberGenerator interface {
	Generate() string
}

type NumberGeneratorFunc func() string

func (f NumberGeneratorFunc) Generate() string { return f() }

// ULIDNumbers generates ORD-<unix millis>-<random> numbers. The random part
// is monotonic ULID entropy, so numbers from one generator never repeat
// within the same millisecond.
type ULIDNumbers struct {
	mu      sync.Mutex
	clock   func() time.Time
	entropy io.Reader
}

func NewULIDNumbers(clock func() time.Time) *ULIDNumbers {
	if clock == nil {
		clock = time.Now
	}
	return &ULIDNumbers{
		clock:   clock,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (g *ULIDNumbers) Generate() string {
	g.mu.Lock()
	now := g.clock()
	id, err := ulid.New(ulid.Timestamp(now), g.entropy)
	g.mu.Unlock()
	if err != nil {
		// monotonic overflow within one millisecond; fresh entropy is still unique enough
		id = ulid.Make()
	}
	return orderNumberPrefix + strconv.FormatInt(now.UnixMilli(), 10) + "-" + id.String()[10:]
}
