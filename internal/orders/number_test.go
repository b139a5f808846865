package orders

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var numberPattern = regexp.MustCompile(`^ORD-\d+-[0-9A-HJKMNP-TV-Z]{16}$`)

func TestULIDNumbers_UniqueInSequence(t *testing.T) {
	g := NewULIDNumbers(nil)
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		n := g.Generate()
		_, dup := seen[n]
		require.False(t, dup, "duplicate %s at %d", n, i)
		seen[n] = struct{}{}
	}
}

func TestULIDNumbers_UniqueWithFrozenClock(t *testing.T) {
	frozen := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	g := NewULIDNumbers(func() time.Time { return frozen })

	var (
		mu   sync.Mutex
		seen = map[string]struct{}{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				n := g.Generate()
				mu.Lock()
				seen[n] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 4000)
}

func TestULIDNumbers_Format(t *testing.T) {
	at := time.UnixMilli(1767225600123)
	n := NewULIDNumbers(func() time.Time { return at }).Generate()

	assert.Regexp(t, numberPattern, n)
	parts := strings.SplitN(n, "-", 3)
	ms, err := strconv.ParseInt(parts[1], 10, 64)
	require.NoError(t, err)
	assert.Equal(t, at.UnixMilli(), ms)
}
