package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystem(t *testing.T) {
	t.Parallel()

	before := time.Now()
	now := System().Now()
	assert.False(t, now.Before(before))
}

func TestManual(t *testing.T) {
	t.Parallel()

	c := NewManualUnix(1_700_000_000)
	assert.Equal(t, int64(1_700_000_000), c.Now().Unix())

	c.Advance(time.Hour)
	assert.Equal(t, int64(1_700_003_600), c.Now().Unix())

	c.Set(time.Unix(42, 0))
	assert.Equal(t, int64(42), c.Now().Unix())
}
