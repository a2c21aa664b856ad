package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 9, 18, 45, 12, 500, time.UTC)

	c, err := Decode(Encode(ts, "an_9f2c41d8"))
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, ts, c.CreatedAt)
	assert.Equal(t, "an_9f2c41d8", c.ID)
}

func TestDecodeFirstPage(t *testing.T) {
	c, err := Decode("")
	assert.NoError(t, err)
	assert.Nil(t, c, "empty cursor means first page")
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, in := range []string{
		"not-base64!!!",
		"bm9waXBl", // decodes to "nopipe", missing the separator
		"eHx5",     // decodes to "x|y", non-numeric timestamp
	} {
		_, err := Decode(in)
		assert.ErrorIs(t, err, ErrInvalidCursor, "input %q", in)
	}
}

func TestComputePage(t *testing.T) {
	key := func(s string) (time.Time, string) {
		return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), s
	}

	t.Run("under limit", func(t *testing.T) {
		page, next, more := ComputePage([]string{"a", "b"}, 3, key)
		assert.Len(t, page, 2)
		assert.Empty(t, next)
		assert.False(t, more)
	})

	t.Run("exactly limit", func(t *testing.T) {
		page, next, more := ComputePage([]string{"a", "b", "c"}, 3, key)
		assert.Len(t, page, 3)
		assert.Empty(t, next)
		assert.False(t, more)
	})

	t.Run("over limit trims and links", func(t *testing.T) {
		page, next, more := ComputePage([]string{"a", "b", "c", "d"}, 3, key)
		assert.Equal(t, []string{"a", "b", "c"}, page)
		assert.True(t, more)

		c, err := Decode(next)
		require.NoError(t, err)
		assert.Equal(t, "c", c.ID, "cursor points at the last kept row")
	})
}
