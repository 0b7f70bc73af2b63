package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCursorTokenRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 500, time.UTC), ID: uuid.New()}
	token := EncodeCursor(in)
	require.NotContains(t, token, "=")
	require.NotContains(t, token, "/")

	out, err := ParseCursor(token)
	require.NoError(t, err)
	require.True(t, out.CreatedAt.Equal(in.CreatedAt))
	require.Equal(t, in.ID, out.ID)

	blank, err := ParseCursor("  ")
	require.NoError(t, err)
	require.Nil(t, blank)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	for _, token := range []string{
		"not-base64!",
		base64.RawURLEncoding.EncodeToString([]byte("no-separator")),
		base64.RawURLEncoding.EncodeToString([]byte("zz!.00000000-0000-0000-0000-000000000000")),
		base64.RawURLEncoding.EncodeToString([]byte("k1.not-a-uuid")),
	} {
		_, err := ParseCursor(token)
		require.ErrorIs(t, err, ErrInvalidCursor, token)
	}
}

// Walks a list page by page the way the repositories do and checks that
// every row is seen exactly once.
func TestTrimPagesWithoutGapsOrRepeats(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var all []Cursor
	for i := 0; i < 7; i++ {
		all = append(all, Cursor{CreatedAt: base.Add(-time.Duration(i) * time.Minute), ID: uuid.New()})
	}
	fetch := func(after *Cursor, limit int) []Cursor {
		var out []Cursor
		for _, row := range all {
			if after != nil && !row.CreatedAt.Before(after.CreatedAt) {
				continue
			}
			out = append(out, row)
			if len(out) == LimitWithBuffer(limit) {
				break
			}
		}
		return out
	}
	identity := func(c Cursor) Cursor { return c }

	var seen []Cursor
	var after *Cursor
	for pages := 0; ; pages++ {
		require.Less(t, pages, 10)
		page, next := Trim(fetch(after, 3), 3, identity)
		seen = append(seen, page...)
		if next == nil {
			break
		}
		require.Equal(t, page[len(page)-1], *next)
		after = next
	}
	require.Equal(t, all, seen)
	require.Empty(t, EncodeNext(nil))
}

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, DefaultLimit, NormalizeLimit(-4))
	require.Equal(t, MaxLimit, NormalizeLimit(1000))
	require.Equal(t, 7, NormalizeLimit(7))
	require.Equal(t, 8, LimitWithBuffer(7))
}
