package store

import (
	"testing"
	"time"

	"github.com/safar/go-sql-shop/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	want := OrderCursor{CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), ID: 42}

	got, err := DecodeCursor(EncodeCursor(want))
	require.NoError(t, err)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, want.ID, got.ID)
}

func TestDecodeEmptyCursorStartsAtNewest(t *testing.T) {
	cursor, err := DecodeCursor("")
	require.NoError(t, err)
	assert.True(t, cursor.CreatedAt.After(time.Now()))
	assert.Equal(t, int64(1<<63-1), cursor.ID)
}

func TestDecodeInvalidCursor(t *testing.T) {
	_, err := DecodeCursor("%%%not-base64")
	assert.ErrorIs(t, err, database.ErrInvalidCursor)

	_, err = DecodeCursor("bm90LWpzb24=")
	assert.ErrorIs(t, err, database.ErrInvalidCursor)
}

func TestNewOffsetPage(t *testing.T) {
	page := newOffsetPage([]int{1, 2}, 21, 3, 10)
	assert.Equal(t, 3, page.TotalPages)

	page = newOffsetPage([]int{}, 0, 1, 10)
	assert.Equal(t, 0, page.TotalPages)
}

func TestValidatePage(t *testing.T) {
	assert.NoError(t, validatePage(1, 10))
	assert.ErrorIs(t, validatePage(0, 10), database.ErrInvalidPageRequest)
	assert.ErrorIs(t, validatePage(1, 0), database.ErrInvalidPageRequest)
	assert.ErrorIs(t, validatePage(1, MaxPageSize+1), database.ErrInvalidPageRequest)
}
