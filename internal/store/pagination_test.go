package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	cursor := OrderCursor{
		DateOrdered: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC),
		ID:          42,
	}

	decoded, err := DecodeCursor(EncodeCursor(cursor))
	require.NoError(t, err)
	assert.True(t, decoded.DateOrdered.Equal(cursor.DateOrdered))
	assert.Equal(t, int64(42), decoded.ID)
}

func TestDecodeEmptyCursorStartsFromNow(t *testing.T) {
	decoded, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Equal(t, int64(1<<63-1), decoded.ID)
	assert.WithinDuration(t, time.Now(), decoded.DateOrdered, time.Minute)
}

func TestDecodeGarbageCursor(t *testing.T) {
	_, err := DecodeCursor("!!!not-base64!!!")
	assert.Error(t, err)
}

func TestNewOffsetPage(t *testing.T) {
	page := NewOffsetPage(nil, 45, 2, 20)
	assert.Equal(t, 3, page.TotalPages)

	page = NewOffsetPage(nil, 40, 1, 20)
	assert.Equal(t, 2, page.TotalPages)
}
