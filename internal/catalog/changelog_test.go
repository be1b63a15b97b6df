package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/ids"
)

func TestNextCursor_EmptyPage(t *testing.T) {
	assert.Nil(t, NextCursor(nil))
	assert.Nil(t, NextCursor([]ChangelogEntry{}))
}

func TestNextCursor_PointsAtLastEntry(t *testing.T) {
	entries := []ChangelogEntry{
		{ID: ids.NewChangelogID(), CreatedAt: 100},
		{ID: ids.NewChangelogID(), CreatedAt: 100},
		{ID: ids.NewChangelogID(), CreatedAt: 150},
	}

	cursor := NextCursor(entries)
	if assert.NotNil(t, cursor) {
		assert.Equal(t, entries[2].CreatedAt, cursor.CreatedAt)
		assert.Equal(t, entries[2].ID, cursor.ID)
	}
}
