package syncorch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engagic/ingest/pkg/models"
	"github.com/engagic/ingest/pkg/vendor"
)

func TestDedupItems_KeepsMostCompleteOfSharedMatter(t *testing.T) {
	items := []vendor.ItemDTO{
		{Title: "Adopt budget ordinance (first mention)", MatterFile: "24-0091"},
		{
			Title:       "Adopt budget ordinance",
			MatterFile:  "24-0091",
			Description: "Annual budget adoption",
			Attachments: []models.AttachmentInfo{{Name: "Budget.pdf", URL: "https://x.gov/b.pdf"}},
		},
	}

	out, removed := dedupItems(items)
	require.Len(t, out, 1)
	assert.Equal(t, 1, removed)
	assert.Equal(t, "Adopt budget ordinance", out[0].Title)
	assert.Len(t, out[0].Attachments, 1)
}

func TestDedupItems_ItemsWithoutMatterReferencePassThrough(t *testing.T) {
	items := []vendor.ItemDTO{
		{Title: "Roll Call"},
		{Title: "Pledge of Allegiance"},
	}
	out, removed := dedupItems(items)
	assert.Len(t, out, 2)
	assert.Equal(t, 0, removed)
}

func TestDedupItems_PreservesFirstOccurrenceOrder(t *testing.T) {
	items := []vendor.ItemDTO{
		{Title: "Item A", MatterFile: "A-1"},
		{Title: "Item B", MatterFile: "B-1"},
		{Title: "Item A dup", MatterFile: "A-1"},
	}
	out, _ := dedupItems(items)
	require.Len(t, out, 2)
	assert.Equal(t, "A-1", out[0].MatterFile)
	assert.Equal(t, "B-1", out[1].MatterFile)
}
