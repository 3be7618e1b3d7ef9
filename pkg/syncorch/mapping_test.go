package syncorch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engagic/ingest/pkg/models"
	"github.com/engagic/ingest/pkg/vendor"
)

func TestToAgendaItem_ComputesMatterIDWhenReferencePresent(t *testing.T) {
	item := toAgendaItem("springfield-il", "meeting-1", vendor.ItemDTO{
		ItemID:     "item-1",
		Title:      "Adopt budget ordinance",
		MatterFile: "24-0091",
	}, 1)

	require.NotNil(t, item.MatterID)
	assert.Equal(t, MatterID("springfield-il", "24-0091"), *item.MatterID)
}

func TestToAgendaItem_NoMatterIDWithoutReference(t *testing.T) {
	item := toAgendaItem("springfield-il", "meeting-1", vendor.ItemDTO{
		ItemID: "item-1",
		Title:  "Roll Call",
	}, 1)
	assert.Nil(t, item.MatterID)
}

func TestToAgendaItem_FallsBackToPositionalSequence(t *testing.T) {
	item := toAgendaItem("springfield-il", "meeting-1", vendor.ItemDTO{ItemID: "item-1", Title: "x"}, 3)
	assert.Equal(t, 3, item.Sequence)

	withSeq := toAgendaItem("springfield-il", "meeting-1", vendor.ItemDTO{ItemID: "item-1", Title: "x", Sequence: 7}, 3)
	assert.Equal(t, 7, withSeq.Sequence)
}

func TestShouldEnqueue(t *testing.T) {
	assert.False(t, shouldEnqueue(models.Meeting{}))

	assert.True(t, shouldEnqueue(models.Meeting{AgendaURL: "https://x.gov/a"}))

	summary := "already summarized"
	assert.False(t, shouldEnqueue(models.Meeting{AgendaURL: "https://x.gov/a", Summary: &summary}))
}
