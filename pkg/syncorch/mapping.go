package syncorch

import (
	"github.com/engagic/ingest/pkg/models"
	"github.com/engagic/ingest/pkg/vendor"
)

// toAgendaItem converts one vendor item DTO into a models.AgendaItem
// row, computing the sequence, attachment hash and the deterministic
// matter id (matching city_matters.id) the repository layer stores
// verbatim.
func toAgendaItem(banana, meetingID string, it vendor.ItemDTO, sequence int) models.AgendaItem {
	seq := it.Sequence
	if seq <= 0 {
		seq = sequence
	}
	var summary *string
	if it.Description != "" {
		summary = &it.Description
	}
	var matterID *string
	if it.MatterFile != "" || it.MatterID != "" {
		id := MatterID(banana, it.MatterFile, it.MatterID, it.Title)
		matterID = &id
	}
	return models.AgendaItem{
		MeetingID:      meetingID,
		ItemID:         it.ItemID,
		Title:          it.Title,
		Sequence:       seq,
		AgendaNumber:   it.AgendaNumber,
		ItemType:       it.Section,
		MatterID:       matterID,
		MatterFile:     it.MatterFile,
		MatterType:     it.MatterType,
		Sponsors:       it.Sponsors,
		Attachments:    it.Attachments,
		AttachmentHash: vendor.AttachmentHash(it.Attachments),
		Summary:        summary,
	}
}

// shouldEnqueue reports whether meeting qualifies for a downstream
// summarization job: it needs a source URL, no summary yet.
func shouldEnqueue(m models.Meeting) bool {
	if m.AgendaURL == "" && m.PacketURL == "" {
		return false
	}
	return m.Summary == nil
}
