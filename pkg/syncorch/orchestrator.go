package syncorch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/engagic/ingest/pkg/models"
	"github.com/engagic/ingest/pkg/repository"
	"github.com/engagic/ingest/pkg/vendor"
	"github.com/engagic/ingest/pkg/vendor/matterfile"
)

// skipMatterTypes are administrative/procedural matter types that never
// get their own tracked Matter row even when an item references one,
// mirroring the shared item-filter's "procedural" judgment at the
// matter level.
var skipMatterTypes = map[string]bool{
	"proclamation": true,
	"appointment":  true,
}

// Stats reports what one meeting's sync did, returned up to the
// Fetcher for its per-city SyncResult.
type Stats struct {
	ItemsStored       int
	MattersTracked    int
	MattersDuplicate  int
	MeetingSkipped    bool
	Enqueued          bool
	MeetingWasNew     bool
	MeetingWasChanged bool
}

// Orchestrator syncs one adapter-emitted meeting DTO into durable state.
type Orchestrator struct {
	repos  *repository.Repositories
	logger *slog.Logger
}

// New builds an Orchestrator backed by repos.
func New(repos *repository.Repositories) *Orchestrator {
	return &Orchestrator{repos: repos, logger: slog.Default().With("component", "syncorch")}
}

// SyncMeeting runs the full algorithm for one meeting: change detection,
// transactional upsert of the meeting, its items, its matters and their
// appearances, and the summarization-queue enqueue decision.
func (o *Orchestrator) SyncMeeting(ctx context.Context, banana string, dto vendor.MeetingDTO) (Stats, error) {
	var stats Stats

	meetingID := MeetingID(banana, dto.VendorID)

	existing, err := o.repos.Meetings.Get(ctx, meetingID)
	switch {
	case err == nil:
		stats.MeetingWasChanged = existing.Title != dto.Title ||
			!sameTime(existing.Date, dto.Start) ||
			existing.PacketURL != dto.PacketURL
	case err == repository.ErrMeetingNotFound:
		stats.MeetingWasNew = true
	default:
		return stats, fmt.Errorf("syncorch: lookup meeting %s: %w", meetingID, err)
	}

	meeting := models.Meeting{
		ID:               meetingID,
		Banana:           banana,
		Title:            dto.Title,
		Date:             dto.Start,
		AgendaURL:        dto.AgendaURL,
		PacketURL:        dto.PacketURL,
		Status:           dto.Status,
		ProcessingStatus: models.ProcessingPending,
		Participation:    dto.Participation,
	}
	if meeting.Status == "" {
		meeting.Status = models.MeetingStatusScheduled
	}

	if meeting.AgendaURL == "" && meeting.PacketURL == "" && len(dto.Items) == 0 {
		stats.MeetingSkipped = true
	}

	items, duplicatesRemoved := dedupItems(dto.Items)
	stats.MattersDuplicate = duplicatesRemoved
	if duplicatesRemoved > 0 {
		o.logger.Warn("dropped duplicate items sharing a matter reference",
			"banana", banana, "meeting_id", meetingID, "duplicates_removed", duplicatesRemoved)
	}

	err = o.repos.WithTx(ctx, func(ctx context.Context, tx *repository.Repositories) error {
		if err := tx.Meetings.Store(ctx, meeting); err != nil {
			return err
		}

		for i, itemDTO := range items {
			if itemDTO.MatterFile == "" {
				itemDTO.MatterFile = matterfile.Extract(itemDTO.Title)
			}

			item := toAgendaItem(banana, meetingID, itemDTO, i+1)
			itemRowID, err := tx.Items.Store(ctx, item)
			if err != nil {
				return err
			}
			stats.ItemsStored++

			if itemDTO.MatterFile == "" && itemDTO.MatterID == "" {
				continue
			}
			matterType := itemDTO.MatterType
			if matterType == "" {
				matterType = matterfile.InferType(itemDTO.Title, itemDTO.MatterFile)
			}
			if skipMatterTypes[matterType] {
				continue
			}

			tracked, err := o.upsertMatter(ctx, tx, banana, meetingID, itemRowID, itemDTO, matterType, meeting.Date)
			if err != nil {
				return err
			}
			if tracked {
				stats.MattersTracked++
			}
		}

		if !stats.MeetingSkipped && shouldEnqueue(meeting) {
			sourceURL := meeting.AgendaURL
			if sourceURL == "" {
				sourceURL = meeting.PacketURL
			}
			alreadyQueued, err := tx.Queue.HasPendingForSourceURL(ctx, sourceURL)
			if err != nil {
				return err
			}
			if !alreadyQueued {
				jobID, err := tx.Queue.Enqueue(ctx, sourceURL, meetingID, banana, 0)
				if err != nil {
					return err
				}
				stats.Enqueued = jobID != ""
			}
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("syncorch: sync meeting %s: %w", meetingID, err)
	}
	return stats, nil
}

// upsertMatter resolves, creates or updates the Matter an item
// references, then records the MatterAppearance linking it to this
// meeting. Returns true when a new Matter row was created.
func (o *Orchestrator) upsertMatter(
	ctx context.Context,
	tx *repository.Repositories,
	banana, meetingID, itemRowID string,
	itemDTO vendor.ItemDTO,
	matterType string,
	meetingDate *time.Time,
) (bool, error) {
	matterID := MatterID(banana, itemDTO.MatterFile, itemDTO.MatterID, itemDTO.Title)

	existing, err := tx.Matters.GetByID(ctx, matterID)
	isNew := err == repository.ErrMatterNotFound
	if err != nil && !isNew {
		return false, err
	}

	attachmentHash := vendor.AttachmentHash(itemDTO.Attachments)
	metadata := map[string]any{"attachment_hash": attachmentHash}

	if isNew {
		first := firstSeen(meetingDate)
		m := models.Matter{
			ID:              matterID,
			Banana:          banana,
			MatterID:        itemDTO.MatterID,
			MatterFile:      itemDTO.MatterFile,
			MatterType:      matterType,
			Title:           itemDTO.Title,
			Sponsors:        itemDTO.Sponsors,
			Attachments:     itemDTO.Attachments,
			Metadata:        metadata,
			FirstSeen:       first,
			LastSeen:        first,
			AppearanceCount: 1,
			Status:          models.MatterStatusActive,
		}
		if _, err := tx.Matters.Store(ctx, m); err != nil {
			return false, err
		}
	} else {
		hasAppearance, err := tx.Matters.HasAppearance(ctx, existing.ID, meetingID)
		if err != nil {
			return false, err
		}
		if !hasAppearance {
			if _, err := tx.Matters.IncrementAppearance(ctx, existing.ID, itemDTO.Attachments); err != nil {
				return false, err
			}
		}
	}

	appearance := models.MatterAppearance{
		MatterID:   matterID,
		MeetingID:  meetingID,
		ItemID:     itemRowID,
		AppearedAt: meetingDate,
	}
	if err := tx.Matters.CreateAppearance(ctx, appearance); err != nil {
		return false, err
	}
	return isNew, nil
}

func firstSeen(meetingDate *time.Time) time.Time {
	if meetingDate != nil {
		return *meetingDate
	}
	return time.Now().UTC()
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
