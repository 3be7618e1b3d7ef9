package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/engagic/ingest/pkg/models"
)

// ErrItemNotFound is returned when a lookup finds nothing.
var ErrItemNotFound = errors.New("repository: item not found")

// ItemRepository stores and retrieves agenda items.
type ItemRepository struct {
	db DB
}

// Store upserts an agenda item under a meeting, keyed on
// (meeting_id, item_id) so a re-sync of the same agenda replaces the
// item in place rather than duplicating it. Returns the row's internal
// ID, generating one on first insert.
func (r *ItemRepository) Store(ctx context.Context, item models.AgendaItem) (string, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	attachments, err := json.Marshal(item.Attachments)
	if err != nil {
		return "", fmt.Errorf("repository: marshal attachments: %w", err)
	}
	sponsors, err := json.Marshal(item.Sponsors)
	if err != nil {
		return "", fmt.Errorf("repository: marshal sponsors: %w", err)
	}

	var id string
	err = r.db.QueryRow(ctx, `
		INSERT INTO items (
			id, meeting_id, item_id, title, sequence, agenda_number,
			item_type, matter_id, matter_file, matter_type, sponsors,
			attachments, attachment_hash, summary
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (meeting_id, item_id) DO UPDATE SET
			title = EXCLUDED.title,
			sequence = EXCLUDED.sequence,
			agenda_number = EXCLUDED.agenda_number,
			item_type = EXCLUDED.item_type,
			matter_id = EXCLUDED.matter_id,
			matter_file = EXCLUDED.matter_file,
			matter_type = EXCLUDED.matter_type,
			sponsors = EXCLUDED.sponsors,
			attachments = EXCLUDED.attachments,
			attachment_hash = EXCLUDED.attachment_hash,
			summary = COALESCE(items.summary, EXCLUDED.summary)
		RETURNING id
	`,
		item.ID, item.MeetingID, item.ItemID, item.Title, item.Sequence, item.AgendaNumber,
		item.ItemType, item.MatterID, item.MatterFile, item.MatterType, sponsors,
		attachments, item.AttachmentHash, item.Summary,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("repository: store item %s: %w", item.ItemID, err)
	}

	if len(item.Topics) > 0 {
		if err := replaceTopics(ctx, r.db, "item_topics", "item_id", id, item.Topics); err != nil {
			return "", err
		}
	}
	return id, nil
}

// ForMeeting returns every agenda item for meetingID, ordered by
// sequence.
func (r *ItemRepository) ForMeeting(ctx context.Context, meetingID string) ([]models.AgendaItem, error) {
	items, err := r.forMeetings(ctx, []string{meetingID})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ForMeetings batches item retrieval across several meetings in one
// round trip, the shape the requirements document's repository section
// calls out to avoid N+1 queries when rendering a page of meetings.
func (r *ItemRepository) ForMeetings(ctx context.Context, meetingIDs []string) (map[string][]models.AgendaItem, error) {
	items, err := r.forMeetings(ctx, meetingIDs)
	if err != nil {
		return nil, err
	}
	byMeeting := make(map[string][]models.AgendaItem)
	for _, it := range items {
		byMeeting[it.MeetingID] = append(byMeeting[it.MeetingID], it)
	}
	return byMeeting, nil
}

func (r *ItemRepository) forMeetings(ctx context.Context, meetingIDs []string) ([]models.AgendaItem, error) {
	if len(meetingIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, meeting_id, item_id, title, sequence, agenda_number,
		       item_type, matter_id, matter_file, matter_type, sponsors,
		       attachments, attachment_hash, summary, quality_score, rating_count, created_at
		FROM items WHERE meeting_id = ANY($1) ORDER BY meeting_id, sequence
	`, meetingIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: items for meetings: %w", err)
	}
	defer rows.Close()

	var items []models.AgendaItem
	var ids []string
	byID := make(map[string]*models.AgendaItem)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
		ids = append(ids, it.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range items {
		byID[items[i].ID] = &items[i]
	}

	topicsByID, err := fetchTopicsBatch(ctx, r.db, "item_topics", "item_id", ids)
	if err != nil {
		return nil, err
	}
	for id, topics := range topicsByID {
		if it, ok := byID[id]; ok {
			it.Topics = topics
		}
	}
	return items, nil
}

func scanItem(row rowScanner) (*models.AgendaItem, error) {
	var it models.AgendaItem
	var attachments, sponsors []byte
	err := row.Scan(
		&it.ID, &it.MeetingID, &it.ItemID, &it.Title, &it.Sequence, &it.AgendaNumber,
		&it.ItemType, &it.MatterID, &it.MatterFile, &it.MatterType, &sponsors,
		&attachments, &it.AttachmentHash, &it.Summary, &it.QualityScore, &it.RatingCount, &it.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("repository: scan item: %w", err)
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &it.Attachments); err != nil {
			return nil, fmt.Errorf("repository: unmarshal attachments: %w", err)
		}
	}
	if len(sponsors) > 0 {
		if err := json.Unmarshal(sponsors, &it.Sponsors); err != nil {
			return nil, fmt.Errorf("repository: unmarshal sponsors: %w", err)
		}
	}
	return &it, nil
}
