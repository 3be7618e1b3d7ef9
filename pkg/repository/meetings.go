package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/engagic/ingest/pkg/models"
)

// ErrMeetingNotFound is returned when a lookup by ID finds nothing.
var ErrMeetingNotFound = errors.New("repository: meeting not found")

// MeetingRepository stores and retrieves meetings.
type MeetingRepository struct {
	db DB
}

// Store upserts a meeting, preserving an existing summary, processing
// method and processing time (incoming values only fill empty ones) —
// a re-sync of a meeting already summarized must not blank out work
// the downstream processor already did.
func (r *MeetingRepository) Store(ctx context.Context, m models.Meeting) error {
	participation, err := json.Marshal(m.Participation)
	if err != nil {
		return fmt.Errorf("repository: marshal participation: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO meetings (
			id, banana, title, date, agenda_url, packet_url,
			summary, participation, status, processing_status,
			processing_method, processing_time, committee_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			date = EXCLUDED.date,
			agenda_url = EXCLUDED.agenda_url,
			packet_url = EXCLUDED.packet_url,
			summary = COALESCE(meetings.summary, EXCLUDED.summary),
			participation = COALESCE(EXCLUDED.participation, meetings.participation),
			status = EXCLUDED.status,
			processing_method = COALESCE(meetings.processing_method, EXCLUDED.processing_method),
			processing_time = COALESCE(meetings.processing_time, EXCLUDED.processing_time),
			committee_id = COALESCE(EXCLUDED.committee_id, meetings.committee_id),
			updated_at = CURRENT_TIMESTAMP
	`,
		m.ID, m.Banana, m.Title, m.Date, m.AgendaURL, m.PacketURL,
		m.Summary, participation, string(m.Status), string(m.ProcessingStatus),
		m.ProcessingMethod, m.ProcessingTime, m.CommitteeID,
	)
	if err != nil {
		return fmt.Errorf("repository: store meeting %s: %w", m.ID, err)
	}

	if len(m.Topics) > 0 {
		if err := replaceTopics(ctx, r.db, "meeting_topics", "meeting_id", m.ID, m.Topics); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a meeting by ID, or ErrMeetingNotFound.
func (r *MeetingRepository) Get(ctx context.Context, id string) (*models.Meeting, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, banana, title, date, agenda_url, packet_url,
		       summary, participation, status, processing_status,
		       processing_method, processing_time, committee_id,
		       created_at, updated_at
		FROM meetings WHERE id = $1
	`, id)
	m, err := scanMeeting(row)
	if err != nil {
		return nil, err
	}
	topics, err := fetchTopics(ctx, r.db, "meeting_topics", "meeting_id", id)
	if err != nil {
		return nil, err
	}
	m.Topics = topics
	return m, nil
}

// GetByPacketURL looks up a meeting by its packet URL. The sync
// orchestrator does not call it: it identifies a meeting only by the id
// derived from banana and vendor id (see syncorch.MeetingID).
func (r *MeetingRepository) GetByPacketURL(ctx context.Context, packetURL string) (*models.Meeting, error) {
	if packetURL == "" {
		return nil, ErrMeetingNotFound
	}
	row := r.db.QueryRow(ctx, `
		SELECT id, banana, title, date, agenda_url, packet_url,
		       summary, participation, status, processing_status,
		       processing_method, processing_time, committee_id,
		       created_at, updated_at
		FROM meetings WHERE packet_url = $1 LIMIT 1
	`, packetURL)
	return scanMeeting(row)
}

// ForCity returns meetings for banana ordered by date descending.
func (r *MeetingRepository) ForCity(ctx context.Context, banana string, limit, offset int) ([]models.Meeting, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, banana, title, date, agenda_url, packet_url,
		       summary, participation, status, processing_status,
		       processing_method, processing_time, committee_id,
		       created_at, updated_at
		FROM meetings WHERE banana = $1 ORDER BY date DESC LIMIT $2 OFFSET $3
	`, banana, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("repository: meetings for city %s: %w", banana, err)
	}
	defer rows.Close()

	var meetings []models.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, *m)
	}
	return meetings, rows.Err()
}

// CountSince returns how many meetings banana has had since cutoff,
// the signal both the Fetcher's priority score and its should-sync
// frequency classification are built on.
func (r *MeetingRepository) CountSince(ctx context.Context, banana string, cutoff time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM meetings WHERE banana = $1 AND date >= $2`, banana, cutoff).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("repository: count meetings since for %s: %w", banana, err)
	}
	return count, nil
}

// CountTotals returns the total number of meetings tracked and how many
// of those already carry a summary, the two headline numbers the
// conductor's status report surfaces.
func (r *MeetingRepository) CountTotals(ctx context.Context) (total, summarized int, err error) {
	err = r.db.QueryRow(ctx, `SELECT COUNT(*), COUNT(summary) FROM meetings`).Scan(&total, &summarized)
	if err != nil {
		return 0, 0, fmt.Errorf("repository: count meeting totals: %w", err)
	}
	return total, summarized, nil
}

func scanMeeting(row rowScanner) (*models.Meeting, error) {
	var m models.Meeting
	var participation []byte
	var status, processingStatus string
	err := row.Scan(
		&m.ID, &m.Banana, &m.Title, &m.Date, &m.AgendaURL, &m.PacketURL,
		&m.Summary, &participation, &status, &processingStatus,
		&m.ProcessingMethod, &m.ProcessingTime, &m.CommitteeID,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMeetingNotFound
		}
		return nil, fmt.Errorf("repository: scan meeting: %w", err)
	}
	m.Status = models.MeetingStatus(status)
	m.ProcessingStatus = models.ProcessingStatus(processingStatus)
	if len(participation) > 0 {
		if err := json.Unmarshal(participation, &m.Participation); err != nil {
			return nil, fmt.Errorf("repository: unmarshal participation: %w", err)
		}
	}
	return &m, nil
}
