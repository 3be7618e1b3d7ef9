package repository

import (
	"context"
	"fmt"

	"github.com/engagic/ingest/pkg/models"
)

// SearchMatters runs a full-text search over a city's matters, ranking
// by PostgreSQL's ts_rank and falling back to a plain ILIKE match on the
// matter file number so a search for "24-0091" still finds the matter
// even though ts_rank would score it near zero.
func (r *MatterRepository) SearchMatters(ctx context.Context, banana, query string, limit int) ([]models.Matter, error) {
	rows, err := r.db.Query(ctx, `
		SELECT
			id, banana, matter_id, matter_file, matter_type,
			title, sponsors, canonical_summary, canonical_topics,
			attachments, metadata, first_seen, last_seen,
			appearance_count, status, final_vote_date, quality_score, rating_count,
			created_at, updated_at
		FROM city_matters
		WHERE banana = $2
		  AND (
		      to_tsvector('english', title || ' ' || COALESCE(canonical_summary, ''))
		          @@ plainto_tsquery('english', $1)
		      OR matter_file ILIKE '%' || $1 || '%'
		  )
		ORDER BY ts_rank(
			to_tsvector('english', title || ' ' || COALESCE(canonical_summary, '')),
			plainto_tsquery('english', $1)
		) DESC, last_seen DESC
		LIMIT $3
	`, query, banana, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: search matters: %w", err)
	}
	defer rows.Close()

	var matters []models.Matter
	for rows.Next() {
		m, err := scanMatter(rows)
		if err != nil {
			return nil, err
		}
		matters = append(matters, *m)
	}
	return matters, rows.Err()
}

// SearchMeetings runs a full-text search over a city's meetings.
func (r *MeetingRepository) SearchMeetings(ctx context.Context, banana, query string, limit int) ([]models.Meeting, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, banana, title, date, agenda_url, packet_url,
		       summary, participation, status, processing_status,
		       processing_method, processing_time, committee_id,
		       created_at, updated_at
		FROM meetings
		WHERE banana = $2
		  AND to_tsvector('english', title || ' ' || COALESCE(summary, '')) @@ plainto_tsquery('english', $1)
		ORDER BY ts_rank(
			to_tsvector('english', title || ' ' || COALESCE(summary, '')),
			plainto_tsquery('english', $1)
		) DESC
		LIMIT $3
	`, query, banana, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: search meetings: %w", err)
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
