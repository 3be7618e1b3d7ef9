package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/google/uuid"

	"github.com/engagic/ingest/pkg/models"
)

// ErrMatterNotFound is returned when a lookup finds nothing.
var ErrMatterNotFound = errors.New("repository: matter not found")

// MatterRepository stores and retrieves legislative matters and their
// appearances across meetings.
//
// Matter identity is the derived id (banana + hash of matter_file/
// matter_id/title, see syncorch.MatterID): this pipeline never attempts
// to resolve the same matter file number across two different cities
// into a single canonical matter. matter_id itself holds the vendor's
// own identifier verbatim, which may be absent or reused across cities,
// so it is informational only and carries no uniqueness constraint. See
// DESIGN.md.
type MatterRepository struct {
	db DB
}

// Store upserts a matter. On update an existing canonical summary is
// kept (an incoming one only fills an empty slot) and canonical topics
// keep their stored value.
func (r *MatterRepository) Store(ctx context.Context, m models.Matter) (string, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	sponsors, err := json.Marshal(m.Sponsors)
	if err != nil {
		return "", fmt.Errorf("repository: marshal sponsors: %w", err)
	}
	attachments, err := json.Marshal(m.Attachments)
	if err != nil {
		return "", fmt.Errorf("repository: marshal attachments: %w", err)
	}
	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		return "", fmt.Errorf("repository: marshal metadata: %w", err)
	}
	if m.Status == "" {
		m.Status = models.MatterStatusActive
	}
	if m.AppearanceCount == 0 {
		m.AppearanceCount = 1
	}

	var id string
	err = r.db.QueryRow(ctx, `
		INSERT INTO city_matters (
			id, banana, matter_id, matter_file, matter_type,
			title, sponsors, canonical_summary, canonical_topics,
			attachments, metadata, first_seen, last_seen,
			appearance_count, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			matter_id = EXCLUDED.matter_id,
			matter_file = EXCLUDED.matter_file,
			matter_type = EXCLUDED.matter_type,
			title = EXCLUDED.title,
			sponsors = EXCLUDED.sponsors,
			canonical_summary = COALESCE(city_matters.canonical_summary, EXCLUDED.canonical_summary),
			attachments = EXCLUDED.attachments,
			metadata = EXCLUDED.metadata,
			last_seen = EXCLUDED.last_seen,
			status = EXCLUDED.status,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`,
		m.ID, m.Banana, m.MatterID, m.MatterFile, m.MatterType,
		m.Title, sponsors, m.CanonicalSummary, jsonOrNil(m.CanonicalTopics),
		attachments, metadata, m.FirstSeen, m.LastSeen,
		m.AppearanceCount, string(m.Status),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("repository: store matter %s/%s: %w", m.Banana, m.MatterID, err)
	}
	return id, nil
}

func jsonOrNil(v []string) any {
	if len(v) == 0 {
		return nil
	}
	b, _ := json.Marshal(v)
	return b
}

// GetByID returns the matter with the given derived id (see
// syncorch.MatterID), or ErrMatterNotFound.
func (r *MatterRepository) GetByID(ctx context.Context, id string) (*models.Matter, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, banana, matter_id, matter_file, matter_type,
		       title, sponsors, canonical_summary, canonical_topics,
		       attachments, metadata, first_seen, last_seen,
		       appearance_count, status, final_vote_date, quality_score, rating_count,
		       created_at, updated_at
		FROM city_matters WHERE id = $1
	`, id)
	return scanMatter(row)
}

// GetMattersBatch returns every matter in ids in one round trip, the
// batch-by-ids shape the requirements document's repository section
// calls for to avoid N+1 lookups when rendering a page of items.
func (r *MatterRepository) GetMattersBatch(ctx context.Context, ids []string) (map[string]models.Matter, error) {
	result := make(map[string]models.Matter)
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, banana, matter_id, matter_file, matter_type,
		       title, sponsors, canonical_summary, canonical_topics,
		       attachments, metadata, first_seen, last_seen,
		       appearance_count, status, final_vote_date, quality_score, rating_count,
		       created_at, updated_at
		FROM city_matters WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("repository: matters batch: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMatter(rows)
		if err != nil {
			return nil, err
		}
		result[m.ID] = *m
	}
	return result, rows.Err()
}

// IncrementAppearance bumps a matter's appearance count and
// last_seen/attachments atomically, used when the same matter shows up
// again on a later meeting's agenda.
func (r *MatterRepository) IncrementAppearance(ctx context.Context, matterID string, attachments []models.AttachmentInfo) (int, error) {
	payload, err := json.Marshal(attachments)
	if err != nil {
		return 0, fmt.Errorf("repository: marshal attachments: %w", err)
	}
	var count int
	err = r.db.QueryRow(ctx, `
		UPDATE city_matters
		SET last_seen = CURRENT_TIMESTAMP,
		    attachments = $2,
		    appearance_count = appearance_count + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING appearance_count
	`, matterID, payload).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("repository: increment appearance %s: %w", matterID, err)
	}
	return count, nil
}

// HasAppearance reports whether matterID already has an appearance row
// for meetingID. The sync orchestrator uses it to bump a matter's
// appearance count at most once per meeting; the appearance row itself
// is written through CreateAppearance either way.
func (r *MatterRepository) HasAppearance(ctx context.Context, matterID, meetingID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM matter_appearances WHERE matter_id = $1 AND meeting_id = $2)
	`, matterID, meetingID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repository: has appearance: %w", err)
	}
	return exists, nil
}

// CreateAppearance records that matterID appeared on itemID within
// meetingID. A duplicate (matter, meeting, item) triple is a no-op, not
// an error: sync re-runs are expected to hit this.
func (r *MatterRepository) CreateAppearance(ctx context.Context, a models.MatterAppearance) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO matter_appearances (matter_id, meeting_id, item_id, appeared_at, committee, committee_id, sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (matter_id, meeting_id, item_id) DO NOTHING
	`, a.MatterID, a.MeetingID, a.ItemID, a.AppearedAt, a.Committee, a.CommitteeID, a.Sequence)
	if err != nil {
		return fmt.Errorf("repository: create appearance: %w", err)
	}
	return nil
}

// UpdateStatus transitions a matter to a terminal disposition.
func (r *MatterRepository) UpdateStatus(ctx context.Context, matterID string, status models.MatterStatus, finalVoteDate any) error {
	_, err := r.db.Exec(ctx, `
		UPDATE city_matters
		SET status = $2, final_vote_date = COALESCE($3, final_vote_date), updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`, matterID, string(status), finalVoteDate)
	if err != nil {
		return fmt.Errorf("repository: update matter status %s: %w", matterID, err)
	}
	return nil
}

func scanMatter(row rowScanner) (*models.Matter, error) {
	var m models.Matter
	var sponsors, topics, attachments, metadata []byte
	var status string
	err := row.Scan(
		&m.ID, &m.Banana, &m.MatterID, &m.MatterFile, &m.MatterType,
		&m.Title, &sponsors, &m.CanonicalSummary, &topics,
		&attachments, &metadata, &m.FirstSeen, &m.LastSeen,
		&m.AppearanceCount, &status, &m.FinalVoteDate, &m.QualityScore, &m.RatingCount,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMatterNotFound
		}
		return nil, fmt.Errorf("repository: scan matter: %w", err)
	}
	m.Status = models.MatterStatus(status)
	if len(sponsors) > 0 {
		_ = json.Unmarshal(sponsors, &m.Sponsors)
	}
	if len(topics) > 0 {
		_ = json.Unmarshal(topics, &m.CanonicalTopics)
	}
	if len(attachments) > 0 {
		_ = json.Unmarshal(attachments, &m.Attachments)
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &m.Metadata)
	}
	return &m, nil
}
