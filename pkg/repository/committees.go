package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/google/uuid"

	"github.com/engagic/ingest/pkg/models"
)

// ErrCommitteeNotFound is returned when a lookup finds nothing.
var ErrCommitteeNotFound = errors.New("repository: committee not found")

// CommitteeRepository stores and resolves committees (standing bodies
// like a planning commission) a meeting or matter appearance may be
// attributed to.
type CommitteeRepository struct {
	db DB
}

// GetOrCreate resolves a committee by (banana, slug), creating it if
// this is the first time a vendor adapter has reported it.
func (r *CommitteeRepository) GetOrCreate(ctx context.Context, banana, slug, name string) (*models.Committee, error) {
	row := r.db.QueryRow(ctx, `SELECT id, banana, name, slug FROM committees WHERE banana = $1 AND slug = $2`, banana, slug)
	c, err := scanCommittee(row)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrCommitteeNotFound) {
		return nil, err
	}

	id := uuid.NewString()
	_, err = r.db.Exec(ctx, `
		INSERT INTO committees (id, banana, name, slug) VALUES ($1, $2, $3, $4)
		ON CONFLICT (banana, slug) DO NOTHING
	`, id, banana, name, slug)
	if err != nil {
		return nil, fmt.Errorf("repository: create committee %s/%s: %w", banana, slug, err)
	}

	row = r.db.QueryRow(ctx, `SELECT id, banana, name, slug FROM committees WHERE banana = $1 AND slug = $2`, banana, slug)
	return scanCommittee(row)
}

func scanCommittee(row rowScanner) (*models.Committee, error) {
	var c models.Committee
	if err := row.Scan(&c.ID, &c.Banana, &c.Name, &c.Slug); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCommitteeNotFound
		}
		return nil, fmt.Errorf("repository: scan committee: %w", err)
	}
	return &c, nil
}
