package repository

import (
	"context"
	"fmt"
)

// replaceTopics replaces every topic row for entityID in table, keyed
// by fkColumn, with the given set — a delete-then-insert rather than a
// diff, since topic lists are short and always fully replaced together.
func replaceTopics(ctx context.Context, db DB, table, fkColumn, entityID string, topics []string) error {
	_, err := db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, table, fkColumn), entityID)
	if err != nil {
		return fmt.Errorf("repository: clear topics in %s: %w", table, err)
	}
	for _, topic := range topics {
		_, err := db.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (%s, topic) VALUES ($1, $2) ON CONFLICT DO NOTHING`, table, fkColumn), entityID, topic)
		if err != nil {
			return fmt.Errorf("repository: insert topic in %s: %w", table, err)
		}
	}
	return nil
}

// fetchTopicsBatch returns the topics recorded for every id in ids,
// keyed by id, in one round trip -- the batch-by-ids shape the
// requirements document's repository section calls for.
func fetchTopicsBatch(ctx context.Context, db DB, table, fkColumn string, ids []string) (map[string][]string, error) {
	result := make(map[string][]string)
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := db.Query(ctx, fmt.Sprintf(`SELECT %s, topic FROM %s WHERE %s = ANY($1)`, fkColumn, table, fkColumn), ids)
	if err != nil {
		return nil, fmt.Errorf("repository: fetch topics batch from %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, topic string
		if err := rows.Scan(&id, &topic); err != nil {
			return nil, fmt.Errorf("repository: scan topic batch: %w", err)
		}
		result[id] = append(result[id], topic)
	}
	return result, rows.Err()
}

// fetchTopics returns the topics recorded for entityID in table.
func fetchTopics(ctx context.Context, db DB, table, fkColumn, entityID string) ([]string, error) {
	rows, err := db.Query(ctx, fmt.Sprintf(`SELECT topic FROM %s WHERE %s = $1`, table, fkColumn), entityID)
	if err != nil {
		return nil, fmt.Errorf("repository: fetch topics from %s: %w", table, err)
	}
	defer rows.Close()

	var topics []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("repository: scan topic: %w", err)
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}
