package repositories

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/sourcearchive/indexer/pkg/database"
	"github.com/sourcearchive/indexer/pkg/models"
)

// ContentMetadataRepository stores translated metadata documents keyed by
// (content sha1, tool id).
type ContentMetadataRepository interface {
	Add(ctx context.Context, rows []models.ContentMetadataRow, policy models.ConflictPolicy) (int64, error)
	Get(ctx context.Context, ids []models.Sha1) ([]models.ContentMetadataRow, error)
	Missing(ctx context.Context, keys []models.FactKey) ([]models.Sha1, error)
}

type contentMetadataRepository struct {
	db    *database.DB
	tools ToolRepository
}

// NewContentMetadataRepository creates a ContentMetadataRepository.
func NewContentMetadataRepository(db *database.DB, tools ToolRepository) ContentMetadataRepository {
	return &contentMetadataRepository{db: db, tools: tools}
}

var _ ContentMetadataRepository = (*contentMetadataRepository)(nil)

func (r *contentMetadataRepository) Add(ctx context.Context, rows []models.ContentMetadataRow, policy models.ConflictPolicy) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	toolIDs := make([]int64, len(rows))
	for i, row := range rows {
		toolIDs[i] = row.ToolID
	}
	known, err := checkTools(ctx, r.tools, toolIDs)
	if err != nil {
		return 0, err
	}
	integrityErr := integrityErrors(known, toolIDs)

	valid := make([]models.ContentMetadataRow, 0, len(rows))
	for _, row := range rows {
		if known[row.ToolID] {
			valid = append(valid, row)
		}
	}

	sort.Slice(valid, func(i, j int) bool {
		a, b := valid[i], valid[j]
		if c := compareKeys(a.ID, a.ToolID, b.ID, b.ToolID); c != 0 {
			return c < 0
		}
		return bytes.Compare(a.Metadata, b.Metadata) < 0
	})
	deduped := valid[:0]
	for i, row := range valid {
		if i > 0 {
			prev := deduped[len(deduped)-1]
			if compareKeys(prev.ID, prev.ToolID, row.ID, row.ToolID) == 0 {
				if policy == models.PolicyOverwrite {
					deduped[len(deduped)-1] = row
				}
				continue
			}
		}
		deduped = append(deduped, row)
	}

	var query string
	if policy == models.PolicyOverwrite {
		query = `
			INSERT INTO content_metadata (id, indexer_configuration_id, metadata)
			VALUES ($1, $2, $3)
			ON CONFLICT (id, indexer_configuration_id)
			DO UPDATE SET metadata = EXCLUDED.metadata`
	} else {
		query = `
			INSERT INTO content_metadata (id, indexer_configuration_id, metadata)
			VALUES ($1, $2, $3)
			ON CONFLICT (id, indexer_configuration_id) DO NOTHING`
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin content metadata add: %w", err)
	}
	defer tx.Rollback(ctx)

	var affected int64
	for _, row := range deduped {
		tag, err := tx.Exec(ctx, query, []byte(row.ID), row.ToolID, row.Metadata)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert content metadata for %s: %w", row.ID, err)
		}
		affected += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit content metadata add: %w", err)
	}
	return affected, integrityErr
}

func (r *contentMetadataRepository) Get(ctx context.Context, ids []models.Sha1) ([]models.ContentMetadataRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, indexer_configuration_id, metadata
		FROM content_metadata
		WHERE id = ANY($1)
		ORDER BY id, indexer_configuration_id`

	rows, err := r.db.Query(ctx, query, sha1Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query content metadata: %w", err)
	}
	defer rows.Close()

	var out []models.ContentMetadataRow
	for rows.Next() {
		var row models.ContentMetadataRow
		var id []byte
		if err := rows.Scan(&id, &row.ToolID, &row.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan content metadata row: %w", err)
		}
		row.ID = id
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *contentMetadataRepository) Missing(ctx context.Context, keys []models.FactKey) ([]models.Sha1, error) {
	return missingKeys(ctx, r.db, "content_metadata", keys)
}
