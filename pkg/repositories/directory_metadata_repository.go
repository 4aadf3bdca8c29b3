package repositories

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/sourcearchive/indexer/pkg/database"
	"github.com/sourcearchive/indexer/pkg/models"
)

// DirectoryMetadataRepository stores aggregated intrinsic metadata per
// directory. An empty fact row (empty metadata, empty mappings) is a valid,
// meaningful record: it says the directory was processed and nothing was
// found, as opposed to never having been processed at all.
type DirectoryMetadataRepository interface {
	Add(ctx context.Context, rows []models.DirectoryIntrinsicRow, policy models.ConflictPolicy) (int64, error)
	Get(ctx context.Context, ids []models.Sha1) ([]models.DirectoryIntrinsicRow, error)
	Missing(ctx context.Context, keys []models.FactKey) ([]models.Sha1, error)
}

type directoryMetadataRepository struct {
	db    *database.DB
	tools ToolRepository
}

// NewDirectoryMetadataRepository creates a DirectoryMetadataRepository.
func NewDirectoryMetadataRepository(db *database.DB, tools ToolRepository) DirectoryMetadataRepository {
	return &directoryMetadataRepository{db: db, tools: tools}
}

var _ DirectoryMetadataRepository = (*directoryMetadataRepository)(nil)

func (r *directoryMetadataRepository) Add(ctx context.Context, rows []models.DirectoryIntrinsicRow, policy models.ConflictPolicy) (int64, error) {
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

	valid := make([]models.DirectoryIntrinsicRow, 0, len(rows))
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
			INSERT INTO directory_intrinsic_metadata (id, indexer_configuration_id, metadata, mappings)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id, indexer_configuration_id)
			DO UPDATE SET metadata = EXCLUDED.metadata, mappings = EXCLUDED.mappings`
	} else {
		query = `
			INSERT INTO directory_intrinsic_metadata (id, indexer_configuration_id, metadata, mappings)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id, indexer_configuration_id) DO NOTHING`
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin directory metadata add: %w", err)
	}
	defer tx.Rollback(ctx)

	var affected int64
	for _, row := range deduped {
		mappings := row.Mappings
		if mappings == nil {
			mappings = []string{}
		}
		tag, err := tx.Exec(ctx, query, []byte(row.ID), row.ToolID, row.Metadata, mappings)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert directory metadata for %s: %w", row.ID, err)
		}
		affected += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit directory metadata add: %w", err)
	}
	return affected, integrityErr
}

func (r *directoryMetadataRepository) Get(ctx context.Context, ids []models.Sha1) ([]models.DirectoryIntrinsicRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, indexer_configuration_id, metadata, mappings
		FROM directory_intrinsic_metadata
		WHERE id = ANY($1)
		ORDER BY id, indexer_configuration_id`

	rows, err := r.db.Query(ctx, query, sha1Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query directory metadata: %w", err)
	}
	defer rows.Close()

	var out []models.DirectoryIntrinsicRow
	for rows.Next() {
		var row models.DirectoryIntrinsicRow
		var id []byte
		if err := rows.Scan(&id, &row.ToolID, &row.Metadata, &row.Mappings); err != nil {
			return nil, fmt.Errorf("failed to scan directory metadata row: %w", err)
		}
		row.ID = id
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *directoryMetadataRepository) Missing(ctx context.Context, keys []models.FactKey) ([]models.Sha1, error) {
	return missingKeys(ctx, r.db, "directory_intrinsic_metadata", keys)
}
