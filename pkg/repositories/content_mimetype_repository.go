package repositories

import (
	"context"
	"fmt"
	"sort"

	"github.com/sourcearchive/indexer/pkg/database"
	"github.com/sourcearchive/indexer/pkg/models"
)

// ContentMimetypeRepository stores detected mimetype facts keyed by
// (content sha1, tool id).
type ContentMimetypeRepository interface {
	// Add bulk-upserts rows under the given conflict policy and returns
	// the number of rows written. Entries referencing unregistered tools
	// are rejected individually; the returned error joins one
	// ReferentialIntegrityError per rejected tool while valid entries are
	// still written.
	Add(ctx context.Context, rows []models.ContentMimetypeRow, policy models.ConflictPolicy) (int64, error)

	// Get fetches all facts for the given hashes. Absent ids simply yield
	// no rows.
	Get(ctx context.Context, ids []models.Sha1) ([]models.ContentMimetypeRow, error)

	// Missing returns the subset of keys that have no stored fact yet.
	Missing(ctx context.Context, keys []models.FactKey) ([]models.Sha1, error)
}

type contentMimetypeRepository struct {
	db    *database.DB
	tools ToolRepository
}

// NewContentMimetypeRepository creates a ContentMimetypeRepository.
func NewContentMimetypeRepository(db *database.DB, tools ToolRepository) ContentMimetypeRepository {
	return &contentMimetypeRepository{db: db, tools: tools}
}

var _ ContentMimetypeRepository = (*contentMimetypeRepository)(nil)

func (r *contentMimetypeRepository) Add(ctx context.Context, rows []models.ContentMimetypeRow, policy models.ConflictPolicy) (int64, error) {
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

	valid := make([]models.ContentMimetypeRow, 0, len(rows))
	for _, row := range rows {
		if known[row.ToolID] {
			valid = append(valid, row)
		}
	}

	// Sort by key, then payload, then collapse duplicate keys. The
	// survivor is a function of the batch contents only, so any
	// permutation of the same batch stores the same row.
	sort.Slice(valid, func(i, j int) bool {
		a, b := valid[i], valid[j]
		if c := compareKeys(a.ID, a.ToolID, b.ID, b.ToolID); c != 0 {
			return c < 0
		}
		if a.Mimetype != b.Mimetype {
			return a.Mimetype < b.Mimetype
		}
		return a.Encoding < b.Encoding
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
			INSERT INTO content_mimetype (id, indexer_configuration_id, mimetype, encoding)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id, indexer_configuration_id)
			DO UPDATE SET mimetype = EXCLUDED.mimetype, encoding = EXCLUDED.encoding`
	} else {
		query = `
			INSERT INTO content_mimetype (id, indexer_configuration_id, mimetype, encoding)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id, indexer_configuration_id) DO NOTHING`
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin mimetype add: %w", err)
	}
	defer tx.Rollback(ctx)

	var affected int64
	for _, row := range deduped {
		tag, err := tx.Exec(ctx, query, []byte(row.ID), row.ToolID, row.Mimetype, row.Encoding)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert mimetype for %s: %w", row.ID, err)
		}
		affected += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit mimetype add: %w", err)
	}
	return affected, integrityErr
}

func (r *contentMimetypeRepository) Get(ctx context.Context, ids []models.Sha1) ([]models.ContentMimetypeRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, indexer_configuration_id, mimetype, encoding
		FROM content_mimetype
		WHERE id = ANY($1)
		ORDER BY id, indexer_configuration_id`

	rows, err := r.db.Query(ctx, query, sha1Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query mimetypes: %w", err)
	}
	defer rows.Close()

	var out []models.ContentMimetypeRow
	for rows.Next() {
		var row models.ContentMimetypeRow
		var id []byte
		if err := rows.Scan(&id, &row.ToolID, &row.Mimetype, &row.Encoding); err != nil {
			return nil, fmt.Errorf("failed to scan mimetype row: %w", err)
		}
		row.ID = id
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *contentMimetypeRepository) Missing(ctx context.Context, keys []models.FactKey) ([]models.Sha1, error) {
	return missingKeys(ctx, r.db, "content_mimetype", keys)
}
