package repositories

import (
	"context"
	"fmt"
	"sort"

	"github.com/sourcearchive/indexer/pkg/database"
	"github.com/sourcearchive/indexer/pkg/models"
)

// ContentLicenseRepository stores detected license facts. License names are
// normalized through the license dictionary table: fact rows reference the
// small-int id, never the literal name.
type ContentLicenseRepository interface {
	Add(ctx context.Context, rows []models.ContentLicenseRow, policy models.ConflictPolicy) (int64, error)
	Get(ctx context.Context, ids []models.Sha1) ([]models.ContentLicenseRow, error)
}

type contentLicenseRepository struct {
	db    *database.DB
	tools ToolRepository
}

// NewContentLicenseRepository creates a ContentLicenseRepository.
func NewContentLicenseRepository(db *database.DB, tools ToolRepository) ContentLicenseRepository {
	return &contentLicenseRepository{db: db, tools: tools}
}

var _ ContentLicenseRepository = (*contentLicenseRepository)(nil)

func (r *contentLicenseRepository) Add(ctx context.Context, rows []models.ContentLicenseRow, policy models.ConflictPolicy) (int64, error) {
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

	valid := make([]models.ContentLicenseRow, 0, len(rows))
	for _, row := range rows {
		if known[row.ToolID] {
			valid = append(valid, row)
		}
	}

	// A content may legitimately carry several licenses for one tool, so
	// the unique key includes the license itself; sorting includes it too.
	sort.Slice(valid, func(i, j int) bool {
		a, b := valid[i], valid[j]
		if c := compareKeys(a.ID, a.ToolID, b.ID, b.ToolID); c != 0 {
			return c < 0
		}
		return a.License < b.License
	})
	deduped := valid[:0]
	for i, row := range valid {
		if i > 0 {
			prev := deduped[len(deduped)-1]
			if compareKeys(prev.ID, prev.ToolID, row.ID, row.ToolID) == 0 && prev.License == row.License {
				continue
			}
		}
		deduped = append(deduped, row)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin license add: %w", err)
	}
	defer tx.Rollback(ctx)

	// Phase one: make sure every license name has a dictionary id.
	// Conflict-ignore keeps concurrent first-seen licenses from erroring.
	names := make([]string, 0, len(deduped))
	seenName := make(map[string]bool)
	for _, row := range deduped {
		if !seenName[row.License] {
			seenName[row.License] = true
			names = append(names, row.License)
		}
	}
	sort.Strings(names)

	_, err = tx.Exec(ctx, `
		INSERT INTO license (name)
		SELECT unnest($1::text[])
		ON CONFLICT (name) DO NOTHING`, names)
	if err != nil {
		return 0, fmt.Errorf("failed to insert license names: %w", err)
	}

	// Phase two: fact rows referencing the resolved dictionary ids.
	insert := `
		INSERT INTO content_fossology_license (id, indexer_configuration_id, license_id)
		SELECT $1, $2, l.id FROM license l WHERE l.name = $3
		ON CONFLICT (id, indexer_configuration_id, license_id) DO NOTHING`

	var affected int64
	for _, row := range deduped {
		tag, err := tx.Exec(ctx, insert, []byte(row.ID), row.ToolID, row.License)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert license for %s: %w", row.ID, err)
		}
		affected += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit license add: %w", err)
	}
	return affected, integrityErr
}

func (r *contentLicenseRepository) Get(ctx context.Context, ids []models.Sha1) ([]models.ContentLicenseRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT c.id, c.indexer_configuration_id, l.name
		FROM content_fossology_license c
		INNER JOIN license l ON l.id = c.license_id
		WHERE c.id = ANY($1)
		ORDER BY c.id, c.indexer_configuration_id, l.name`

	rows, err := r.db.Query(ctx, query, sha1Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query licenses: %w", err)
	}
	defer rows.Close()

	var out []models.ContentLicenseRow
	for rows.Next() {
		var row models.ContentLicenseRow
		var id []byte
		if err := rows.Scan(&id, &row.ToolID, &row.License); err != nil {
			return nil, fmt.Errorf("failed to scan license row: %w", err)
		}
		row.ID = id
		out = append(out, row)
	}
	return out, rows.Err()
}
