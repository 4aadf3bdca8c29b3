package repositories

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/sourcearchive/indexer/pkg/database"
	"github.com/sourcearchive/indexer/pkg/models"
)

// OriginIntrinsicRepository stores intrinsic metadata copied up to origins,
// with a derived full-text search vector. The vector is recomputed inside
// the upsert from the incoming payload, so it can never go stale relative
// to the stored metadata.
type OriginIntrinsicRepository interface {
	Add(ctx context.Context, rows []models.OriginIntrinsicRow, policy models.ConflictPolicy) (int64, error)
	Get(ctx context.Context, originURLs []string) ([]models.OriginIntrinsicRow, error)

	// SearchFulltext matches the query against the stored search vectors
	// and returns origins ordered by relevance. The 'simple' text search
	// configuration is used on both sides: no stemming, no stopwords, so
	// identifiers and proper nouns match verbatim.
	SearchFulltext(ctx context.Context, query string, limit int) ([]models.OriginIntrinsicRow, error)

	// SearchByMappings returns origins whose metadata cites at least one
	// of the given ecosystem mappings.
	SearchByMappings(ctx context.Context, mappings []string, limit int) ([]models.OriginIntrinsicRow, error)
}

// OriginExtrinsicRepository stores metadata obtained outside the source
// tree, keyed and searched the same way as the intrinsic variant.
type OriginExtrinsicRepository interface {
	Add(ctx context.Context, rows []models.OriginExtrinsicRow, policy models.ConflictPolicy) (int64, error)
	Get(ctx context.Context, originURLs []string) ([]models.OriginExtrinsicRow, error)
}

type originIntrinsicRepository struct {
	db    *database.DB
	tools ToolRepository
}

// NewOriginIntrinsicRepository creates an OriginIntrinsicRepository.
func NewOriginIntrinsicRepository(db *database.DB, tools ToolRepository) OriginIntrinsicRepository {
	return &originIntrinsicRepository{db: db, tools: tools}
}

var _ OriginIntrinsicRepository = (*originIntrinsicRepository)(nil)

func compareOriginKeys(aURL string, aTool int64, bURL string, bTool int64) int {
	if c := strings.Compare(aURL, bURL); c != 0 {
		return c
	}
	switch {
	case aTool < bTool:
		return -1
	case aTool > bTool:
		return 1
	default:
		return 0
	}
}

func (r *originIntrinsicRepository) Add(ctx context.Context, rows []models.OriginIntrinsicRow, policy models.ConflictPolicy) (int64, error) {
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

	valid := make([]models.OriginIntrinsicRow, 0, len(rows))
	for _, row := range rows {
		if known[row.ToolID] {
			valid = append(valid, row)
		}
	}

	sort.Slice(valid, func(i, j int) bool {
		a, b := valid[i], valid[j]
		if c := compareOriginKeys(a.OriginURL, a.ToolID, b.OriginURL, b.ToolID); c != 0 {
			return c < 0
		}
		return bytes.Compare(a.Metadata, b.Metadata) < 0
	})
	deduped := valid[:0]
	for i, row := range valid {
		if i > 0 {
			prev := deduped[len(deduped)-1]
			if compareOriginKeys(prev.OriginURL, prev.ToolID, row.OriginURL, row.ToolID) == 0 {
				if policy == models.PolicyOverwrite {
					deduped[len(deduped)-1] = row
				}
				continue
			}
		}
		deduped = append(deduped, row)
	}

	// metadata_tsvector is always derived from the incoming payload, for
	// both the insert and the conflict-update arm.
	var query string
	if policy == models.PolicyOverwrite {
		query = `
			INSERT INTO origin_intrinsic_metadata
				(id, indexer_configuration_id, metadata, mappings, from_directory, metadata_tsvector)
			VALUES ($1, $2, $3, $4, $5, to_tsvector('simple', $3::text))
			ON CONFLICT (id, indexer_configuration_id)
			DO UPDATE SET
				metadata = EXCLUDED.metadata,
				mappings = EXCLUDED.mappings,
				from_directory = EXCLUDED.from_directory,
				metadata_tsvector = EXCLUDED.metadata_tsvector`
	} else {
		query = `
			INSERT INTO origin_intrinsic_metadata
				(id, indexer_configuration_id, metadata, mappings, from_directory, metadata_tsvector)
			VALUES ($1, $2, $3, $4, $5, to_tsvector('simple', $3::text))
			ON CONFLICT (id, indexer_configuration_id) DO NOTHING`
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin origin metadata add: %w", err)
	}
	defer tx.Rollback(ctx)

	var affected int64
	for _, row := range deduped {
		mappings := row.Mappings
		if mappings == nil {
			mappings = []string{}
		}
		tag, err := tx.Exec(ctx, query,
			row.OriginURL, row.ToolID, row.Metadata, mappings, []byte(row.FromDirectory))
		if err != nil {
			return 0, fmt.Errorf("failed to upsert origin metadata for %s: %w", row.OriginURL, err)
		}
		affected += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit origin metadata add: %w", err)
	}
	return affected, integrityErr
}

const originIntrinsicColumns = `id, indexer_configuration_id, metadata, mappings, from_directory`

func (r *originIntrinsicRepository) Get(ctx context.Context, originURLs []string) ([]models.OriginIntrinsicRow, error) {
	if len(originURLs) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM origin_intrinsic_metadata
		WHERE id = ANY($1)
		ORDER BY id, indexer_configuration_id`, originIntrinsicColumns)

	rows, err := r.db.Query(ctx, query, originURLs)
	if err != nil {
		return nil, fmt.Errorf("failed to query origin metadata: %w", err)
	}
	defer rows.Close()
	return scanOriginIntrinsic(rows)
}

func (r *originIntrinsicRepository) SearchFulltext(ctx context.Context, query string, limit int) ([]models.OriginIntrinsicRow, error) {
	if limit <= 0 {
		limit = 50
	}

	sql := fmt.Sprintf(`
		SELECT %s
		FROM origin_intrinsic_metadata
		WHERE metadata_tsvector @@ plainto_tsquery('simple', $1)
		ORDER BY ts_rank(metadata_tsvector, plainto_tsquery('simple', $1)) DESC, id
		LIMIT $2`, originIntrinsicColumns)

	rows, err := r.db.Query(ctx, sql, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search origin metadata: %w", err)
	}
	defer rows.Close()
	return scanOriginIntrinsic(rows)
}

func (r *originIntrinsicRepository) SearchByMappings(ctx context.Context, mappings []string, limit int) ([]models.OriginIntrinsicRow, error) {
	if limit <= 0 {
		limit = 50
	}

	sql := fmt.Sprintf(`
		SELECT %s
		FROM origin_intrinsic_metadata
		WHERE mappings && $1::text[]
		ORDER BY id
		LIMIT $2`, originIntrinsicColumns)

	rows, err := r.db.Query(ctx, sql, mappings, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search origin metadata by mappings: %w", err)
	}
	defer rows.Close()
	return scanOriginIntrinsic(rows)
}

func scanOriginIntrinsic(rows pgx.Rows) ([]models.OriginIntrinsicRow, error) {
	var out []models.OriginIntrinsicRow
	for rows.Next() {
		var row models.OriginIntrinsicRow
		var fromDir []byte
		if err := rows.Scan(&row.OriginURL, &row.ToolID, &row.Metadata, &row.Mappings, &fromDir); err != nil {
			return nil, fmt.Errorf("failed to scan origin metadata row: %w", err)
		}
		row.FromDirectory = fromDir
		out = append(out, row)
	}
	return out, rows.Err()
}

type originExtrinsicRepository struct {
	db    *database.DB
	tools ToolRepository
}

// NewOriginExtrinsicRepository creates an OriginExtrinsicRepository.
func NewOriginExtrinsicRepository(db *database.DB, tools ToolRepository) OriginExtrinsicRepository {
	return &originExtrinsicRepository{db: db, tools: tools}
}

var _ OriginExtrinsicRepository = (*originExtrinsicRepository)(nil)

func (r *originExtrinsicRepository) Add(ctx context.Context, rows []models.OriginExtrinsicRow, policy models.ConflictPolicy) (int64, error) {
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

	valid := make([]models.OriginExtrinsicRow, 0, len(rows))
	for _, row := range rows {
		if known[row.ToolID] {
			valid = append(valid, row)
		}
	}

	sort.Slice(valid, func(i, j int) bool {
		a, b := valid[i], valid[j]
		if c := compareOriginKeys(a.OriginURL, a.ToolID, b.OriginURL, b.ToolID); c != 0 {
			return c < 0
		}
		return bytes.Compare(a.Metadata, b.Metadata) < 0
	})
	deduped := valid[:0]
	for i, row := range valid {
		if i > 0 {
			prev := deduped[len(deduped)-1]
			if compareOriginKeys(prev.OriginURL, prev.ToolID, row.OriginURL, row.ToolID) == 0 {
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
			INSERT INTO origin_extrinsic_metadata
				(id, indexer_configuration_id, metadata, from_remote_id, format, authority, metadata_tsvector)
			VALUES ($1, $2, $3, $4, $5, $6, to_tsvector('simple', $3::text))
			ON CONFLICT (id, indexer_configuration_id)
			DO UPDATE SET
				metadata = EXCLUDED.metadata,
				from_remote_id = EXCLUDED.from_remote_id,
				format = EXCLUDED.format,
				authority = EXCLUDED.authority,
				metadata_tsvector = EXCLUDED.metadata_tsvector`
	} else {
		query = `
			INSERT INTO origin_extrinsic_metadata
				(id, indexer_configuration_id, metadata, from_remote_id, format, authority, metadata_tsvector)
			VALUES ($1, $2, $3, $4, $5, $6, to_tsvector('simple', $3::text))
			ON CONFLICT (id, indexer_configuration_id) DO NOTHING`
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin extrinsic metadata add: %w", err)
	}
	defer tx.Rollback(ctx)

	var affected int64
	for _, row := range deduped {
		tag, err := tx.Exec(ctx, query,
			row.OriginURL, row.ToolID, row.Metadata, row.FromRemoteID, row.Format, row.Authority)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert extrinsic metadata for %s: %w", row.OriginURL, err)
		}
		affected += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit extrinsic metadata add: %w", err)
	}
	return affected, integrityErr
}

func (r *originExtrinsicRepository) Get(ctx context.Context, originURLs []string) ([]models.OriginExtrinsicRow, error) {
	if len(originURLs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, indexer_configuration_id, metadata, from_remote_id, format, authority
		FROM origin_extrinsic_metadata
		WHERE id = ANY($1)
		ORDER BY id, indexer_configuration_id`

	rows, err := r.db.Query(ctx, query, originURLs)
	if err != nil {
		return nil, fmt.Errorf("failed to query extrinsic metadata: %w", err)
	}
	defer rows.Close()

	var out []models.OriginExtrinsicRow
	for rows.Next() {
		var row models.OriginExtrinsicRow
		if err := rows.Scan(&row.OriginURL, &row.ToolID, &row.Metadata, &row.FromRemoteID, &row.Format, &row.Authority); err != nil {
			return nil, fmt.Errorf("failed to scan extrinsic metadata row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
