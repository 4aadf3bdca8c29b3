package repositories

import (
	"context"
	"fmt"
	"sort"

	"github.com/sourcearchive/indexer/pkg/apperrors"
	"github.com/sourcearchive/indexer/pkg/database"
	"github.com/sourcearchive/indexer/pkg/models"
)

// ToolRepository is the tool registry: it deduplicates and assigns stable
// ids to (name, version, configuration) triples.
type ToolRepository interface {
	// Register inserts any unknown tools and returns all of them with ids
	// filled in. Calling twice with the same triples returns the same ids;
	// concurrent first registrations converge on one row because the
	// uniqueness constraint on the triple is the serialization point, not
	// any client-side locking.
	Register(ctx context.Context, tools []models.Tool) ([]models.Tool, error)

	// GetByID fetches one tool, or apperrors.ErrNotFound.
	GetByID(ctx context.Context, id int64) (*models.Tool, error)

	// Exists reports which of the given ids are registered.
	Exists(ctx context.Context, ids []int64) (map[int64]bool, error)
}

type toolRepository struct {
	db *database.DB
}

// NewToolRepository creates a ToolRepository.
func NewToolRepository(db *database.DB) ToolRepository {
	return &toolRepository{db: db}
}

var _ ToolRepository = (*toolRepository)(nil)

func (r *toolRepository) Register(ctx context.Context, tools []models.Tool) ([]models.Tool, error) {
	if len(tools) == 0 {
		return nil, nil
	}

	// Stable order keeps concurrent bulk registrations from deadlocking on
	// overlapping triples.
	unique := make(map[string]models.Tool, len(tools))
	for _, tool := range tools {
		unique[tool.NaturalKey()] = tool
	}
	ordered := make([]models.Tool, 0, len(unique))
	for _, tool := range unique {
		ordered = append(ordered, tool)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].NaturalKey() < ordered[j].NaturalKey()
	})

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tool registration: %w", err)
	}
	defer tx.Rollback(ctx)

	insert := `
		INSERT INTO indexer_configuration (tool_name, tool_version, tool_configuration)
		VALUES ($1, $2, $3)
		ON CONFLICT (tool_name, tool_version, tool_configuration) DO NOTHING`

	for _, tool := range ordered {
		if _, err := tx.Exec(ctx, insert, tool.Name, tool.Version, tool.ConfigurationKey()); err != nil {
			return nil, fmt.Errorf("failed to insert tool %s/%s: %w", tool.Name, tool.Version, err)
		}
	}

	// Join back to pick up ids, including rows another caller won the race
	// to insert.
	lookup := `
		SELECT id
		FROM indexer_configuration
		WHERE tool_name = $1 AND tool_version = $2 AND tool_configuration = $3::jsonb`

	byKey := make(map[string]int64, len(ordered))
	for _, tool := range ordered {
		var id int64
		err := tx.QueryRow(ctx, lookup, tool.Name, tool.Version, tool.ConfigurationKey()).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve tool %s/%s: %w", tool.Name, tool.Version, err)
		}
		byKey[tool.NaturalKey()] = id
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit tool registration: %w", err)
	}

	out := make([]models.Tool, len(tools))
	for i, tool := range tools {
		tool.ID = byKey[tool.NaturalKey()]
		out[i] = tool
	}
	return out, nil
}

func (r *toolRepository) GetByID(ctx context.Context, id int64) (*models.Tool, error) {
	query := `
		SELECT id, tool_name, tool_version, tool_configuration
		FROM indexer_configuration
		WHERE id = $1`

	var tool models.Tool
	err := r.db.QueryRow(ctx, query, id).Scan(&tool.ID, &tool.Name, &tool.Version, &tool.Configuration)
	if err != nil {
		if isNoRows(err) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tool %d: %w", id, err)
	}
	return &tool, nil
}

func (r *toolRepository) Exists(ctx context.Context, ids []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.db.Query(ctx, `SELECT id FROM indexer_configuration WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to check tool ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tool id: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}
