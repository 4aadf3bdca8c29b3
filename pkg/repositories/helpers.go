package repositories

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sourcearchive/indexer/pkg/apperrors"
	"github.com/sourcearchive/indexer/pkg/database"
	"github.com/sourcearchive/indexer/pkg/models"
)

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// compareKeys orders fact rows by (object id, tool id). Every bulk upsert
// processes rows in this order so two overlapping batches always lock rows
// the same way, which is what keeps them from deadlocking each other.
func compareKeys(aID models.Sha1, aTool int64, bID models.Sha1, bTool int64) int {
	if c := bytes.Compare(aID, bID); c != 0 {
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

// checkTools splits a batch's tool ids into known and unknown. Rows naming
// unknown tools are rejected one by one (ReferentialIntegrityError per
// entry) while the rest of the batch proceeds.
func checkTools(ctx context.Context, tools ToolRepository, ids []int64) (map[int64]bool, error) {
	seen := make(map[int64]bool, len(ids))
	distinct := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			distinct = append(distinct, id)
		}
	}
	return tools.Exists(ctx, distinct)
}

// sha1Array converts hashes to the [][]byte shape pgx binds to bytea[].
func sha1Array(ids []models.Sha1) [][]byte {
	out := make([][]byte, len(ids))
	for i, id := range ids {
		out[i] = []byte(id)
	}
	return out
}

// missingKeys lists the (id, tool) keys with no row in the given fact
// table. The table name comes from a fixed set of repository constants,
// never from caller input.
func missingKeys(ctx context.Context, db *database.DB, table string, keys []models.FactKey) ([]models.Sha1, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	ids := make([][]byte, len(keys))
	tools := make([]int64, len(keys))
	for i, key := range keys {
		ids[i] = []byte(key.ID)
		tools[i] = key.ToolID
	}

	query := fmt.Sprintf(`
		SELECT t.id
		FROM unnest($1::bytea[], $2::bigint[]) AS t(id, tool)
		WHERE NOT EXISTS (
			SELECT 1 FROM %s c
			WHERE c.id = t.id AND c.indexer_configuration_id = t.tool
		)`, table)

	rows, err := db.Query(ctx, query, ids, tools)
	if err != nil {
		return nil, fmt.Errorf("failed to query missing keys in %s: %w", table, err)
	}
	defer rows.Close()

	var out []models.Sha1
	for rows.Next() {
		var id []byte
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan missing key: %w", err)
		}
		out = append(out, models.Sha1(id))
	}
	return out, rows.Err()
}

// integrityErrors builds the per-entry error list for rejected tool ids.
func integrityErrors(known map[int64]bool, ids []int64) error {
	var errs []error
	reported := make(map[int64]bool)
	for _, id := range ids {
		if !known[id] && !reported[id] {
			reported[id] = true
			errs = append(errs, &apperrors.ReferentialIntegrityError{ToolID: id})
		}
	}
	return errors.Join(errs...)
}
