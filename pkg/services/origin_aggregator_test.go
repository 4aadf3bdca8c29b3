package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sourcearchive/indexer/pkg/apperrors"
	"github.com/sourcearchive/indexer/pkg/models"
	"github.com/sourcearchive/indexer/pkg/storage"
)

func TestOriginAggregator_AggregateIntrinsic(t *testing.T) {
	intrinsic := newFakeOriginIntrinsicRepo()
	aggregator := NewOriginAggregator(intrinsic, newFakeOriginExtrinsicRepo(), zap.NewNop())

	dirID := sha(0x20)
	dir := models.DirectoryIntrinsicRow{
		ID:       dirID,
		ToolID:   testToolID,
		Metadata: json.RawMessage(`{"name":"leftpad"}`),
		Mappings: []string{"npm"},
	}

	originURL := "https://github.com/example/leftpad"
	require.NoError(t, aggregator.AggregateIntrinsic(context.Background(), originURL, dir))

	rows, err := intrinsic.Get(context.Background(), []string{originURL})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, dirID.String(), rows[0].FromDirectory.String(), "provenance pointer kept")
	assert.Equal(t, []string{"npm"}, rows[0].Mappings)
	assert.JSONEq(t, `{"name":"leftpad"}`, string(rows[0].Metadata))
}

func TestOriginAggregator_IntrinsicOverwrites(t *testing.T) {
	intrinsic := newFakeOriginIntrinsicRepo()
	aggregator := NewOriginAggregator(intrinsic, newFakeOriginExtrinsicRepo(), zap.NewNop())

	originURL := "https://github.com/example/leftpad"
	ctx := context.Background()

	first := models.DirectoryIntrinsicRow{ID: sha(0x21), ToolID: testToolID, Metadata: json.RawMessage(`{"version":"1"}`)}
	second := models.DirectoryIntrinsicRow{ID: sha(0x22), ToolID: testToolID, Metadata: json.RawMessage(`{"version":"2"}`)}
	require.NoError(t, aggregator.AggregateIntrinsic(ctx, originURL, first))
	require.NoError(t, aggregator.AggregateIntrinsic(ctx, originURL, second))

	rows, err := intrinsic.Get(ctx, []string{originURL})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.JSONEq(t, `{"version":"2"}`, string(rows[0].Metadata), "newer aggregation replaces the old one")
}

func TestOriginAggregator_ExtrinsicStored(t *testing.T) {
	extrinsic := newFakeOriginExtrinsicRepo()
	aggregator := NewOriginAggregator(newFakeOriginIntrinsicRepo(), extrinsic, zap.NewNop())

	record := storage.RawExtrinsicRecord{
		ID:                "rec-1",
		TargetOrigin:      "https://github.com/example/leftpad",
		RawBytes:          []byte(`{"stargazers_count":42}`),
		DeclaredAuthority: "https://github.com",
		DeclaredFormat:    "application/json",
	}
	require.NoError(t, aggregator.AggregateExtrinsic(context.Background(), record, testToolID))

	rows, err := extrinsic.Get(context.Background(), []string{record.TargetOrigin})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "rec-1", rows[0].FromRemoteID)
	assert.Equal(t, "https://github.com", rows[0].Authority)
}

func TestOriginAggregator_ForeignAuthorityDropped(t *testing.T) {
	extrinsic := newFakeOriginExtrinsicRepo()
	aggregator := NewOriginAggregator(newFakeOriginIntrinsicRepo(), extrinsic, zap.NewNop())

	record := storage.RawExtrinsicRecord{
		ID:                "rec-2",
		TargetOrigin:      "https://github.com/example/leftpad",
		RawBytes:          []byte(`{"claim":"bogus"}`),
		DeclaredAuthority: "https://evil.example.org",
		DeclaredFormat:    "application/json",
	}

	// Dropped silently: no error, no row.
	require.NoError(t, aggregator.AggregateExtrinsic(context.Background(), record, testToolID))

	rows, err := extrinsic.Get(context.Background(), []string{record.TargetOrigin})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestOriginAggregator_MalformedPayloadRejected(t *testing.T) {
	aggregator := NewOriginAggregator(newFakeOriginIntrinsicRepo(), newFakeOriginExtrinsicRepo(), zap.NewNop())

	record := storage.RawExtrinsicRecord{
		ID:                "rec-3",
		TargetOrigin:      "https://github.com/example/leftpad",
		RawBytes:          []byte(`<html>`),
		DeclaredAuthority: "https://github.com",
		DeclaredFormat:    "text/html",
	}
	err := aggregator.AggregateExtrinsic(context.Background(), record, testToolID)
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedFormat)
}
