package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sourcearchive/indexer/pkg/models"
	"github.com/sourcearchive/indexer/pkg/storage"
)

func TestMimetypeIndexer_DetectsTextAndBinary(t *testing.T) {
	archive := storage.NewMemoryArchive()
	textID := sha(0x50)
	binID := sha(0x51)
	archive.AddBlob(textID, []byte("package main\n\nfunc main() {}\n"))
	archive.AddBlob(binID, []byte{0x7f, 'E', 'L', 'F', 0x02, 0x01, 0x01, 0x00})

	repo := newFakeMimetypeRepo()
	indexer := NewMimetypeIndexer(archive, repo, testToolID, zap.NewNop())

	written, err := indexer.IndexContents(context.Background(), []models.Sha1{textID, binID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), written)

	rows, err := repo.Get(context.Background(), []models.Sha1{textID, binID})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byID := map[string]models.ContentMimetypeRow{}
	for _, row := range rows {
		byID[row.ID.String()] = row
	}
	assert.Equal(t, "text/plain", byID[textID.String()].Mimetype)
	assert.Equal(t, "utf-8", byID[textID.String()].Encoding)
	assert.Equal(t, "binary", byID[binID.String()].Encoding)
}

func TestMimetypeIndexer_SkipsAlreadyIndexed(t *testing.T) {
	archive := storage.NewMemoryArchive()
	id := sha(0x52)
	archive.AddBlob(id, []byte("hello\n"))

	repo := newFakeMimetypeRepo()
	indexer := NewMimetypeIndexer(archive, repo, testToolID, zap.NewNop())
	ctx := context.Background()

	written, err := indexer.IndexContents(ctx, []models.Sha1{id})
	require.NoError(t, err)
	assert.Equal(t, int64(1), written)

	written, err = indexer.IndexContents(ctx, []models.Sha1{id})
	require.NoError(t, err)
	assert.Zero(t, written, "already-indexed hashes are filtered before fetching")
}
