package services

import (
	"context"
	"fmt"
	"mime"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/sourcearchive/indexer/pkg/models"
	"github.com/sourcearchive/indexer/pkg/repositories"
	"github.com/sourcearchive/indexer/pkg/storage"
)

// MimetypeIndexer detects the media type and character encoding of content
// blobs and records them as facts.
type MimetypeIndexer struct {
	objects storage.ObjectStorage
	repo    repositories.ContentMimetypeRepository
	toolID  int64
	logger  *zap.Logger
}

// NewMimetypeIndexer creates a MimetypeIndexer writing facts for the given
// registered tool.
func NewMimetypeIndexer(objects storage.ObjectStorage, repo repositories.ContentMimetypeRepository, toolID int64, logger *zap.Logger) *MimetypeIndexer {
	return &MimetypeIndexer{
		objects: objects,
		repo:    repo,
		toolID:  toolID,
		logger:  logger.Named("mimetype_indexer"),
	}
}

// IndexContents detects and stores mimetype facts for the given hashes.
// Hashes already indexed by this tool are skipped without fetching the
// blob. Returns the number of facts written.
func (m *MimetypeIndexer) IndexContents(ctx context.Context, ids []models.Sha1) (int64, error) {
	keys := make([]models.FactKey, len(ids))
	for i, id := range ids {
		keys[i] = models.FactKey{ID: id, ToolID: m.toolID}
	}
	missing, err := m.repo.Missing(ctx, keys)
	if err != nil {
		return 0, fmt.Errorf("failed to filter indexed contents: %w", err)
	}
	if len(missing) == 0 {
		return 0, nil
	}

	rows := make([]models.ContentMimetypeRow, 0, len(missing))
	for _, id := range missing {
		blob, err := m.objects.GetBlob(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("failed to fetch blob %s: %w", id, err)
		}

		mediaType, encoding := detectMimetype(blob)
		rows = append(rows, models.ContentMimetypeRow{
			ID:       id,
			ToolID:   m.toolID,
			Mimetype: mediaType,
			Encoding: encoding,
		})
	}

	written, err := m.repo.Add(ctx, rows, models.PolicySkip)
	if err != nil {
		return written, fmt.Errorf("failed to store mimetype facts: %w", err)
	}
	m.logger.Debug("indexed content mimetypes",
		zap.Int("requested", len(ids)),
		zap.Int("detected", len(rows)),
		zap.Int64("written", written))
	return written, nil
}

// detectMimetype splits detection output into media type and encoding.
// Binary content has no charset parameter and is recorded as "binary".
func detectMimetype(blob []byte) (mediaType, encoding string) {
	detected := mimetype.Detect(blob)
	mediaType, params, err := mime.ParseMediaType(detected.String())
	if err != nil {
		return detected.String(), "binary"
	}
	encoding = params["charset"]
	if encoding == "" {
		encoding = "binary"
	}
	return mediaType, encoding
}
