package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/sourcearchive/indexer/pkg/apperrors"
	"github.com/sourcearchive/indexer/pkg/models"
	"github.com/sourcearchive/indexer/pkg/repositories"
	"github.com/sourcearchive/indexer/pkg/storage"
	"github.com/sourcearchive/indexer/pkg/translator"
)

// DirectoryExtractor aggregates intrinsic metadata for one directory: it
// lists the top-level entries, translates every recognized metadata file,
// and merges the results into a single directory fact.
type DirectoryExtractor struct {
	graph       storage.GraphStorage
	objects     storage.ObjectStorage
	registry    *translator.Registry
	translator  *translator.Translator
	contentMeta repositories.ContentMetadataRepository
	dirMeta     repositories.DirectoryMetadataRepository
	logger      *zap.Logger
}

// NewDirectoryExtractor creates a DirectoryExtractor.
func NewDirectoryExtractor(
	graph storage.GraphStorage,
	objects storage.ObjectStorage,
	registry *translator.Registry,
	trans *translator.Translator,
	contentMeta repositories.ContentMetadataRepository,
	dirMeta repositories.DirectoryMetadataRepository,
	logger *zap.Logger,
) *DirectoryExtractor {
	return &DirectoryExtractor{
		graph:       graph,
		objects:     objects,
		registry:    registry,
		translator:  trans,
		contentMeta: contentMeta,
		dirMeta:     dirMeta,
		logger:      logger.Named("directory_extractor"),
	}
}

// contribution is one file's translated document, tagged for merge ordering.
type contribution struct {
	filename  string
	ecosystem translator.Ecosystem
	doc       translator.Document
}

// IndexDirectory translates the directory's top-level metadata files, writes
// per-content facts as a side effect, and upserts the merged directory fact.
//
// The written fact is always present after a successful call, even when the
// directory holds no metadata at all: an empty fact records that the
// directory was processed and nothing was found, which is distinct from the
// directory never having been looked at.
func (e *DirectoryExtractor) IndexDirectory(ctx context.Context, dirID models.Sha1, toolID int64) (models.DirectoryIntrinsicRow, error) {
	row := models.DirectoryIntrinsicRow{
		ID:       dirID,
		ToolID:   toolID,
		Metadata: json.RawMessage("{}"),
		Mappings: []string{},
	}

	entries, err := e.graph.GetDirectoryEntries(ctx, dirID)
	if err != nil {
		return row, fmt.Errorf("failed to list directory %s: %w", dirID, err)
	}

	contribs, err := e.translateEntries(ctx, entries, toolID)
	if err != nil {
		return row, err
	}

	// Merge in file name order so the result does not depend on listing
	// order. Later documents win on term collisions.
	sort.Slice(contribs, func(i, j int) bool {
		return contribs[i].filename < contribs[j].filename
	})

	docs := make([]translator.Document, 0, len(contribs))
	mappingSet := make(map[string]bool)
	for _, c := range contribs {
		if c.doc.IsEmpty() {
			continue
		}
		docs = append(docs, c.doc)
		mappingSet[string(c.ecosystem)] = true
	}

	merged := translator.Merge(docs...)
	if !merged.IsEmpty() {
		metadata, err := json.Marshal(merged)
		if err != nil {
			return row, fmt.Errorf("failed to encode directory metadata: %w", err)
		}
		row.Metadata = metadata
	}

	mappings := make([]string, 0, len(mappingSet))
	for m := range mappingSet {
		mappings = append(mappings, m)
	}
	sort.Strings(mappings)
	row.Mappings = mappings

	if _, err := e.dirMeta.Add(ctx, []models.DirectoryIntrinsicRow{row}, models.PolicyOverwrite); err != nil {
		return row, fmt.Errorf("failed to store directory fact for %s: %w", dirID, err)
	}
	return row, nil
}

// translateEntries produces one contribution per recognized metadata file.
// Stored content facts win over fresh translation, so a file shared between
// thousands of directories is parsed once. Malformed files are logged and
// skipped; they never fail the directory.
func (e *DirectoryExtractor) translateEntries(ctx context.Context, entries []storage.DirectoryEntry, toolID int64) ([]contribution, error) {
	type matched struct {
		entry     storage.DirectoryEntry
		ecosystem translator.Ecosystem
	}

	var files []matched
	for _, entry := range entries {
		if entry.Type != storage.EntryFile {
			continue
		}
		eco, ok := e.registry.Match(entry.Name)
		if !ok {
			continue
		}
		files = append(files, matched{entry: entry, ecosystem: eco})
	}
	if len(files) == 0 {
		return nil, nil
	}

	ids := make([]models.Sha1, len(files))
	for i, f := range files {
		ids[i] = f.entry.Target
	}
	stored, err := e.contentMeta.Get(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to look up stored content facts: %w", err)
	}
	cached := make(map[string]json.RawMessage)
	for _, fact := range stored {
		if fact.ToolID == toolID {
			cached[fact.ID.String()] = fact.Metadata
		}
	}

	var contribs []contribution
	var freshFacts []models.ContentMetadataRow
	for _, f := range files {
		doc, fresh, err := e.translateOne(ctx, f.entry, f.ecosystem, cached)
		if err != nil {
			var parseErr *apperrors.ParseError
			if errors.As(err, &parseErr) || errors.Is(err, apperrors.ErrUnsupportedFormat) {
				e.logger.Warn("skipping untranslatable metadata file",
					zap.String("file", f.entry.Name),
					zap.String("content", f.entry.Target.String()),
					zap.Error(err))
				continue
			}
			return nil, err
		}
		contribs = append(contribs, contribution{
			filename:  f.entry.Name,
			ecosystem: f.ecosystem,
			doc:       doc,
		})
		if fresh != nil {
			freshFacts = append(freshFacts, models.ContentMetadataRow{
				ID:       f.entry.Target,
				ToolID:   toolID,
				Metadata: fresh,
			})
		}
	}

	if len(freshFacts) > 0 {
		if _, err := e.contentMeta.Add(ctx, freshFacts, models.PolicySkip); err != nil {
			return nil, fmt.Errorf("failed to store content facts: %w", err)
		}
	}
	return contribs, nil
}

// translateOne returns the document for one file, preferring the stored
// fact. The second return is the freshly encoded metadata when the file was
// actually parsed, nil when the stored fact was reused.
func (e *DirectoryExtractor) translateOne(ctx context.Context, entry storage.DirectoryEntry, eco translator.Ecosystem, cached map[string]json.RawMessage) (translator.Document, json.RawMessage, error) {
	if raw, ok := cached[entry.Target.String()]; ok {
		var doc translator.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, nil, fmt.Errorf("failed to decode stored fact for %s: %w", entry.Target, err)
		}
		return doc, nil, nil
	}

	blob, err := e.objects.GetBlob(ctx, entry.Target)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch blob %s: %w", entry.Target, err)
	}

	doc, err := e.translator.Translate(blob, eco)
	if err != nil {
		return nil, nil, err
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode document for %s: %w", entry.Target, err)
	}
	return doc, encoded, nil
}
