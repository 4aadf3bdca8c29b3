package services

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sourcearchive/indexer/pkg/models"
	"github.com/sourcearchive/indexer/pkg/repositories"
	"github.com/sourcearchive/indexer/pkg/storage"
)

// spdxTag marks a machine-readable license declaration inside a source
// file, per the SPDX conventions.
const spdxTag = "SPDX-License-Identifier:"

// licenseScanLimit caps how much of a blob the scanner reads. License tags
// sit at the top of files; scanning megabytes of minified bundle buys
// nothing.
const licenseScanLimit = 64 * 1024

// LicenseIndexer scans content blobs for SPDX license declarations and
// records each identifier as a license fact.
type LicenseIndexer struct {
	objects storage.ObjectStorage
	repo    repositories.ContentLicenseRepository
	toolID  int64
	logger  *zap.Logger
}

// NewLicenseIndexer creates a LicenseIndexer writing facts for the given
// registered tool.
func NewLicenseIndexer(objects storage.ObjectStorage, repo repositories.ContentLicenseRepository, toolID int64, logger *zap.Logger) *LicenseIndexer {
	return &LicenseIndexer{
		objects: objects,
		repo:    repo,
		toolID:  toolID,
		logger:  logger.Named("license_indexer"),
	}
}

// IndexContents scans the given blobs and stores one fact per detected
// license identifier. Blobs with no declaration produce no facts; that is
// not an error. Returns the number of facts written.
func (l *LicenseIndexer) IndexContents(ctx context.Context, ids []models.Sha1) (int64, error) {
	var rows []models.ContentLicenseRow
	for _, id := range ids {
		blob, err := l.objects.GetBlob(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("failed to fetch blob %s: %w", id, err)
		}
		for _, license := range ScanLicenses(blob) {
			rows = append(rows, models.ContentLicenseRow{
				ID:      id,
				ToolID:  l.toolID,
				License: license,
			})
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}

	written, err := l.repo.Add(ctx, rows, models.PolicySkip)
	if err != nil {
		return written, fmt.Errorf("failed to store license facts: %w", err)
	}
	l.logger.Debug("indexed content licenses",
		zap.Int("contents", len(ids)),
		zap.Int64("written", written))
	return written, nil
}

// ScanLicenses extracts the SPDX license identifiers declared in a blob.
// Compound expressions are split on their operators, so a declaration of
// "MIT OR Apache-2.0" yields both identifiers. Results are sorted and
// deduplicated.
func ScanLicenses(blob []byte) []string {
	if len(blob) > licenseScanLimit {
		blob = blob[:licenseScanLimit]
	}

	found := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(blob))
	scanner.Buffer(make([]byte, 64*1024), 64*1024)
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.Index(line, spdxTag)
		if idx < 0 {
			continue
		}
		expr := line[idx+len(spdxTag):]
		// Strip trailing comment closers before tokenizing.
		expr = strings.NewReplacer("*/", " ", "-->", " ", "(", " ", ")", " ").Replace(expr)
		for _, token := range strings.Fields(expr) {
			switch token {
			case "OR", "AND", "WITH":
				continue
			}
			found[token] = true
		}
	}

	licenses := make([]string, 0, len(found))
	for name := range found {
		licenses = append(licenses, name)
	}
	sort.Strings(licenses)
	return licenses
}
