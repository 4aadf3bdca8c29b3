package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/sourcearchive/indexer/pkg/apperrors"
	"github.com/sourcearchive/indexer/pkg/models"
	"github.com/sourcearchive/indexer/pkg/repositories"
	"github.com/sourcearchive/indexer/pkg/storage"
)

// OriginAggregator copies directory-level facts up to origin level and
// ingests extrinsic metadata records. Origin facts are the rows the search
// surface queries, so they are always written with overwrite semantics: the
// newest aggregation for an origin replaces the previous one.
type OriginAggregator struct {
	intrinsic repositories.OriginIntrinsicRepository
	extrinsic repositories.OriginExtrinsicRepository
	logger    *zap.Logger
}

// NewOriginAggregator creates an OriginAggregator.
func NewOriginAggregator(
	intrinsic repositories.OriginIntrinsicRepository,
	extrinsic repositories.OriginExtrinsicRepository,
	logger *zap.Logger,
) *OriginAggregator {
	return &OriginAggregator{
		intrinsic: intrinsic,
		extrinsic: extrinsic,
		logger:    logger.Named("origin_aggregator"),
	}
}

// AggregateIntrinsic records the directory fact as the origin's intrinsic
// metadata, keeping a provenance pointer to the directory it came from.
func (a *OriginAggregator) AggregateIntrinsic(ctx context.Context, originURL string, dir models.DirectoryIntrinsicRow) error {
	row := models.OriginIntrinsicRow{
		OriginURL:     originURL,
		ToolID:        dir.ToolID,
		Metadata:      dir.Metadata,
		Mappings:      dir.Mappings,
		FromDirectory: dir.ID,
	}
	if _, err := a.intrinsic.Add(ctx, []models.OriginIntrinsicRow{row}, models.PolicyOverwrite); err != nil {
		return fmt.Errorf("failed to store origin intrinsic fact for %s: %w", originURL, err)
	}
	return nil
}

// AggregateExtrinsic validates and stores one remote metadata record.
//
// A record whose declared authority does not live on the same host as the
// origin it claims to describe is dropped, not failed: third parties may
// say anything about any origin, and silently ignoring mismatches is the
// whole point of the check. Malformed payloads are an error because they
// indicate a broken feed, not a hostile one.
func (a *OriginAggregator) AggregateExtrinsic(ctx context.Context, record storage.RawExtrinsicRecord, toolID int64) error {
	ok, err := sameHost(record.DeclaredAuthority, record.TargetOrigin)
	if err != nil {
		return fmt.Errorf("failed to compare authority for %s: %w", record.ID, err)
	}
	if !ok {
		a.logger.Info("dropping extrinsic record from foreign authority",
			zap.String("record", record.ID),
			zap.String("origin", record.TargetOrigin),
			zap.String("authority", record.DeclaredAuthority))
		return nil
	}

	if !json.Valid(record.RawBytes) {
		return fmt.Errorf("record %s (%s): %w", record.ID, record.DeclaredFormat, apperrors.ErrUnsupportedFormat)
	}

	row := models.OriginExtrinsicRow{
		OriginURL:    record.TargetOrigin,
		ToolID:       toolID,
		Metadata:     record.RawBytes,
		FromRemoteID: record.ID,
		Format:       record.DeclaredFormat,
		Authority:    record.DeclaredAuthority,
	}
	if _, err := a.extrinsic.Add(ctx, []models.OriginExtrinsicRow{row}, models.PolicyOverwrite); err != nil {
		return fmt.Errorf("failed to store origin extrinsic fact for %s: %w", record.TargetOrigin, err)
	}
	return nil
}

// sameHost reports whether two URLs share a host, ignoring scheme and path.
func sameHost(a, b string) (bool, error) {
	ua, err := url.Parse(a)
	if err != nil {
		return false, fmt.Errorf("bad authority url %q: %w", a, err)
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false, fmt.Errorf("bad origin url %q: %w", b, err)
	}
	return ua.Host != "" && ua.Host == ub.Host, nil
}
