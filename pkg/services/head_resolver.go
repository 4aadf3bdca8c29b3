package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sourcearchive/indexer/pkg/apperrors"
	"github.com/sourcearchive/indexer/pkg/models"
	"github.com/sourcearchive/indexer/pkg/storage"
)

// headBranchCandidates is the precedence order for picking the canonical
// branch of a snapshot. "HEAD" is what most loaders record as the default
// branch alias; the explicit ref names cover loaders that do not.
var headBranchCandidates = []string{
	"HEAD",
	"refs/heads/main",
	"refs/heads/master",
	"main",
	"master",
}

// maxAliasChain bounds alias chasing so a cyclic snapshot cannot hang the
// resolver.
const maxAliasChain = 10

// HeadResolver maps an origin to the root directory of its current head.
type HeadResolver struct {
	graph  storage.GraphStorage
	logger *zap.Logger
}

// NewHeadResolver creates a HeadResolver.
func NewHeadResolver(graph storage.GraphStorage, logger *zap.Logger) *HeadResolver {
	return &HeadResolver{
		graph:  graph,
		logger: logger.Named("head_resolver"),
	}
}

// Resolve returns the root directory hash of the origin's head.
//
// It walks the candidate branch names in precedence order, chasing alias
// chains, and resolves the first branch that ends in a revision or a
// directory. If no candidate resolves, it returns ErrNoCanonicalBranch;
// that outcome is a fact about the snapshot, not a transient fault, so
// callers must not retry it.
func (r *HeadResolver) Resolve(ctx context.Context, originURL string) (models.Sha1, error) {
	snapshot, err := r.graph.GetLatestSnapshot(ctx, originURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot for %s: %w", originURL, err)
	}

	for _, name := range headBranchCandidates {
		branch, ok := r.chaseAliases(snapshot, name)
		if !ok {
			continue
		}

		switch branch.TargetType {
		case storage.TargetRevision:
			rev, err := r.graph.GetRevision(ctx, models.Sha1(branch.Target))
			if err != nil {
				return nil, fmt.Errorf("failed to load head revision of %s: %w", originURL, err)
			}
			return rev.Directory, nil
		case storage.TargetDirectory:
			return models.Sha1(branch.Target), nil
		default:
			r.logger.Debug("skipping branch with unsupported target",
				zap.String("origin", originURL),
				zap.String("branch", name),
				zap.String("target_type", string(branch.TargetType)))
		}
	}

	return nil, fmt.Errorf("origin %s: %w", originURL, apperrors.ErrNoCanonicalBranch)
}

// chaseAliases follows alias branches starting at name until it reaches a
// concrete target. Missing names and over-long chains yield no branch.
func (r *HeadResolver) chaseAliases(snapshot *storage.Snapshot, name string) (storage.Branch, bool) {
	for hop := 0; hop < maxAliasChain; hop++ {
		branch, ok := snapshot.Branches[name]
		if !ok {
			return storage.Branch{}, false
		}
		if branch.TargetType != storage.TargetAlias {
			return branch, true
		}
		name = branch.AliasTo
	}
	return storage.Branch{}, false
}
