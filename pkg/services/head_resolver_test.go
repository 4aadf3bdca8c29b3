package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sourcearchive/indexer/pkg/apperrors"
	"github.com/sourcearchive/indexer/pkg/models"
	"github.com/sourcearchive/indexer/pkg/storage"
)

func sha(b byte) models.Sha1 {
	s := make([]byte, 20)
	for i := range s {
		s[i] = b
	}
	return s
}

func TestHeadResolver_HeadAliasWins(t *testing.T) {
	archive := storage.NewMemoryArchive()
	revID := sha(0x01)
	dirID := sha(0x02)
	archive.AddRevision(&storage.Revision{ID: revID, Directory: dirID})
	archive.SetSnapshot("https://github.com/example/project", &storage.Snapshot{
		Branches: map[string]storage.Branch{
			"HEAD":              {TargetType: storage.TargetAlias, AliasTo: "refs/heads/develop"},
			"refs/heads/develop": {TargetType: storage.TargetRevision, Target: revID},
			"refs/heads/main":   {TargetType: storage.TargetRevision, Target: sha(0x99)},
		},
	})

	resolver := NewHeadResolver(archive, zap.NewNop())
	got, err := resolver.Resolve(context.Background(), "https://github.com/example/project")
	require.NoError(t, err)
	assert.Equal(t, dirID.String(), got.String(), "HEAD alias outranks refs/heads/main")
}

func TestHeadResolver_FallbackPrecedence(t *testing.T) {
	archive := storage.NewMemoryArchive()
	mainRev := sha(0x03)
	mainDir := sha(0x04)
	archive.AddRevision(&storage.Revision{ID: mainRev, Directory: mainDir})
	archive.AddRevision(&storage.Revision{ID: sha(0x05), Directory: sha(0x06)})
	archive.SetSnapshot("https://example.org/repo", &storage.Snapshot{
		Branches: map[string]storage.Branch{
			"refs/heads/main":   {TargetType: storage.TargetRevision, Target: mainRev},
			"refs/heads/master": {TargetType: storage.TargetRevision, Target: sha(0x05)},
		},
	})

	resolver := NewHeadResolver(archive, zap.NewNop())
	got, err := resolver.Resolve(context.Background(), "https://example.org/repo")
	require.NoError(t, err)
	assert.Equal(t, mainDir.String(), got.String())
}

func TestHeadResolver_DirectoryTarget(t *testing.T) {
	archive := storage.NewMemoryArchive()
	dirID := sha(0x07)
	archive.SetSnapshot("https://example.org/tarball", &storage.Snapshot{
		Branches: map[string]storage.Branch{
			"HEAD": {TargetType: storage.TargetDirectory, Target: dirID},
		},
	})

	resolver := NewHeadResolver(archive, zap.NewNop())
	got, err := resolver.Resolve(context.Background(), "https://example.org/tarball")
	require.NoError(t, err)
	assert.Equal(t, dirID.String(), got.String())
}

func TestHeadResolver_NoCanonicalBranch(t *testing.T) {
	archive := storage.NewMemoryArchive()
	archive.SetSnapshot("https://example.org/odd", &storage.Snapshot{
		Branches: map[string]storage.Branch{
			"refs/heads/develop": {TargetType: storage.TargetRevision, Target: sha(0x08)},
		},
	})

	resolver := NewHeadResolver(archive, zap.NewNop())
	_, err := resolver.Resolve(context.Background(), "https://example.org/odd")
	assert.ErrorIs(t, err, apperrors.ErrNoCanonicalBranch)
}

func TestHeadResolver_AliasCycleBounded(t *testing.T) {
	archive := storage.NewMemoryArchive()
	archive.SetSnapshot("https://example.org/cycle", &storage.Snapshot{
		Branches: map[string]storage.Branch{
			"HEAD": {TargetType: storage.TargetAlias, AliasTo: "loop"},
			"loop": {TargetType: storage.TargetAlias, AliasTo: "HEAD"},
		},
	})

	resolver := NewHeadResolver(archive, zap.NewNop())
	_, err := resolver.Resolve(context.Background(), "https://example.org/cycle")
	assert.ErrorIs(t, err, apperrors.ErrNoCanonicalBranch)
}

func TestHeadResolver_UnknownOrigin(t *testing.T) {
	resolver := NewHeadResolver(storage.NewMemoryArchive(), zap.NewNop())
	_, err := resolver.Resolve(context.Background(), "https://example.org/missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestHeadResolver_SkipsUnsupportedTargets(t *testing.T) {
	archive := storage.NewMemoryArchive()
	dirID := sha(0x09)
	archive.SetSnapshot("https://example.org/releases", &storage.Snapshot{
		Branches: map[string]storage.Branch{
			"HEAD":            {TargetType: storage.TargetRelease, Target: sha(0x0a)},
			"refs/heads/main": {TargetType: storage.TargetDirectory, Target: dirID},
		},
	})

	resolver := NewHeadResolver(archive, zap.NewNop())
	got, err := resolver.Resolve(context.Background(), "https://example.org/releases")
	require.NoError(t, err)
	assert.Equal(t, dirID.String(), got.String())
}
