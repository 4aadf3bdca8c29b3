// Package storage defines the interfaces the indexer consumes from the
// archive's graph and object storage. The archive itself is an external
// collaborator; the indexer only reads from it.
package storage

import (
	"context"

	"github.com/sourcearchive/indexer/pkg/models"
)

// TargetType discriminates what a snapshot branch points at.
type TargetType string

const (
	TargetRevision  TargetType = "revision"
	TargetDirectory TargetType = "directory"
	TargetAlias     TargetType = "alias"
	TargetRelease   TargetType = "release"
	TargetContent   TargetType = "content"
)

// Branch is one named pointer inside a snapshot. For aliases, Target holds
// the name of the branch pointed to rather than an object hash.
type Branch struct {
	TargetType TargetType
	Target     []byte
	AliasTo    string
}

// Snapshot captures the full set of branches of an origin at one visit.
type Snapshot struct {
	ID       models.Sha1
	Branches map[string]Branch
}

// Revision is the subset of a revision object the indexer cares about.
type Revision struct {
	ID        models.Sha1
	Directory models.Sha1
}

// EntryType discriminates directory entries.
type EntryType string

const (
	EntryFile EntryType = "file"
	EntryDir  EntryType = "dir"
	EntryRev  EntryType = "rev"
)

// DirectoryEntry is one immediate child of a directory.
type DirectoryEntry struct {
	Name   string
	Type   EntryType
	Target models.Sha1
}

// GraphStorage reads the archive's Merkle DAG.
type GraphStorage interface {
	// GetLatestSnapshot returns the most recent snapshot for an origin,
	// or apperrors.ErrNotFound if the origin was never visited.
	GetLatestSnapshot(ctx context.Context, originURL string) (*Snapshot, error)

	// GetRevision resolves a revision hash to its object.
	GetRevision(ctx context.Context, id models.Sha1) (*Revision, error)

	// GetDirectoryEntries lists the immediate entries of a directory.
	// One level only; sub-directories are indexed when visited as their
	// own objects.
	GetDirectoryEntries(ctx context.Context, id models.Sha1) ([]DirectoryEntry, error)
}

// ObjectStorage reads raw blob contents by hash.
type ObjectStorage interface {
	GetBlob(ctx context.Context, id models.Sha1) ([]byte, error)
}

// RawExtrinsicRecord is one record from the remote metadata feed (forge
// APIs, deposits). DeclaredAuthority is the base URL of the forge or
// registry that claims to describe the target.
type RawExtrinsicRecord struct {
	ID                string
	TargetOrigin      string
	RawBytes          []byte
	DeclaredAuthority string
	DeclaredFormat    string
}
