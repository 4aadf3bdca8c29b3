package storage

import (
	"context"
	"sync"

	"github.com/sourcearchive/indexer/pkg/apperrors"
	"github.com/sourcearchive/indexer/pkg/models"
)

// MemoryArchive is an in-memory GraphStorage + ObjectStorage used in tests
// and local development. All maps are keyed by hex-encoded hashes.
type MemoryArchive struct {
	mu          sync.RWMutex
	snapshots   map[string]*Snapshot // origin URL -> latest snapshot
	revisions   map[string]*Revision
	directories map[string][]DirectoryEntry
	blobs       map[string][]byte
}

var (
	_ GraphStorage  = (*MemoryArchive)(nil)
	_ ObjectStorage = (*MemoryArchive)(nil)
)

// NewMemoryArchive creates an empty archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{
		snapshots:   make(map[string]*Snapshot),
		revisions:   make(map[string]*Revision),
		directories: make(map[string][]DirectoryEntry),
		blobs:       make(map[string][]byte),
	}
}

// SetSnapshot records the latest snapshot for an origin.
func (a *MemoryArchive) SetSnapshot(originURL string, s *Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshots[originURL] = s
}

// AddRevision stores a revision object.
func (a *MemoryArchive) AddRevision(r *Revision) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revisions[r.ID.String()] = r
}

// AddDirectory stores a directory listing.
func (a *MemoryArchive) AddDirectory(id models.Sha1, entries []DirectoryEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.directories[id.String()] = entries
}

// AddBlob stores raw content.
func (a *MemoryArchive) AddBlob(id models.Sha1, data []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.blobs[id.String()] = data
}

func (a *MemoryArchive) GetLatestSnapshot(_ context.Context, originURL string) (*Snapshot, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.snapshots[originURL]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return s, nil
}

func (a *MemoryArchive) GetRevision(_ context.Context, id models.Sha1) (*Revision, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.revisions[id.String()]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return r, nil
}

func (a *MemoryArchive) GetDirectoryEntries(_ context.Context, id models.Sha1) ([]DirectoryEntry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	entries, ok := a.directories[id.String()]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	out := make([]DirectoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (a *MemoryArchive) GetBlob(_ context.Context, id models.Sha1) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := a.blobs[id.String()]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return b, nil
}
