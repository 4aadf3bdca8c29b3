package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sourcearchive/indexer/pkg/models"
	"github.com/sourcearchive/indexer/pkg/storage"
	"github.com/sourcearchive/indexer/pkg/translator"
)

type dispatcherFixture struct {
	archive    *dispatcherArchive
	dispatcher *Dispatcher
	scheduler  *fakeScheduler
	dirMeta    *fakeDirectoryMetadataRepo
	intrinsic  *fakeOriginIntrinsicRepo
}

type dispatcherArchive struct {
	*storage.MemoryArchive
}

func newDispatcherFixture() *dispatcherFixture {
	archive := storage.NewMemoryArchive()
	logger := zap.NewNop()

	contentMeta := newFakeContentMetadataRepo()
	dirMeta := newFakeDirectoryMetadataRepo()
	intrinsic := newFakeOriginIntrinsicRepo()
	scheduler := &fakeScheduler{}

	resolver := NewHeadResolver(archive, logger)
	extractor := NewDirectoryExtractor(
		archive, archive,
		translator.DefaultRegistry(), translator.New(),
		contentMeta, dirMeta, logger,
	)
	aggregator := NewOriginAggregator(intrinsic, newFakeOriginExtrinsicRepo(), logger)

	return &dispatcherFixture{
		archive:    &dispatcherArchive{archive},
		dispatcher: NewDispatcher(resolver, extractor, aggregator, dirMeta, scheduler, logger),
		scheduler:  scheduler,
		dirMeta:    dirMeta,
		intrinsic:  intrinsic,
	}
}

// seedNpmOrigin builds a minimal archived npm project: snapshot -> HEAD
// revision -> root directory holding a package.json.
func (f *dispatcherFixture) seedNpmOrigin(originURL string) models.Sha1 {
	revID := sha(0x30)
	dirID := sha(0x31)
	pkgID := sha(0x32)

	f.archive.AddBlob(pkgID, []byte(`{"name":"leftpad","version":"1.2.3","author":"Jane Doe <jane@example.org>"}`))
	f.archive.AddDirectory(dirID, []storage.DirectoryEntry{
		{Name: "package.json", Type: storage.EntryFile, Target: pkgID},
	})
	f.archive.AddRevision(&storage.Revision{ID: revID, Directory: dirID})
	f.archive.SetSnapshot(originURL, &storage.Snapshot{
		Branches: map[string]storage.Branch{
			"HEAD": {TargetType: storage.TargetRevision, Target: revID},
		},
	})
	return dirID
}

// drain runs delivered tasks until the transport is empty, mimicking the
// consumer loop.
func (f *dispatcherFixture) drain(t *testing.T, ctx context.Context) []models.Stage {
	t.Helper()
	var stages []models.Stage
	for {
		task, ok := f.scheduler.pop()
		if !ok {
			return stages
		}
		stages = append(stages, task.Stage)
		require.NoError(t, f.dispatcher.Handle(ctx, task))
	}
}

func TestDispatcher_FullPipelineRun(t *testing.T) {
	f := newDispatcherFixture()
	originURL := "https://github.com/example/leftpad"
	dirID := f.seedNpmOrigin(originURL)
	ctx := context.Background()

	start := models.IndexTask{
		RunID:     "run-1",
		Stage:     models.StagePending,
		OriginURL: originURL,
		ToolID:    testToolID,
	}
	require.NoError(t, f.dispatcher.Handle(ctx, start))

	stages := f.drain(t, ctx)
	assert.Equal(t, []models.Stage{
		models.StageHeadResolved,
		models.StageDirectoryIndexed,
		models.StageOriginAggregated,
	}, stages)

	// The origin fact carries the translated metadata and its provenance.
	rows, err := f.intrinsic.Get(ctx, []string{originURL})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, dirID.String(), rows[0].FromDirectory.String())

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rows[0].Metadata, &doc))
	assert.Equal(t, "leftpad", doc["name"])
	assert.Equal(t, "1.2.3", doc["version"])
	author, ok := doc["author"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Jane Doe", author["name"])
	assert.Equal(t, []string{"npm"}, rows[0].Mappings)
}

func TestDispatcher_DuplicateDeliveryIsIdempotent(t *testing.T) {
	f := newDispatcherFixture()
	originURL := "https://github.com/example/leftpad"
	f.seedNpmOrigin(originURL)
	ctx := context.Background()

	start := models.IndexTask{
		RunID:     "run-1",
		Stage:     models.StagePending,
		OriginURL: originURL,
		ToolID:    testToolID,
	}
	require.NoError(t, f.dispatcher.Handle(ctx, start))
	// Same delivery again, as an at-least-once transport may do.
	require.NoError(t, f.dispatcher.Handle(ctx, start))
	f.drain(t, ctx)

	rows, err := f.intrinsic.Get(ctx, []string{originURL})
	require.NoError(t, err)
	assert.Len(t, rows, 1, "duplicate deliveries converge on one fact")
}

func TestDispatcher_NoCanonicalBranchEndsRun(t *testing.T) {
	f := newDispatcherFixture()
	originURL := "https://example.org/odd"
	f.archive.SetSnapshot(originURL, &storage.Snapshot{
		Branches: map[string]storage.Branch{
			"refs/heads/develop": {TargetType: storage.TargetRevision, Target: sha(0x40)},
		},
	})
	ctx := context.Background()

	err := f.dispatcher.Handle(ctx, models.IndexTask{
		RunID:     "run-2",
		Stage:     models.StagePending,
		OriginURL: originURL,
		ToolID:    testToolID,
	})
	require.NoError(t, err, "terminal failures are swallowed, not retried")
	assert.Empty(t, f.scheduler.scheduled(), "failed run schedules nothing")
}

func TestDispatcher_TerminalStagesIgnored(t *testing.T) {
	f := newDispatcherFixture()
	ctx := context.Background()

	for _, stage := range []models.Stage{models.StageDone, models.StageFailed} {
		err := f.dispatcher.Handle(ctx, models.IndexTask{
			RunID: "run-3",
			Stage: stage,
		})
		require.NoError(t, err)
	}
	assert.Empty(t, f.scheduler.scheduled())
}
