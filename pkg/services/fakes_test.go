package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/sourcearchive/indexer/pkg/models"
)

// The fakes below implement the repository interfaces with plain maps.
// They apply the same conflict semantics as the real store so pipeline
// tests exercise idempotence without Postgres.

type fakeContentMetadataRepo struct {
	mu   sync.Mutex
	rows map[string]models.ContentMetadataRow // sha1 hex + tool id
	gets int
}

func newFakeContentMetadataRepo() *fakeContentMetadataRepo {
	return &fakeContentMetadataRepo{rows: make(map[string]models.ContentMetadataRow)}
}

func contentKey(id models.Sha1, toolID int64) string {
	return fmt.Sprintf("%s/%d", id, toolID)
}

func (f *fakeContentMetadataRepo) Add(_ context.Context, rows []models.ContentMetadataRow, policy models.ConflictPolicy) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var written int64
	for _, row := range rows {
		key := contentKey(row.ID, row.ToolID)
		if _, exists := f.rows[key]; exists && policy == models.PolicySkip {
			continue
		}
		f.rows[key] = row
		written++
	}
	return written, nil
}

func (f *fakeContentMetadataRepo) Get(_ context.Context, ids []models.Sha1) ([]models.ContentMetadataRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	var out []models.ContentMetadataRow
	for _, row := range f.rows {
		for _, id := range ids {
			if row.ID.String() == id.String() {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

func (f *fakeContentMetadataRepo) Missing(_ context.Context, keys []models.FactKey) ([]models.Sha1, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Sha1
	for _, key := range keys {
		if _, ok := f.rows[contentKey(key.ID, key.ToolID)]; !ok {
			out = append(out, key.ID)
		}
	}
	return out, nil
}

type fakeDirectoryMetadataRepo struct {
	mu   sync.Mutex
	rows map[string]models.DirectoryIntrinsicRow
}

func newFakeDirectoryMetadataRepo() *fakeDirectoryMetadataRepo {
	return &fakeDirectoryMetadataRepo{rows: make(map[string]models.DirectoryIntrinsicRow)}
}

func (f *fakeDirectoryMetadataRepo) Add(_ context.Context, rows []models.DirectoryIntrinsicRow, policy models.ConflictPolicy) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var written int64
	for _, row := range rows {
		key := contentKey(row.ID, row.ToolID)
		if _, exists := f.rows[key]; exists && policy == models.PolicySkip {
			continue
		}
		f.rows[key] = row
		written++
	}
	return written, nil
}

func (f *fakeDirectoryMetadataRepo) Get(_ context.Context, ids []models.Sha1) ([]models.DirectoryIntrinsicRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.DirectoryIntrinsicRow
	for _, row := range f.rows {
		for _, id := range ids {
			if row.ID.String() == id.String() {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

func (f *fakeDirectoryMetadataRepo) Missing(_ context.Context, keys []models.FactKey) ([]models.Sha1, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Sha1
	for _, key := range keys {
		if _, ok := f.rows[contentKey(key.ID, key.ToolID)]; !ok {
			out = append(out, key.ID)
		}
	}
	return out, nil
}

type fakeOriginIntrinsicRepo struct {
	mu   sync.Mutex
	rows map[string]models.OriginIntrinsicRow // origin url + tool id
}

func newFakeOriginIntrinsicRepo() *fakeOriginIntrinsicRepo {
	return &fakeOriginIntrinsicRepo{rows: make(map[string]models.OriginIntrinsicRow)}
}

func originKey(url string, toolID int64) string {
	return fmt.Sprintf("%s/%d", url, toolID)
}

func (f *fakeOriginIntrinsicRepo) Add(_ context.Context, rows []models.OriginIntrinsicRow, policy models.ConflictPolicy) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var written int64
	for _, row := range rows {
		key := originKey(row.OriginURL, row.ToolID)
		if _, exists := f.rows[key]; exists && policy == models.PolicySkip {
			continue
		}
		f.rows[key] = row
		written++
	}
	return written, nil
}

func (f *fakeOriginIntrinsicRepo) Get(_ context.Context, originURLs []string) ([]models.OriginIntrinsicRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.OriginIntrinsicRow
	for _, row := range f.rows {
		for _, url := range originURLs {
			if row.OriginURL == url {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

func (f *fakeOriginIntrinsicRepo) SearchFulltext(_ context.Context, _ string, _ int) ([]models.OriginIntrinsicRow, error) {
	return nil, nil
}

func (f *fakeOriginIntrinsicRepo) SearchByMappings(_ context.Context, _ []string, _ int) ([]models.OriginIntrinsicRow, error) {
	return nil, nil
}

type fakeOriginExtrinsicRepo struct {
	mu   sync.Mutex
	rows map[string]models.OriginExtrinsicRow
}

func newFakeOriginExtrinsicRepo() *fakeOriginExtrinsicRepo {
	return &fakeOriginExtrinsicRepo{rows: make(map[string]models.OriginExtrinsicRow)}
}

func (f *fakeOriginExtrinsicRepo) Add(_ context.Context, rows []models.OriginExtrinsicRow, policy models.ConflictPolicy) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var written int64
	for _, row := range rows {
		key := originKey(row.OriginURL, row.ToolID)
		if _, exists := f.rows[key]; exists && policy == models.PolicySkip {
			continue
		}
		f.rows[key] = row
		written++
	}
	return written, nil
}

func (f *fakeOriginExtrinsicRepo) Get(_ context.Context, originURLs []string) ([]models.OriginExtrinsicRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.OriginExtrinsicRow
	for _, row := range f.rows {
		for _, url := range originURLs {
			if row.OriginURL == url {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

type fakeMimetypeRepo struct {
	mu   sync.Mutex
	rows map[string]models.ContentMimetypeRow
}

func newFakeMimetypeRepo() *fakeMimetypeRepo {
	return &fakeMimetypeRepo{rows: make(map[string]models.ContentMimetypeRow)}
}

func (f *fakeMimetypeRepo) Add(_ context.Context, rows []models.ContentMimetypeRow, policy models.ConflictPolicy) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var written int64
	for _, row := range rows {
		key := contentKey(row.ID, row.ToolID)
		if _, exists := f.rows[key]; exists && policy == models.PolicySkip {
			continue
		}
		f.rows[key] = row
		written++
	}
	return written, nil
}

func (f *fakeMimetypeRepo) Get(_ context.Context, ids []models.Sha1) ([]models.ContentMimetypeRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ContentMimetypeRow
	for _, row := range f.rows {
		for _, id := range ids {
			if row.ID.String() == id.String() {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

func (f *fakeMimetypeRepo) Missing(_ context.Context, keys []models.FactKey) ([]models.Sha1, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Sha1
	for _, key := range keys {
		if _, ok := f.rows[contentKey(key.ID, key.ToolID)]; !ok {
			out = append(out, key.ID)
		}
	}
	return out, nil
}

type fakeLicenseRepo struct {
	mu   sync.Mutex
	rows map[string]models.ContentLicenseRow // key includes license
}

func newFakeLicenseRepo() *fakeLicenseRepo {
	return &fakeLicenseRepo{rows: make(map[string]models.ContentLicenseRow)}
}

func (f *fakeLicenseRepo) Add(_ context.Context, rows []models.ContentLicenseRow, _ models.ConflictPolicy) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var written int64
	for _, row := range rows {
		key := contentKey(row.ID, row.ToolID) + "/" + row.License
		if _, exists := f.rows[key]; exists {
			continue
		}
		f.rows[key] = row
		written++
	}
	return written, nil
}

func (f *fakeLicenseRepo) Get(_ context.Context, ids []models.Sha1) ([]models.ContentLicenseRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ContentLicenseRow
	for _, row := range f.rows {
		for _, id := range ids {
			if row.ID.String() == id.String() {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

// fakeScheduler records scheduled tasks instead of transporting them.
type fakeScheduler struct {
	mu    sync.Mutex
	tasks []models.IndexTask
}

func (f *fakeScheduler) Schedule(_ context.Context, task models.IndexTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	return nil
}

func (f *fakeScheduler) scheduled() []models.IndexTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.IndexTask, len(f.tasks))
	copy(out, f.tasks)
	return out
}

func (f *fakeScheduler) pop() (models.IndexTask, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tasks) == 0 {
		return models.IndexTask{}, false
	}
	task := f.tasks[0]
	f.tasks = f.tasks[1:]
	return task, true
}
