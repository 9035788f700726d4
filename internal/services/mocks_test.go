package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/damstudio/backend/internal/metrics"
	"github.com/damstudio/backend/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// memoryLedger is an in-memory AssetRepository and VersionRepository.
// Appends hold the ledger lock for the whole allocate-and-insert unit, like the row lock of the SQL ledger,
// unless optimistic is set, in which case the number is read and inserted under separate locks.
type memoryLedger struct {
	mu       sync.Mutex
	assets   map[int64]*models.Asset
	versions map[int64][]models.AssetVersion
	nextID   int64

	// conflicts makes the next appends lose the number race
	conflicts int
	// afterStoreErr fails an append after its file has been stored
	afterStoreErr error
	// optimistic splits read-max and insert, calling afterRead in between
	optimistic bool
	afterRead  func()

	err        error
	lastFilter models.AssetFilter
	appends    int
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		assets:   make(map[int64]*models.Asset),
		versions: make(map[int64][]models.AssetVersion),
	}
}

// seedAsset adds an asset owned by owner with one version per file
func (l *memoryLedger) seedAsset(owner int64, name string, files ...string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	id := l.nextID
	asset := &models.Asset{
		ID:        id,
		Name:      name,
		AssetNo:   fmt.Sprintf("AST-SEED%04d", id),
		Type:      models.AssetTypeImage,
		OwnerID:   &owner,
		Tags:      []models.Tag{},
		CreatedAt: time.Now().UTC(),
	}
	for i, file := range files {
		l.versions[id] = append(l.versions[id], models.AssetVersion{
			ID:         int64(len(l.versions[id]) + 1),
			AssetID:    id,
			Version:    i + 1,
			File:       file,
			UploaderID: &owner,
			CreatedAt:  time.Now().UTC(),
		})
		asset.File = file
	}
	l.assets[id] = asset
	return id
}

func (l *memoryLedger) head(assetID int64) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.assets[assetID].File
}

func (l *memoryLedger) numbers(assetID int64) []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	numbers := []int{}
	for _, v := range l.versions[assetID] {
		numbers = append(numbers, v.Version)
	}
	sort.Ints(numbers)
	return numbers
}

func (l *memoryLedger) Create(ctx context.Context, asset *models.Asset, tagIDs []int64, nv models.NewVersion) (*models.AssetVersion, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err != nil {
		return nil, l.err
	}
	for _, a := range l.assets {
		if a.AssetNo == asset.AssetNo {
			return nil, fmt.Errorf("asset number %q already exists: %w", asset.AssetNo, models.ErrConflict)
		}
	}

	id := l.nextID + 1
	v, err := l.appendLocked(ctx, id, nv)
	if err != nil {
		return nil, err
	}

	l.nextID = id
	stored := *asset
	stored.ID = id
	stored.File = v.File
	stored.CreatedAt = time.Now().UTC()
	stored.Tags = []models.Tag{}
	for _, tagID := range tagIDs {
		stored.Tags = append(stored.Tags, models.Tag{ID: tagID, Name: fmt.Sprintf("tag-%d", tagID), Color: models.DefaultTagColor})
	}
	l.assets[id] = &stored
	l.versions[id] = append(l.versions[id], *v)

	asset.ID = id
	asset.File = v.File
	asset.CreatedAt = stored.CreatedAt
	return v, nil
}

func (l *memoryLedger) GetByID(ctx context.Context, id int64) (*models.Asset, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err != nil {
		return nil, l.err
	}
	a, ok := l.assets[id]
	if !ok {
		return nil, fmt.Errorf("asset %d: %w", id, models.ErrNotFound)
	}
	cp := *a
	cp.Tags = append([]models.Tag(nil), a.Tags...)
	return &cp, nil
}

func (l *memoryLedger) List(ctx context.Context, filter models.AssetFilter) ([]models.Asset, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastFilter = filter
	if l.err != nil {
		return nil, l.err
	}
	assets := []models.Asset{}
	for _, a := range l.assets {
		if filter.Type != "" && a.Type != filter.Type {
			continue
		}
		assets = append(assets, *a)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].ID > assets[j].ID })
	return assets, nil
}

func (l *memoryLedger) UpdateMetadata(ctx context.Context, id int64, req *models.UpdateAssetRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[id]
	if !ok {
		return fmt.Errorf("asset %d: %w", id, models.ErrNotFound)
	}
	if req.Name != nil {
		a.Name = *req.Name
	}
	if req.Description != nil {
		a.Description = *req.Description
	}
	if req.Brand != nil {
		a.Brand = *req.Brand
	}
	if req.Type != nil {
		a.Type = *req.Type
	}
	if req.TagIDs != nil {
		a.Tags = []models.Tag{}
		for _, tagID := range *req.TagIDs {
			a.Tags = append(a.Tags, models.Tag{ID: tagID, Name: fmt.Sprintf("tag-%d", tagID), Color: models.DefaultTagColor})
		}
	}
	return nil
}

func (l *memoryLedger) Delete(ctx context.Context, id int64) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.assets[id]; !ok {
		return nil, fmt.Errorf("asset %d: %w", id, models.ErrNotFound)
	}
	seen := map[string]bool{}
	files := []string{}
	for _, v := range l.versions[id] {
		if !seen[v.File] {
			seen[v.File] = true
			files = append(files, v.File)
		}
	}
	delete(l.assets, id)
	delete(l.versions, id)
	return files, nil
}

func (l *memoryLedger) IncrementDownload(ctx context.Context, id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[id]
	if !ok {
		return fmt.Errorf("asset %d: %w", id, models.ErrNotFound)
	}
	a.DownloadCount++
	return nil
}

func (l *memoryLedger) IncrementView(ctx context.Context, id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[id]
	if !ok {
		return fmt.Errorf("asset %d: %w", id, models.ErrNotFound)
	}
	a.ViewCount++
	return nil
}

func (l *memoryLedger) GetViewCount(ctx context.Context, id int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[id]
	if !ok {
		return 0, fmt.Errorf("asset %d: %w", id, models.ErrNotFound)
	}
	return a.ViewCount, nil
}

func (l *memoryLedger) versionList(assetID int64) ([]models.AssetVersion, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	versions := append([]models.AssetVersion{}, l.versions[assetID]...)
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version > versions[j].Version })
	return versions, nil
}

// memoryVersions exposes the ledger through the VersionRepository interface
type memoryVersions struct {
	*memoryLedger
}

func (v memoryVersions) List(ctx context.Context, assetID int64) ([]models.AssetVersion, error) {
	return v.versionList(assetID)
}

func (v memoryVersions) Latest(ctx context.Context, assetID int64) (*models.AssetVersion, error) {
	versions, _ := v.versionList(assetID)
	if len(versions) == 0 {
		return nil, fmt.Errorf("asset %d has no versions: %w", assetID, models.ErrNotFound)
	}
	return &versions[0], nil
}

func (v memoryVersions) GetByNumber(ctx context.Context, assetID int64, number int) (*models.AssetVersion, error) {
	versions, _ := v.versionList(assetID)
	for i := range versions {
		if versions[i].Version == number {
			return &versions[i], nil
		}
	}
	return nil, fmt.Errorf("version %d of asset %d: %w", number, assetID, models.ErrNotFound)
}

func (v memoryVersions) Append(ctx context.Context, assetID int64, nv models.NewVersion) (*models.AssetVersion, error) {
	l := v.memoryLedger

	if l.optimistic {
		return l.appendOptimistic(ctx, assetID, nv)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.assets[assetID]; !ok {
		return nil, fmt.Errorf("asset %d: %w", assetID, models.ErrNotFound)
	}
	version, err := l.appendLocked(ctx, assetID, nv)
	if err != nil {
		return nil, err
	}
	l.commitLocked(version)
	return version, nil
}

func (v memoryVersions) Restore(ctx context.Context, assetID int64, target int, uploaderID *int64) (*models.AssetVersion, error) {
	l := v.memoryLedger

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.assets[assetID]; !ok {
		return nil, fmt.Errorf("asset %d: %w", assetID, models.ErrNotFound)
	}
	var file string
	for _, existing := range l.versions[assetID] {
		if existing.Version == target {
			file = existing.File
		}
	}
	if file == "" {
		return nil, fmt.Errorf("version %d of asset %d: %w", target, assetID, models.ErrNotFound)
	}

	note := models.RestoreNote(target)
	version, err := l.appendLocked(ctx, assetID, models.NewVersion{UploaderID: uploaderID, Note: &note, File: file})
	if err != nil {
		return nil, err
	}
	l.commitLocked(version)
	return version, nil
}

// appendLocked builds the next version of assetID and stores its file; the caller commits it
func (l *memoryLedger) appendLocked(ctx context.Context, assetID int64, nv models.NewVersion) (*models.AssetVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.appends++
	if l.conflicts > 0 {
		l.conflicts--
		return nil, fmt.Errorf("version already exists: %w", models.ErrConflict)
	}

	number := l.maxLocked(assetID) + 1
	return l.buildLocked(ctx, assetID, number, nv)
}

func (l *memoryLedger) buildLocked(ctx context.Context, assetID int64, number int, nv models.NewVersion) (*models.AssetVersion, error) {
	file := nv.File
	if file == "" {
		file = models.VersionFileKey(assetID, number, nv.FileName)
		if nv.Store != nil {
			if err := nv.Store(ctx, file); err != nil {
				return nil, fmt.Errorf("failed to store version file: %w: %w", models.ErrStorage, err)
			}
		}
	}
	if l.afterStoreErr != nil {
		return nil, l.afterStoreErr
	}

	return &models.AssetVersion{
		ID:         int64(number),
		AssetID:    assetID,
		Version:    number,
		File:       file,
		Note:       nv.Note,
		UploaderID: nv.UploaderID,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func (l *memoryLedger) commitLocked(v *models.AssetVersion) {
	l.versions[v.AssetID] = append(l.versions[v.AssetID], *v)
	l.assets[v.AssetID].File = v.File
}

func (l *memoryLedger) maxLocked(assetID int64) int {
	highest := 0
	for _, v := range l.versions[assetID] {
		if v.Version > highest {
			highest = v.Version
		}
	}
	return highest
}

// appendOptimistic reads the next number and inserts it under separate critical sections,
// so two writers may observe the same maximum and one of them loses on insert.
func (l *memoryLedger) appendOptimistic(ctx context.Context, assetID int64, nv models.NewVersion) (*models.AssetVersion, error) {
	l.mu.Lock()
	l.appends++
	number := l.maxLocked(assetID) + 1
	l.mu.Unlock()

	if l.afterRead != nil {
		l.afterRead()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, existing := range l.versions[assetID] {
		if existing.Version == number {
			return nil, fmt.Errorf("version %d of asset %d already exists: %w", number, assetID, models.ErrConflict)
		}
	}
	version, err := l.buildLocked(ctx, assetID, number, nv)
	if err != nil {
		return nil, err
	}
	l.commitLocked(version)
	return version, nil
}

// memoryStorage is an in-memory Storage
type memoryStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	deleted   []string
	putErr    error
	openErr   error
	deleteErr error
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: make(map[string][]byte)}
}

func (s *memoryStorage) Put(ctx context.Context, key string, r io.Reader, contentType string) (int64, error) {
	if s.putErr != nil {
		return 0, s.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return int64(len(data)), nil
}

func (s *memoryStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("file %q: %w", key, models.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memoryStorage) Delete(ctx context.Context, key string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *memoryStorage) URL(key string) string {
	return "http://media.test/" + key
}

func (s *memoryStorage) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

// mockDebouncer claims every key once, or fails with err
type mockDebouncer struct {
	mu      sync.Mutex
	claimed map[string]bool
	err     error
}

func (d *mockDebouncer) Claim(ctx context.Context, key string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.claimed == nil {
		d.claimed = make(map[string]bool)
	}
	if d.claimed[key] {
		return false, nil
	}
	d.claimed[key] = true
	return true, nil
}

type assetServiceFixture struct {
	svc       *assetService
	ledger    *memoryLedger
	storage   *memoryStorage
	debouncer *mockDebouncer
	metrics   *metrics.Metrics
}

func setupAssetService(t *testing.T) *assetServiceFixture {
	t.Helper()

	ledger := newMemoryLedger()
	storage := newMemoryStorage()
	debouncer := &mockDebouncer{}
	m := metrics.NewMetrics(prometheus.NewRegistry())

	svc := NewAssetService(ledger, memoryVersions{ledger}, storage, debouncer, m, time.Second, zap.NewNop())

	return &assetServiceFixture{
		svc:       svc,
		ledger:    ledger,
		storage:   storage,
		debouncer: debouncer,
		metrics:   m,
	}
}

func upload(name, content string) *models.FileUpload {
	return &models.FileUpload{Name: name, ContentType: "application/octet-stream", Reader: strings.NewReader(content)}
}

func strPtr(s string) *string {
	return &s
}

var (
	admin       = models.Actor{ID: 1, Role: models.RoleAdmin}
	editorOwner = models.Actor{ID: 2, Role: models.RoleEditor}
	editorOther = models.Actor{ID: 3, Role: models.RoleEditor}
	viewer      = models.Actor{ID: 4, Role: models.RoleViewer}
	unknownRole = models.Actor{ID: 5, Role: models.Role("superuser")}
	ownerID     = editorOwner.ID
)
