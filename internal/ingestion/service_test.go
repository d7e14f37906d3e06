package ingestion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ThiagoRGoveia/stocks-dossier/internal/config"
	"github.com/ThiagoRGoveia/stocks-dossier/internal/database"
	"github.com/ThiagoRGoveia/stocks-dossier/internal/lock"
	"github.com/ThiagoRGoveia/stocks-dossier/internal/models"
	"github.com/ThiagoRGoveia/stocks-dossier/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRecordStore is a mock implementation of the database.RecordStore interface.
type MockRecordStore struct {
	mock.Mock
}

func (m *MockRecordStore) Collection(kind models.RecordKind) database.Collection {
	args := m.Called(kind)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(database.Collection)
}

func (m *MockRecordStore) InsertFileRecord(ctx context.Context, record *models.FileRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockRecordStore) EnsureSchema(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRecordStore) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockLocker is a mock implementation of the lock.Locker interface.
type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Acquire(ctx context.Context, owner string) (func(context.Context) error, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func(context.Context) error), args.Error(1)
}

type serviceFixture struct {
	sourceDir string
	targetDir string
	store     *MockRecordStore
	equity    *MockCollection
	futures   *MockCollection
	service   *IngestionService
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	root := t.TempDir()
	f := &serviceFixture{
		sourceDir: filepath.Join(root, "incoming"),
		targetDir: filepath.Join(root, "archive"),
		store:     new(MockRecordStore),
		equity:    new(MockCollection),
		futures:   new(MockCollection),
	}
	require.NoError(t, os.MkdirAll(f.sourceDir, 0o755))

	f.store.On("Collection", models.KindEquity).Return(f.equity)
	f.store.On("Collection", models.KindFutures).Return(f.futures)

	cfg := config.Config{
		SourceDir:         f.sourceDir,
		TargetDir:         f.targetDir,
		EquitySuffix:      "_NSE.csv",
		FuturesSuffix:     "_NSEFO.csv",
		FuturesInstrument: "FUTSTK",
		Store:             config.StoreConfig{WriteTimeout: time.Second},
	}
	f.service = NewIngestionService(f.store, NewFileProcessor(nil, time.Second), nil, cfg, nil)
	f.service.newRunID = func() string { return "run-1" }
	return f
}

func assertExists(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	assert.NoError(t, err, "expected %s to exist", path)
}

func assertMissing(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "expected %s to be gone", path)
}

func fileRecordFor(name, status string) interface{} {
	return mock.MatchedBy(func(record *models.FileRecord) bool {
		return record.FileName == name && record.Status == status && record.RunID == "run-1"
	})
}

func TestIngestionService_Execute(t *testing.T) {
	f := newServiceFixture(t)
	require.NoError(t, os.MkdirAll(f.targetDir, 0o755))

	writeFile(t, f.sourceDir, "01JAN2020_NSE.csv", equityCSV(newDefaultEquityRow("TCS"), newDefaultEquityRow("INFY")))
	writeFile(t, f.sourceDir, "01JAN2020_NSEFO.csv", futuresCSV(
		newDefaultFuturesRow("FUTSTK", "INFY"),
		newDefaultFuturesRow("OPTSTK", "INFY"),
	))
	writeFile(t, f.sourceDir, "02JAN2020_nse.CSV", futuresCSV(newDefaultFuturesRow("FUTSTK", "INFY")))
	writeFile(t, f.sourceDir, "31DEC2019_NSE.csv", equityCSV(newDefaultEquityRow("TCS")))
	writeFile(t, f.targetDir, "31DEC2019_NSE.csv", equityCSV(newDefaultEquityRow("TCS")))
	writeFile(t, f.sourceDir, "holidays.csv", "DATE\n")
	writeFile(t, f.sourceDir, "notes.txt", "not a feed")

	f.equity.On("Insert", mock.Anything, mock.AnythingOfType("*models.EquityRecord")).Return("id", nil)
	f.futures.On("Insert", mock.Anything, mock.AnythingOfType("*models.FuturesRecord")).Return("id", nil)
	f.store.On("InsertFileRecord", mock.Anything, fileRecordFor("01JAN2020_NSE.csv", models.FILE_STATUS_DONE)).Return(nil).Once()
	f.store.On("InsertFileRecord", mock.Anything, fileRecordFor("01JAN2020_NSEFO.csv", models.FILE_STATUS_DONE)).Return(nil).Once()
	f.store.On("InsertFileRecord", mock.Anything, fileRecordFor("02JAN2020_nse.CSV", models.FILE_STATUS_FATAL)).Return(nil).Once()

	summary, err := f.service.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, 4, summary.Pending)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 2, summary.Archived)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Unrouted)
	assert.Equal(t, 3, summary.Eligible)
	assert.Equal(t, 3, summary.Persisted)

	assertExists(t, filepath.Join(f.targetDir, "01JAN2020_NSE.csv"))
	assertExists(t, filepath.Join(f.targetDir, "01JAN2020_NSEFO.csv"))
	assertMissing(t, filepath.Join(f.sourceDir, "01JAN2020_NSE.csv"))
	assertMissing(t, filepath.Join(f.sourceDir, "01JAN2020_NSEFO.csv"))

	// header mismatch, unrouted and already archived files stay where they are
	assertExists(t, filepath.Join(f.sourceDir, "02JAN2020_nse.CSV"))
	assertMissing(t, filepath.Join(f.targetDir, "02JAN2020_nse.CSV"))
	assertExists(t, filepath.Join(f.sourceDir, "holidays.csv"))
	assertExists(t, filepath.Join(f.sourceDir, "31DEC2019_NSE.csv"))
	assertExists(t, filepath.Join(f.sourceDir, "notes.txt"))

	f.equity.AssertNumberOfCalls(t, "Insert", 2)
	f.futures.AssertNumberOfCalls(t, "Insert", 1)
	f.store.AssertExpectations(t)
}

func TestIngestionService_InsertFailureKeepsFile(t *testing.T) {
	f := newServiceFixture(t)
	writeFile(t, f.sourceDir, "01JAN2020_NSE.csv", equityCSV(newDefaultEquityRow("TCS"), newDefaultEquityRow("INFY")))

	f.equity.On("Insert", mock.Anything, symbolIs("INFY")).Return("", errors.New("write timeout"))
	f.equity.On("Insert", mock.Anything, mock.Anything).Return("id", nil)
	f.store.On("InsertFileRecord", mock.Anything, mock.MatchedBy(func(record *models.FileRecord) bool {
		return record.Status == models.FILE_STATUS_DONE_WITH_ERRORS && record.Eligible == 2 && record.Persisted == 1 &&
			len(record.Errors) == 1 && record.Checksum != ""
	})).Return(nil).Once()

	summary, err := f.service.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Archived)
	require.Len(t, summary.Results, 1)
	assert.False(t, summary.Results[0].Archived)
	assertExists(t, filepath.Join(f.sourceDir, "01JAN2020_NSE.csv"))
	assertMissing(t, filepath.Join(f.targetDir, "01JAN2020_NSE.csv"))
	f.store.AssertNumberOfCalls(t, "InsertFileRecord", 1)
}

func TestIngestionService_CreatesTargetDirectory(t *testing.T) {
	f := newServiceFixture(t)
	f.service.config.TargetDir = filepath.Join(f.targetDir, "nested", "deeper")

	summary, err := f.service.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Pending)
	info, err := os.Stat(f.service.config.TargetDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestIngestionService_MissingSourceDirectory(t *testing.T) {
	f := newServiceFixture(t)
	f.service.config.SourceDir = filepath.Join(f.sourceDir, "missing")

	summary, err := f.service.Execute(context.Background())
	require.Error(t, err)
	assert.Nil(t, summary)

	var loadErr *models.LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, models.ErrDirectoryList, loadErr.Kind)
}

func TestIngestionService_LedgerFailureDoesNotBlockArchive(t *testing.T) {
	f := newServiceFixture(t)
	writeFile(t, f.sourceDir, "01JAN2020_NSE.csv", equityCSV(newDefaultEquityRow("TCS")))

	f.equity.On("Insert", mock.Anything, mock.Anything).Return("id", nil)
	f.store.On("InsertFileRecord", mock.Anything, mock.Anything).Return(errors.New("ledger unavailable"))

	summary, err := f.service.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Archived)
	assertExists(t, filepath.Join(f.targetDir, "01JAN2020_NSE.csv"))
}

func TestIngestionService_LockHeld(t *testing.T) {
	f := newServiceFixture(t)
	writeFile(t, f.sourceDir, "01JAN2020_NSE.csv", equityCSV(newDefaultEquityRow("TCS")))

	locker := new(MockLocker)
	locker.On("Acquire", mock.Anything, "run-1").Return(nil, fmt.Errorf("%w: key loader held by run-0", lock.ErrLocked))
	f.service.locker = locker

	summary, err := f.service.Execute(context.Background())
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.ErrorIs(t, err, lock.ErrLocked)

	assertExists(t, filepath.Join(f.sourceDir, "01JAN2020_NSE.csv"))
	f.equity.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestIngestionService_ReleasesLock(t *testing.T) {
	f := newServiceFixture(t)

	released := false
	release := func(context.Context) error {
		released = true
		return nil
	}
	locker := new(MockLocker)
	locker.On("Acquire", mock.Anything, "run-1").Return(release, nil)
	f.service.locker = locker

	_, err := f.service.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, released)
	locker.AssertExpectations(t)
}

func TestIngestionService_CancelledRunLeavesFiles(t *testing.T) {
	f := newServiceFixture(t)
	writeFile(t, f.sourceDir, "01JAN2020_NSE.csv", equityCSV(newDefaultEquityRow("TCS")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := f.service.Execute(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Pending)
	assert.Equal(t, 0, summary.Processed)
	assertExists(t, filepath.Join(f.sourceDir, "01JAN2020_NSE.csv"))
}

func TestIngestionService_Route(t *testing.T) {
	f := newServiceFixture(t)

	tests := []struct {
		name string
		want models.RecordKind
	}{
		{name: "01JAN2020_NSE.csv", want: models.KindEquity},
		{name: "01jan2020_nse.CSV", want: models.KindEquity},
		{name: "01JAN2020_NSEFO.csv", want: models.KindFutures},
		{name: "01JAN2020_nsefo.Csv", want: models.KindFutures},
		{name: "01JAN2020_BSE.csv", want: ""},
		{name: "NSE.csv", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rowParser := f.service.route(tt.name)
			if tt.want == "" {
				assert.Nil(t, rowParser)
				return
			}
			require.NotNil(t, rowParser)
			assert.Equal(t, tt.want, rowParser.Kind())
		})
	}
}

func TestIngestionService_RoutePrefersLongerSuffix(t *testing.T) {
	f := newServiceFixture(t)
	f.service.config.EquitySuffix = "FO.csv"
	f.service.config.FuturesSuffix = "_NSEFO.csv"

	rowParser := f.service.route("01JAN2020_NSEFO.csv")
	require.NotNil(t, rowParser)
	assert.IsType(t, &parser.FuturesParser{}, rowParser)

	rowParser = f.service.route("01JAN2020_XFO.csv")
	require.NotNil(t, rowParser)
	assert.IsType(t, &parser.EquityParser{}, rowParser)
}

func TestIngestionService_MissingCollectionIsRecorded(t *testing.T) {
	root := t.TempDir()
	sourceDir := filepath.Join(root, "incoming")
	targetDir := filepath.Join(root, "archive")
	require.NoError(t, os.MkdirAll(sourceDir, 0o755))
	writeFile(t, sourceDir, "01JAN2020_NSEFO.csv", futuresCSV(newDefaultFuturesRow("FUTSTK", "INFY")))

	store := new(MockRecordStore)
	store.On("Collection", models.KindFutures).Return(nil)
	store.On("InsertFileRecord", mock.Anything, fileRecordFor("01JAN2020_NSEFO.csv", models.FILE_STATUS_FATAL)).Return(nil).Once()

	cfg := config.Config{
		SourceDir:         sourceDir,
		TargetDir:         targetDir,
		EquitySuffix:      "_NSE.csv",
		FuturesSuffix:     "_NSEFO.csv",
		FuturesInstrument: "FUTSTK",
	}
	service := NewIngestionService(store, NewFileProcessor(nil, time.Second), nil, cfg, nil)
	service.newRunID = func() string { return "run-1" }

	summary, err := service.Execute(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	require.NotNil(t, summary.Results[0].Err)
	assert.Equal(t, models.ErrNoCollection, summary.Results[0].Err.Kind)
	assert.Equal(t, 1, summary.Failed)
	assertExists(t, filepath.Join(sourceDir, "01JAN2020_NSEFO.csv"))
	store.AssertExpectations(t)
}
