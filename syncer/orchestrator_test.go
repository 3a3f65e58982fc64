package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"deal_watcher/models"
	"deal_watcher/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory WatermarkStore + DealStore + RunStore.
type memStore struct {
	mu    sync.Mutex
	deals map[int64]models.Deal
	log   []models.SyncLogEntry
	runs  []models.SyncRun

	watermarkErr error
	existsErr    error
	insertErr    error
	recordErr    error
}

func newMemStore() *memStore {
	return &memStore{deals: make(map[int64]models.Deal)}
}

func (s *memStore) GetWatermark(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watermarkErr != nil {
		return 0, s.watermarkErr
	}
	if len(s.log) == 0 {
		return models.DefaultWatermark, nil
	}
	return s.log[len(s.log)-1].LastCheckedDate, nil
}

func (s *memStore) RecordRun(ctx context.Context, checkedAt time.Time, rowCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return s.recordErr
	}
	s.log = append(s.log, models.SyncLogEntry{ID: int64(len(s.log) + 1), LastCheckedDate: checkedAt.Unix(), RowCount: rowCount})
	return nil
}

func (s *memStore) DealExists(ctx context.Context, dealID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsErr != nil {
		return false, s.existsErr
	}
	_, ok := s.deals[dealID]
	return ok, nil
}

func (s *memStore) InsertDeal(ctx context.Context, d *models.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	d.ID = int64(len(s.deals) + 1)
	s.deals[d.DealID] = *d
	return nil
}

func (s *memStore) CreateSyncRun(ctx context.Context, run *models.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, *run)
	return nil
}

func (s *memStore) FinishSyncRun(ctx context.Context, run *models.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.runs {
		if s.runs[i].RunID == run.RunID {
			s.runs[i] = *run
		}
	}
	return nil
}

type mockFetcher struct{ mock.Mock }

func (m *mockFetcher) FetchLeadsSince(ctx context.Context, watermark int64) ([]models.Lead, error) {
	args := m.Called(ctx, watermark)
	leads, _ := args.Get(0).([]models.Lead)
	return leads, args.Error(1)
}

type mockEnricher struct{ mock.Mock }

func (m *mockEnricher) Authenticate(ctx context.Context, apiKey string) (string, error) {
	args := m.Called(ctx, apiKey)
	return args.String(0), args.Error(1)
}

func (m *mockEnricher) FetchProperty(ctx context.Context, dealID int64, token string) (*models.EnrichmentResult, error) {
	args := m.Called(ctx, dealID, token)
	r, _ := args.Get(0).(*models.EnrichmentResult)
	return r, args.Error(1)
}

func qualifyingLead(id, createdAt int64) models.Lead {
	enumID := int64(4661181)
	return models.Lead{
		ID:        id,
		CreatedAt: createdAt,
		CustomFields: []models.CustomField{{
			FieldID:   1631153,
			FieldName: "Тип договора",
			Values:    []models.FieldValue{{Value: models.StringValue("ДКП"), EnumID: &enumID}},
		}},
	}
}

func property(house, number string) *models.EnrichmentResult {
	return &models.EnrichmentResult{
		Status:      "success",
		Number:      number,
		HouseName:   house,
		ProjectName: "City",
		SoldAt:      "2025-03-12 04:38",
		Raw:         []byte(`{"id":1}`),
	}
}

var fixedNow = time.Unix(1_700_001_000, 0)

func newOrchestrator(store *memStore, f *mockFetcher, e *mockEnricher) *Orchestrator {
	o := New(Deps{
		Watermarks: store,
		Deals:      store,
		Runs:       store,
		Leads:      f,
		Enricher:   e,
		APIKey:     "pb-key",
	})
	o.now = func() time.Time { return fixedNow }
	return o
}

func TestSyncOnceNothingFetched(t *testing.T) {
	store := newMemStore()
	f, e := &mockFetcher{}, &mockEnricher{}
	f.On("FetchLeadsSince", mock.Anything, models.DefaultWatermark).Return(nil, nil)

	res, err := newOrchestrator(store, f, e).SyncOnce(context.Background(), models.TriggerSchedule)
	require.NoError(t, err)

	assert.False(t, res.Found)
	assert.Equal(t, services.NoNewDeals, res.Summary)
	require.Len(t, store.log, 1)
	assert.Equal(t, 0, store.log[0].RowCount)
	assert.Equal(t, fixedNow.Unix(), store.log[0].LastCheckedDate)
	e.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything)
}

func TestSyncOncePersistsNewDeal(t *testing.T) {
	store := newMemStore()
	f, e := &mockFetcher{}, &mockEnricher{}
	f.On("FetchLeadsSince", mock.Anything, models.DefaultWatermark).
		Return([]models.Lead{qualifyingLead(42, 1_700_000_000), {ID: 43}}, nil)
	e.On("Authenticate", mock.Anything, "pb-key").Return("tok", nil).Once()
	e.On("FetchProperty", mock.Anything, int64(42), "tok").Return(property("Дом №7", "12"), nil)

	res, err := newOrchestrator(store, f, e).SyncOnce(context.Background(), models.TriggerManual)
	require.NoError(t, err)

	assert.True(t, res.Found)
	assert.Contains(t, res.Summary, "Проект: City")
	assert.Contains(t, res.Summary, "Дом № 7")
	assert.Contains(t, res.Summary, "№ 12")

	d, ok := store.deals[42]
	require.True(t, ok)
	assert.Equal(t, "City", d.Project)
	assert.Equal(t, 7, d.House)
	assert.Equal(t, models.ObjectApartment, d.ObjectType)
	assert.Equal(t, 12, d.Object)

	require.Len(t, store.log, 1)
	assert.Equal(t, 1, store.log[0].RowCount)

	require.Len(t, store.runs, 1)
	assert.Equal(t, models.RunStatusCompleted, store.runs[0].Status)
	assert.Equal(t, 2, store.runs[0].LeadsFetched)
	assert.Equal(t, 1, store.runs[0].LeadsQualifying)
	assert.Equal(t, 1, store.runs[0].DealsNew)
	e.AssertExpectations(t)
}

func TestSyncOnceIsIdempotent(t *testing.T) {
	store := newMemStore()
	f, e := &mockFetcher{}, &mockEnricher{}
	f.On("FetchLeadsSince", mock.Anything, mock.Anything).Return([]models.Lead{qualifyingLead(42, 1_700_000_000)}, nil)
	e.On("Authenticate", mock.Anything, "pb-key").Return("tok", nil).Once()
	e.On("FetchProperty", mock.Anything, int64(42), "tok").Return(property("Дом №7", "12"), nil).Once()

	o := newOrchestrator(store, f, e)
	first, err := o.SyncOnce(context.Background(), models.TriggerSchedule)
	require.NoError(t, err)
	assert.True(t, first.Found)

	second, err := o.SyncOnce(context.Background(), models.TriggerSchedule)
	require.NoError(t, err)
	assert.False(t, second.Found)
	assert.Equal(t, services.NoNewDeals, second.Summary)

	assert.Len(t, store.deals, 1)
	require.Len(t, store.log, 2)
	assert.Equal(t, 0, store.log[1].RowCount)
	e.AssertNumberOfCalls(t, "Authenticate", 1)
}

func TestSyncOnceWatermarkChainsBetweenRuns(t *testing.T) {
	store := newMemStore()
	f, e := &mockFetcher{}, &mockEnricher{}
	f.On("FetchLeadsSince", mock.Anything, models.DefaultWatermark).Return(nil, nil).Once()
	f.On("FetchLeadsSince", mock.Anything, fixedNow.Unix()).Return(nil, nil).Once()

	o := newOrchestrator(store, f, e)
	_, err := o.SyncOnce(context.Background(), models.TriggerSchedule)
	require.NoError(t, err)
	_, err = o.SyncOnce(context.Background(), models.TriggerSchedule)
	require.NoError(t, err)

	f.AssertExpectations(t)
}

func TestSyncOnceAuthenticationFailureAborts(t *testing.T) {
	store := newMemStore()
	f, e := &mockFetcher{}, &mockEnricher{}
	f.On("FetchLeadsSince", mock.Anything, mock.Anything).Return([]models.Lead{qualifyingLead(42, 1)}, nil)
	e.On("Authenticate", mock.Anything, "pb-key").Return("", errors.New("403"))

	_, err := newOrchestrator(store, f, e).SyncOnce(context.Background(), models.TriggerSchedule)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrAuthentication)
	assert.Empty(t, store.log)
	assert.Empty(t, store.deals)
	e.AssertNotCalled(t, "FetchProperty", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, models.RunStatusFailed, store.runs[0].Status)
}

func TestSyncOnceSkipsFailedEnrichment(t *testing.T) {
	store := newMemStore()
	f, e := &mockFetcher{}, &mockEnricher{}
	f.On("FetchLeadsSince", mock.Anything, mock.Anything).Return([]models.Lead{
		qualifyingLead(41, 1_700_000_100),
		qualifyingLead(42, 1_700_000_200),
		qualifyingLead(43, 1_700_000_300),
	}, nil)
	e.On("Authenticate", mock.Anything, "pb-key").Return("tok", nil)
	e.On("FetchProperty", mock.Anything, int64(41), "tok").Return(nil, models.ErrEnrichment)
	e.On("FetchProperty", mock.Anything, int64(42), "tok").Return(property("Дом №7", "12"), nil)
	e.On("FetchProperty", mock.Anything, int64(43), "tok").Return(property("Дом №7", "n/a"), nil)

	res, err := newOrchestrator(store, f, e).SyncOnce(context.Background(), models.TriggerSchedule)
	require.NoError(t, err)

	assert.True(t, res.Found)
	require.Len(t, res.Deals, 1)
	assert.Equal(t, int64(42), res.Deals[0].DealID)
	assert.NotContains(t, store.deals, int64(41))
	assert.NotContains(t, store.deals, int64(43))

	require.Len(t, store.log, 1)
	assert.Equal(t, 1, store.log[0].RowCount)
	assert.Equal(t, int64(1_700_000_100), store.log[0].LastCheckedDate)
	assert.Equal(t, 2, store.runs[0].EnrichmentErrors)
}

func TestSyncOnceUnmappableDealDoesNotHoldWatermark(t *testing.T) {
	store := newMemStore()
	f, e := &mockFetcher{}, &mockEnricher{}
	f.On("FetchLeadsSince", mock.Anything, mock.Anything).Return([]models.Lead{qualifyingLead(43, 1_700_000_300)}, nil)
	e.On("Authenticate", mock.Anything, "pb-key").Return("tok", nil)
	e.On("FetchProperty", mock.Anything, int64(43), "tok").Return(property("Дом №7", "n/a"), nil)

	o := newOrchestrator(store, f, e)
	now := fixedNow
	o.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		_, err := o.SyncOnce(context.Background(), models.TriggerSchedule)
		require.NoError(t, err)
		require.Len(t, store.log, i+1)
		assert.Equal(t, now.Unix(), store.log[i].LastCheckedDate)
		now = now.Add(30 * 24 * time.Hour)
	}
	assert.NotContains(t, store.deals, int64(43))
}

func TestSyncOnceTransientFailureBoundedByRetryWindow(t *testing.T) {
	store := newMemStore()
	f, e := &mockFetcher{}, &mockEnricher{}
	old := fixedNow.Add(-100 * time.Hour).Unix()
	recent := fixedNow.Add(-time.Hour).Unix()
	f.On("FetchLeadsSince", mock.Anything, mock.Anything).Return([]models.Lead{
		qualifyingLead(41, old),
		qualifyingLead(42, recent),
	}, nil)
	e.On("Authenticate", mock.Anything, "pb-key").Return("tok", nil)
	e.On("FetchProperty", mock.Anything, mock.Anything, "tok").Return(nil, errors.New("502 bad gateway"))

	o := newOrchestrator(store, f, e)
	o.RetryWindow = 72 * time.Hour
	_, err := o.SyncOnce(context.Background(), models.TriggerSchedule)
	require.NoError(t, err)

	require.Len(t, store.log, 1)
	assert.Equal(t, recent, store.log[0].LastCheckedDate)
	assert.Equal(t, 2, store.runs[0].EnrichmentErrors)
}

func TestSyncOncePersistenceFailureAborts(t *testing.T) {
	store := newMemStore()
	store.insertErr = errors.New("disk full")
	f, e := &mockFetcher{}, &mockEnricher{}
	f.On("FetchLeadsSince", mock.Anything, mock.Anything).Return([]models.Lead{qualifyingLead(42, 1), qualifyingLead(43, 1)}, nil)
	e.On("Authenticate", mock.Anything, mock.Anything).Return("tok", nil)
	e.On("FetchProperty", mock.Anything, int64(42), "tok").Return(property("Дом №7", "12"), nil)

	_, err := newOrchestrator(store, f, e).SyncOnce(context.Background(), models.TriggerSchedule)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrPersistence)
	assert.Empty(t, store.log)
	e.AssertNotCalled(t, "FetchProperty", mock.Anything, int64(43), mock.Anything)
}

func TestSyncOnceWatermarkReadFailure(t *testing.T) {
	store := newMemStore()
	store.watermarkErr = errors.New("locked")
	f, e := &mockFetcher{}, &mockEnricher{}

	_, err := newOrchestrator(store, f, e).SyncOnce(context.Background(), models.TriggerSchedule)
	assert.ErrorIs(t, err, models.ErrPersistence)
	f.AssertNotCalled(t, "FetchLeadsSince", mock.Anything, mock.Anything)
	assert.Empty(t, store.log)
}

func TestSyncOnceFetchFailure(t *testing.T) {
	store := newMemStore()
	f, e := &mockFetcher{}, &mockEnricher{}
	f.On("FetchLeadsSince", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

	_, err := newOrchestrator(store, f, e).SyncOnce(context.Background(), models.TriggerSchedule)
	assert.ErrorIs(t, err, models.ErrExternalService)
	assert.Empty(t, store.log)
}

type blockingFetcher struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingFetcher) FetchLeadsSince(ctx context.Context, watermark int64) ([]models.Lead, error) {
	b.entered <- struct{}{}
	<-b.release
	return nil, nil
}

func TestSyncOnceRunsOneAtATime(t *testing.T) {
	store := newMemStore()
	bf := &blockingFetcher{entered: make(chan struct{}, 1), release: make(chan struct{})}
	o := New(Deps{Watermarks: store, Deals: store, Leads: bf, Enricher: &mockEnricher{}})

	done := make(chan error, 1)
	go func() {
		_, err := o.SyncOnce(context.Background(), models.TriggerSchedule)
		done <- err
	}()
	<-bf.entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := o.SyncOnce(ctx, models.TriggerAPI)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(bf.release)
	require.NoError(t, <-done)
	assert.Len(t, store.log, 1)
}

type fakeLocker struct {
	acquired, released int
}

func (l *fakeLocker) AcquireRunLock(ctx context.Context) (func(), error) {
	l.acquired++
	return func() { l.released++ }, nil
}

type recordingArchiver struct {
	ids []int64
}

func (a *recordingArchiver) Archive(ctx context.Context, dealID int64, raw json.RawMessage) error {
	a.ids = append(a.ids, dealID)
	return errors.New("bucket unavailable")
}

func TestSyncOnceUsesStoreLockAndArchive(t *testing.T) {
	store := newMemStore()
	f, e := &mockFetcher{}, &mockEnricher{}
	f.On("FetchLeadsSince", mock.Anything, mock.Anything).Return([]models.Lead{qualifyingLead(42, 1)}, nil)
	e.On("Authenticate", mock.Anything, mock.Anything).Return("tok", nil)
	e.On("FetchProperty", mock.Anything, int64(42), "tok").Return(property("Дом №7", "12"), nil)

	locker := &fakeLocker{}
	archiver := &recordingArchiver{}
	o := New(Deps{Watermarks: store, Deals: store, Leads: f, Enricher: e, Locker: locker, Archiver: archiver, Project: "Сити"})

	res, err := o.SyncOnce(context.Background(), models.TriggerSchedule)
	require.NoError(t, err)
	assert.Contains(t, res.Summary, "Проект: Сити")
	assert.Equal(t, 1, locker.acquired)
	assert.Equal(t, 1, locker.released)
	assert.Equal(t, []int64{42}, archiver.ids)
	assert.Contains(t, store.deals, int64(42))
}
