// Package syncer runs one incremental sync of sold deals from the CRM into the record store.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"deal_watcher/crm"
	"deal_watcher/metrics"
	"deal_watcher/models"
	"deal_watcher/services"

	"github.com/google/uuid"
)

type WatermarkStore interface {
	GetWatermark(ctx context.Context) (int64, error)
	RecordRun(ctx context.Context, checkedAt time.Time, rowCount int) error
}

type DealStore interface {
	DealExists(ctx context.Context, dealID int64) (bool, error)
	InsertDeal(ctx context.Context, d *models.Deal) error
}

type RunStore interface {
	CreateSyncRun(ctx context.Context, run *models.SyncRun) error
	FinishSyncRun(ctx context.Context, run *models.SyncRun) error
}

// Locker is implemented by stores that can hold a cross-process run lock.
type Locker interface {
	AcquireRunLock(ctx context.Context) (release func(), err error)
}

type LeadFetcher interface {
	FetchLeadsSince(ctx context.Context, watermark int64) ([]models.Lead, error)
}

type Enricher interface {
	Authenticate(ctx context.Context, apiKey string) (string, error)
	FetchProperty(ctx context.Context, dealID int64, token string) (*models.EnrichmentResult, error)
}

type Archiver interface {
	Archive(ctx context.Context, dealID int64, raw json.RawMessage) error
}

// defaultRetryWindow bounds how far back a transient enrichment failure can hold the watermark.
const defaultRetryWindow = 72 * time.Hour

// Deps wires the orchestrator. Runs, Locker, Archiver and Metrics are optional.
type Deps struct {
	Watermarks WatermarkStore
	Deals      DealStore
	Leads      LeadFetcher
	Enricher   Enricher
	Filter     *crm.ContractFilter
	APIKey     string
	Project    string

	// RetryWindow defaults to defaultRetryWindow.
	RetryWindow time.Duration

	Runs     RunStore
	Locker   Locker
	Archiver Archiver
	Metrics  *metrics.Metrics
}

type Orchestrator struct {
	Deps
	sem chan struct{}
	now func() time.Time
}

func New(d Deps) *Orchestrator {
	if d.Filter == nil {
		d.Filter = crm.NewContractFilter(models.DefaultCriterion())
	}
	if d.RetryWindow <= 0 {
		d.RetryWindow = defaultRetryWindow
	}
	return &Orchestrator{
		Deps: d,
		sem:  make(chan struct{}, 1),
		now:  time.Now,
	}
}

// SyncOnce runs the whole pipeline once. At most one run executes at a time;
// a second caller waits for the first or for its own ctx.
func (o *Orchestrator) SyncOnce(ctx context.Context, trigger string) (*models.RunResult, error) {
	release, err := o.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	run := &models.SyncRun{
		RunID:     uuid.New(),
		Trigger:   trigger,
		StartedAt: o.now(),
		Status:    models.RunStatusRunning,
	}
	o.createRun(ctx, run)

	result, err := o.sync(ctx, run)

	o.finishRun(ctx, run, err)
	return result, err
}

func (o *Orchestrator) lock(ctx context.Context) (func(), error) {
	select {
	case o.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if o.Locker == nil {
		return func() { <-o.sem }, nil
	}

	releaseStore, err := o.Locker.AcquireRunLock(ctx)
	if err != nil {
		<-o.sem
		return nil, err
	}
	return func() {
		releaseStore()
		<-o.sem
	}, nil
}

func (o *Orchestrator) sync(ctx context.Context, run *models.SyncRun) (*models.RunResult, error) {
	short := run.RunID.String()[:8]

	watermark, err := o.Watermarks.GetWatermark(ctx)
	if err != nil {
		return nil, ensureKind(models.ErrPersistence, "read watermark", err)
	}

	leads, err := o.Leads.FetchLeadsSince(ctx, watermark)
	if err != nil {
		return nil, ensureKind(models.ErrExternalService, "fetch leads", err)
	}
	qualifying := o.Filter.Filter(leads)
	run.LeadsFetched = len(leads)
	run.LeadsQualifying = len(qualifying)
	o.Metrics.RecordFetch(len(leads), len(qualifying))
	log.Printf("Sync[%s]: %d leads since %d, %d qualifying", short, len(leads), watermark, len(qualifying))

	checkedAt := run.StartedAt
	retryFloor := run.StartedAt.Add(-o.RetryWindow).Unix()
	var token string
	var persisted []models.Deal

	for _, lead := range qualifying {
		exists, err := o.Deals.DealExists(ctx, lead.ID)
		if err != nil {
			return nil, ensureKind(models.ErrPersistence, "deal exists", err)
		}
		if exists {
			continue
		}

		if token == "" {
			token, err = o.Enricher.Authenticate(ctx, o.APIKey)
			if err != nil {
				return nil, ensureKind(models.ErrAuthentication, "authenticate", err)
			}
		}

		deal, raw, transient, err := o.enrich(ctx, lead.ID, token)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("Sync[%s]: skipping deal %d: %v", short, lead.ID, err)
			run.EnrichmentErrors++
			o.Metrics.RecordEnrichmentError()
			// a transient failure keeps the lead inside the next run's window,
			// but never further back than the retry window
			if transient && lead.CreatedAt >= retryFloor && lead.CreatedAt < checkedAt.Unix() {
				checkedAt = time.Unix(lead.CreatedAt, 0)
			}
			continue
		}

		if err := o.Deals.InsertDeal(ctx, deal); err != nil {
			return nil, ensureKind(models.ErrPersistence, "insert deal", err)
		}
		persisted = append(persisted, *deal)
		o.Metrics.RecordDeal(string(deal.ObjectType))
		o.archive(ctx, short, deal.DealID, raw)
	}

	if err := o.Watermarks.RecordRun(ctx, checkedAt, len(persisted)); err != nil {
		return nil, ensureKind(models.ErrPersistence, "record run", err)
	}
	o.Metrics.RecordWatermark(checkedAt.Unix())
	run.DealsNew = len(persisted)

	result := &models.RunResult{RunID: run.RunID, Deals: persisted}
	if len(persisted) == 0 {
		result.Summary = services.NoNewDeals
		return result, nil
	}

	result.Found = true
	result.Summary = services.RunSummary(o.projectName(persisted), persisted)
	return result, nil
}

// enrich reports transient=true for failures of the property call itself.
// A property that arrives but cannot be mapped will fail the same way on every run.
func (o *Orchestrator) enrich(ctx context.Context, dealID int64, token string) (deal *models.Deal, raw json.RawMessage, transient bool, err error) {
	property, err := o.Enricher.FetchProperty(ctx, dealID, token)
	if err != nil {
		return nil, nil, true, ensureKind(models.ErrEnrichment, fmt.Sprintf("deal %d", dealID), err)
	}
	deal, err = services.MapDeal(dealID, property)
	if err != nil {
		return nil, nil, false, err
	}
	return deal, property.Raw, false, nil
}

func (o *Orchestrator) archive(ctx context.Context, short string, dealID int64, raw json.RawMessage) {
	if o.Archiver == nil || len(raw) == 0 {
		return
	}
	if err := o.Archiver.Archive(ctx, dealID, raw); err != nil {
		log.Printf("Sync[%s]: archive deal %d: %v", short, dealID, err)
	}
}

func (o *Orchestrator) projectName(deals []models.Deal) string {
	if o.Project != "" {
		return o.Project
	}
	return deals[0].Project
}

func (o *Orchestrator) createRun(ctx context.Context, run *models.SyncRun) {
	if o.Runs == nil {
		return
	}
	if err := o.Runs.CreateSyncRun(ctx, run); err != nil {
		log.Printf("Warning: failed to create sync run: %v", err)
	}
}

func (o *Orchestrator) finishRun(ctx context.Context, run *models.SyncRun, runErr error) {
	now := o.now()
	run.FinishedAt = &now
	run.Status = models.RunStatusCompleted
	if runErr != nil {
		run.Status = models.RunStatusFailed
		run.Error = runErr.Error()
	}
	o.Metrics.RecordRun(run.Trigger, string(run.Status), now.Sub(run.StartedAt))

	if o.Runs == nil {
		return
	}
	// the run's ctx may already be cancelled; bookkeeping still gets written
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.Runs.FinishSyncRun(ctx, run); err != nil {
		log.Printf("Warning: failed to finish sync run %s: %v", run.RunID, err)
	}
}

// ensureKind tags err with kind unless it already carries one.
func ensureKind(kind error, op string, err error) error {
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", kind, op, err)
}
