package cli

import (
	"context"
	"fmt"
	"log"
	"strings"

	"deal_watcher/config"
	"deal_watcher/crm"
	"deal_watcher/httputil"
	"deal_watcher/metrics"
	"deal_watcher/models"
	"deal_watcher/notify"
	"deal_watcher/profitbase"
	"deal_watcher/storage"
	"deal_watcher/syncer"

	"github.com/prometheus/client_golang/prometheus"
)

// app is everything a sync needs, built from one Config.
type app struct {
	cfg     *config.Config
	store   storage.Store
	orch    *syncer.Orchestrator
	metrics *metrics.Metrics
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := storage.Open(ctx, cfg.DBURL)
	if err != nil {
		return nil, err
	}
	log.Printf("Database: %s", maskConnectionString(cfg.DBURL))

	clients := httputil.NewClients(cfg.HTTP.Timeout, &cfg.Proxy)
	if cfg.Proxy.URL != "" {
		log.Printf("Proxy: %s", maskConnectionString(cfg.Proxy.URL))
	}

	leads, err := crm.NewClient(cfg.CRM.BaseURL, cfg.CRM.Token,
		crm.WithHTTPClient(clients.CRM),
		crm.WithPageSize(cfg.CRM.PageSize),
		crm.WithMaxPages(cfg.CRM.MaxPages),
	)
	if err != nil {
		store.Close()
		return nil, err
	}

	enricher := profitbase.NewClient(cfg.Profitbase.BaseURL,
		profitbase.WithHTTPClient(clients.Profitbase),
		profitbase.WithRateLimit(cfg.Profitbase.RPS),
	)

	m := metrics.New(prometheus.NewRegistry())

	deps := syncer.Deps{
		Watermarks: store,
		Deals:      store,
		Leads:      leads,
		Enricher:   enricher,
		Filter:     crm.NewContractFilter(cfg.Criterion),
		APIKey:     cfg.Profitbase.APIKey,
		Project:    cfg.Profitbase.Project,
		Runs:       store,
		Metrics:    m,

		RetryWindow: cfg.Scheduler.RetryWindow,
	}

	if pg, ok := store.(*storage.PostgresStore); ok {
		deps.Locker = pg
	}

	if cfg.S3.Bucket != "" {
		archiver, err := storage.NewS3Archiver(ctx, cfg.S3)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("%w: s3 archiver: %w", models.ErrConfig, err)
		}
		deps.Archiver = archiver
		log.Printf("Archiving Profitbase payloads to s3://%s", cfg.S3.Bucket)
	}

	return &app{cfg: cfg, store: store, orch: syncer.New(deps), metrics: m}, nil
}

// sinks always includes the log; AMQP and SMTP join when configured.
func (a *app) sinks() ([]notify.Sink, func()) {
	sinks := []notify.Sink{notify.LogSink{}}
	cleanup := func() {}

	if a.cfg.AMQP.URL != "" {
		s, err := notify.NewAMQPSink(a.cfg.AMQP.URL, a.cfg.AMQP.Exchange)
		if err != nil {
			log.Printf("Warning: AMQP notifications disabled: %v", err)
		} else {
			sinks = append(sinks, s)
			cleanup = func() { s.Close() }
			log.Printf("Publishing notifications to exchange %s", a.cfg.AMQP.Exchange)
		}
	}

	if a.cfg.SMTP.Host != "" && a.cfg.SMTP.Operator != "" {
		sinks = append(sinks, notify.NewMailSink(a.cfg.SMTP))
		log.Printf("Operator e-mail: %s", a.cfg.SMTP.Operator)
	}

	return sinks, cleanup
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Printf("Error closing store: %v", err)
	}
}

// maskConnectionString hides the password in a URL-style connection string.
func maskConnectionString(connStr string) string {
	_, rest, ok := strings.Cut(connStr, "://")
	if !ok {
		return connStr
	}
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return connStr
	}
	userinfo := rest[:at]
	user, _, hasPass := strings.Cut(userinfo, ":")
	if !hasPass {
		return connStr
	}
	scheme := connStr[:len(connStr)-len(rest)]
	return scheme + user + ":****" + rest[at:]
}
