// Package api is the HTTP surface used by the chat bot: on-demand sync,
// read queries over persisted deals, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"deal_watcher/metrics"
	"deal_watcher/models"
	"deal_watcher/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Store is the read side of the record store.
type Store interface {
	LastSyncLog(ctx context.Context) (*models.SyncLogEntry, error)
	ListDeals(ctx context.Context, objectType models.ObjectType) ([]models.Deal, error)
	ListHouses(ctx context.Context, project string, objectType models.ObjectType) ([]int, error)
	ListObjects(ctx context.Context, project string, objectType models.ObjectType, house int) ([]int, error)
	GetDeal(ctx context.Context, project string, objectType models.ObjectType, house, object int) (*models.Deal, error)
	RecentSyncRuns(ctx context.Context, limit int) ([]models.SyncRun, error)
}

// Trigger is satisfied by *scheduler.Scheduler.
type Trigger interface {
	RunNow(ctx context.Context, trigger string) (*models.RunResult, error)
	Paused() bool
	Expr() string
}

type Server struct {
	store   Store
	trigger Trigger
	metrics *metrics.Metrics
	started time.Time
}

func NewServer(store Store, trigger Trigger, m *metrics.Metrics) *Server {
	return &Server{store: store, trigger: trigger, metrics: m, started: time.Now()}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
	}))

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	r.Post("/sync", s.handleSync)
	r.Get("/runs", s.handleRuns)

	r.Route("/deals", func(r chi.Router) {
		r.Get("/", s.handleDeals)
		r.Get("/houses", s.handleHouses)
		r.Get("/objects", s.handleObjects)
		r.Get("/one", s.handleDeal)
	})

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("API: listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type healthResponse struct {
	Status   string               `json:"status"`
	Uptime   string               `json:"uptime"`
	Schedule string               `json:"schedule,omitempty"`
	Paused   bool                 `json:"paused"`
	LastSync *models.SyncLogEntry `json:"last_sync,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "healthy",
		Uptime: time.Since(s.started).Round(time.Second).String(),
	}
	if s.trigger != nil {
		resp.Schedule = s.trigger.Expr()
		resp.Paused = s.trigger.Paused()
	}

	entry, err := s.store.LastSyncLog(r.Context())
	if err != nil {
		resp.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.LastSync = entry
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.trigger == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}

	// a client that disconnects must not abort the run
	result, err := s.trigger.RunNow(context.WithoutCancel(r.Context()), models.TriggerAPI)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	runs, err := s.store.RecentSyncRuns(r.Context(), limit)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

type dealsResponse struct {
	Text  string        `json:"text"`
	Deals []models.Deal `json:"deals"`
}

func (s *Server) handleDeals(w http.ResponseWriter, r *http.Request) {
	objectType, ok := objectTypeParam(w, r)
	if !ok {
		return
	}

	deals, err := s.store.ListDeals(r.Context(), objectType)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if deals == nil {
		deals = []models.Deal{}
	}
	writeJSON(w, http.StatusOK, dealsResponse{Text: services.DealsList(deals), Deals: deals})
}

type housesResponse struct {
	Text   string `json:"text"`
	Houses []int  `json:"houses"`
}

func (s *Server) handleHouses(w http.ResponseWriter, r *http.Request) {
	objectType, ok := objectTypeParam(w, r)
	if !ok {
		return
	}
	project := r.URL.Query().Get("project")

	houses, err := s.store.ListHouses(r.Context(), project, objectType)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if houses == nil {
		houses = []int{}
	}
	writeJSON(w, http.StatusOK, housesResponse{Text: services.HousesList(project, houses), Houses: houses})
}

type objectsResponse struct {
	Text    string `json:"text"`
	Objects []int  `json:"objects"`
}

func (s *Server) handleObjects(w http.ResponseWriter, r *http.Request) {
	objectType, ok := objectTypeParam(w, r)
	if !ok {
		return
	}
	house, ok := intParam(w, r, "house")
	if !ok {
		return
	}
	project := r.URL.Query().Get("project")

	objects, err := s.store.ListObjects(r.Context(), project, objectType, house)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if objects == nil {
		objects = []int{}
	}
	writeJSON(w, http.StatusOK, objectsResponse{Text: services.ObjectsList(objectType, house, objects), Objects: objects})
}

type dealResponse struct {
	Text string       `json:"text"`
	Deal *models.Deal `json:"deal"`
}

func (s *Server) handleDeal(w http.ResponseWriter, r *http.Request) {
	objectType, ok := objectTypeParam(w, r)
	if !ok {
		return
	}
	house, ok := intParam(w, r, "house")
	if !ok {
		return
	}
	object, ok := intParam(w, r, "object")
	if !ok {
		return
	}

	deal, err := s.store.GetDeal(r.Context(), r.URL.Query().Get("project"), objectType, house, object)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if deal == nil {
		writeJSON(w, http.StatusNotFound, dealResponse{Text: services.NoData})
		return
	}
	writeJSON(w, http.StatusOK, dealResponse{Text: services.DealCard(deal), Deal: deal})
}

// objectTypeParam defaults to apartments when ?type is absent.
func objectTypeParam(w http.ResponseWriter, r *http.Request) (models.ObjectType, bool) {
	v := r.URL.Query().Get("type")
	if v == "" {
		return models.ObjectApartment, true
	}
	t := models.ObjectType(v)
	if !t.Valid() {
		writeError(w, http.StatusBadRequest, "invalid type: "+v)
		return "", false
	}
	return t, true
}

func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return n, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrExternalService), errors.Is(err, models.ErrAuthentication):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("API: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
