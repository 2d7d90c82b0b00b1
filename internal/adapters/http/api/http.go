// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/okian/pointsledger/internal/domain/job"
	"github.com/okian/pointsledger/internal/domain/model"
	"github.com/okian/pointsledger/internal/domain/types"
)

// AccountHeader carries the caller's account; authentication happens upstream.
const AccountHeader = "X-Account"

// DefaultAccount is used when the header is absent.
const DefaultAccount = "default"

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StartUpload(ctx context.Context, account, source string, ds []model.Descriptor) (*job.Job, error)
	StartRefresh(ctx context.Context, account string) (*job.Job, error)
	ProcessNextBatch(ctx context.Context, id string) (*job.Job, error)
	Finalize(ctx context.Context, id string) (*job.Report, error)
	Run(ctx context.Context, id string) (*job.Report, error)

	Job(ctx context.Context, id string) (*job.Job, error)
	JobView(ctx context.Context, id string) (types.JobView, error)

	RefreshEligibility(ctx context.Context, account string) (types.Eligibility, error)
	Participants(ctx context.Context, account string) ([]types.Standing, error)
	History(ctx context.Context, account string, participantID int64) ([]model.PointsRecord, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler       *HealthHandler
	statsHandler        *StatsHandler
	jobsHandler         *JobsHandler
	refreshHandler      *RefreshHandler
	participantsHandler *ParticipantsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:       NewHealthHandler(),
		statsHandler:        NewStatsHandler(statsProvider),
		jobsHandler:         NewJobsHandler(deps),
		refreshHandler:      NewRefreshHandler(deps),
		participantsHandler: NewParticipantsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", instrument("healthz", s.healthHandler.HandleHealth))
	mux.HandleFunc("GET /stats", instrument("stats", s.statsHandler.HandleStats))

	mux.HandleFunc("POST /jobs", instrument("jobs_create", s.jobsHandler.HandleCreate))
	mux.HandleFunc("GET /jobs/{id}", instrument("jobs_get", s.jobsHandler.HandleGet))
	mux.HandleFunc("POST /jobs/{id}/next", instrument("jobs_next", s.jobsHandler.HandleNext))
	mux.HandleFunc("POST /jobs/{id}/finalize", instrument("jobs_finalize", s.jobsHandler.HandleFinalize))

	mux.HandleFunc("POST /refresh", instrument("refresh", s.refreshHandler.HandleStart))
	mux.HandleFunc("GET /refresh/next", instrument("refresh_next", s.refreshHandler.HandleNext))

	mux.HandleFunc("GET /participants", instrument("participants", s.participantsHandler.HandleList))
	mux.HandleFunc("GET /participants/{id}/history",
		instrument("participant_history", s.participantsHandler.HandleHistory))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// fail writes err with the status derived from its kind.
func fail(w http.ResponseWriter, err error) {
	status, code := statusOf(err)
	writeError(w, status, code, err)
}

func accountOf(r *http.Request) string {
	if a := strings.TrimSpace(r.Header.Get(AccountHeader)); a != "" {
		return a
	}
	return DefaultAccount
}

func wantsRun(r *http.Request) bool {
	switch strings.ToLower(r.URL.Query().Get("run")) {
	case "1", "true", "yes":
		return true
	}
	return false
}
