// Package service orchestrates uploads and refreshes: it turns descriptors
// into participants, drives a job through its batches and folds the results
// into the points ledger.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/pointsledger/internal/adapters/mq/worker"
	"github.com/okian/pointsledger/internal/adapters/repository"
	"github.com/okian/pointsledger/internal/domain/dedupe"
	"github.com/okian/pointsledger/internal/domain/job"
	"github.com/okian/pointsledger/internal/domain/model"
	"github.com/okian/pointsledger/internal/domain/resolve"
	"github.com/okian/pointsledger/internal/domain/types"
	"github.com/okian/pointsledger/pkg/logger"
	"github.com/okian/pointsledger/pkg/metrics"
)

// BatchRunner resolves one batch of participants.
type BatchRunner interface {
	RunBatch(ctx context.Context, participants []model.Participant, progress worker.ProgressFunc) worker.BatchResult
}

// Service implements the pipeline used by the HTTP API and the CLI.
type Service struct {
	mu sync.RWMutex

	// Core components
	store  repository.Store
	runner BatchRunner

	// Configuration
	batchSize       int
	cooldown        time.Duration
	jobTTL          time.Duration
	janitorInterval time.Duration
	backupDir       string
	backupKeep      int
	now             func() time.Time

	// batchMu keeps batch commits and finalization strictly sequential.
	batchMu sync.Mutex
	running map[string]types.BatchRunning

	// State
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	logger logger.Logger
}

// New constructs a Service over store and runner.
func New(store repository.Store, runner BatchRunner, opts ...Option) *Service {
	s := &Service{
		store:           store,
		runner:          runner,
		batchSize:       5,
		cooldown:        7 * 24 * time.Hour,
		jobTTL:          30 * time.Minute,
		janitorInterval: time.Minute,
		backupKeep:      5,
		now:             time.Now,
		running:         make(map[string]types.BatchRunning),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	return s
}

// StartUpload validates descriptors, upserts participants and persists a new
// parsed job. Repeated profile references are dropped with a warning.
func (s *Service) StartUpload(ctx context.Context, account, source string, ds []model.Descriptor) (*job.Job, error) {
	j := job.New(account, source, job.KindUpload, s.now())

	if err := validateDescriptors(ds); err != nil {
		return nil, err
	}
	if err := j.MarkValidated(s.now()); err != nil {
		return nil, err
	}

	s.backup(ctx)

	seen := dedupe.NewInMemoryDeduper()
	unique := make([]model.Descriptor, 0, len(ds))
	for i, d := range ds {
		d = d.Normalize()
		if seen.SeenAndRecord(ctx, dedupe.ProfileKey(d.ProfileRef)) {
			j.AddWarning(fmt.Sprintf("row %d: %q repeats profile %s, skipped", i+1, d.Name, d.ProfileRef))
			continue
		}
		unique = append(unique, d)
	}

	ps, err := s.store.UpsertParticipants(ctx, account, unique)
	if err != nil {
		return s.failJob(ctx, j, "storing participants", err)
	}
	return s.parse(ctx, j, ps)
}

// StartRefresh creates a job over every participant of the account, provided
// the cooldown window has passed.
func (s *Service) StartRefresh(ctx context.Context, account string) (*job.Job, error) {
	elig, err := s.RefreshEligibility(ctx, account)
	if err != nil {
		return nil, err
	}
	if !elig.CanRefresh {
		return nil, fmt.Errorf("%w: next refresh in %s", ErrCooldownActive, elig.TimeRemainingText)
	}

	ps, err := s.store.Participants(ctx, account)
	if err != nil {
		return nil, err
	}
	if len(ps) == 0 {
		return nil, ErrNoParticipants
	}

	j := job.New(account, "refresh", job.KindRefresh, s.now())
	if err := j.MarkValidated(s.now()); err != nil {
		return nil, err
	}
	s.backup(ctx)
	return s.parse(ctx, j, ps)
}

func (s *Service) parse(ctx context.Context, j *job.Job, ps []model.Participant) (*job.Job, error) {
	if err := j.MarkParsed(ps, s.batchSize, s.now()); err != nil {
		return nil, err
	}
	if err := s.store.SaveJob(ctx, j); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "job created",
		logger.String("jobID", j.ID),
		logger.String("account", j.Account),
		logger.String("kind", string(j.Kind)),
		logger.Int("participants", len(ps)),
		logger.Int("batches", len(j.Batches)),
	)
	return j, nil
}

func validateDescriptors(ds []model.Descriptor) error {
	if len(ds) == 0 {
		return fmt.Errorf("%w: no participants", ErrInvalidInput)
	}
	var rows []string
	for i, d := range ds {
		if strings.TrimSpace(d.Name) == "" {
			rows = append(rows, fmt.Sprint(i+1))
		}
	}
	if len(rows) > 0 {
		return fmt.Errorf("%w: missing name at rows %s", ErrInvalidInput, strings.Join(rows, ", "))
	}
	return nil
}

func (s *Service) backup(ctx context.Context) {
	if s.backupDir == "" {
		return
	}
	if _, err := s.store.Backup(ctx, s.backupDir, s.backupKeep); err != nil {
		if errors.Is(err, repository.ErrBackupUnsupported) {
			s.logger.Debug(ctx, "skipping backup", logger.Error(err))
			return
		}
		s.logger.Warn(ctx, "database backup failed", logger.Error(err))
	}
}

// Job returns the current state of a job.
func (s *Service) Job(ctx context.Context, id string) (*job.Job, error) {
	j, err := s.store.LoadJob(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return j, err
}

// JobView returns a job together with the live progress of its running batch.
func (s *Service) JobView(ctx context.Context, id string) (types.JobView, error) {
	j, err := s.Job(ctx, id)
	if err != nil {
		return types.JobView{}, err
	}
	s.mu.RLock()
	r, ok := s.running[id]
	s.mu.RUnlock()
	if !ok {
		return types.NewJobView(j, nil), nil
	}
	return types.NewJobView(j, &r), nil
}

// ProcessNextBatch resolves the job's current batch and persists the merged
// results in one write. A batch without a single success is recorded as
// failed; the job still advances.
func (s *Service) ProcessNextBatch(ctx context.Context, id string) (*job.Job, error) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	j, err := s.Job(ctx, id)
	if err != nil {
		return nil, err
	}
	batch, err := j.BeginBatch(s.now())
	if err != nil {
		return j, err
	}
	index := j.BatchIndex

	s.setRunning(id, types.BatchRunning{Index: index, Total: len(batch)})
	res := s.runner.RunBatch(ctx, batch, func(done, total int) {
		s.setRunning(id, types.BatchRunning{Index: index, Done: done, Total: total})
	})
	s.clearRunning(id)

	results := make([]job.Result, 0, len(res.Outcomes))
	var warnings []string
	for _, out := range res.Outcomes {
		results = append(results, toResult(out))
		if out.Status == resolve.StatusSuccess {
			continue
		}
		p, _ := j.Participant(out.ParticipantID)
		warnings = append(warnings, fmt.Sprintf("%s: fallback %d used (%s)", p.Name, out.Points, out.Reason))
	}

	failed := res.Status == worker.BatchFailed
	if err := j.CompleteBatch(results, failed, warnings, s.now()); err != nil {
		return j, err
	}
	if err := s.store.SaveJob(ctx, j); err != nil {
		return s.failJob(ctx, j, fmt.Sprintf("committing batch %d", index+1), err)
	}

	s.logger.Info(ctx, "batch committed",
		logger.String("jobID", j.ID),
		logger.Int("batch", index+1),
		logger.Int("batches", len(j.Batches)),
		logger.Int("succeeded", res.Succeeded),
		logger.Int("failed", res.Failed),
	)
	return j, nil
}

func toResult(out resolve.Outcome) job.Result {
	return job.Result{
		ParticipantID: out.ParticipantID,
		Points:        out.Points,
		Status:        string(out.Status),
		Reason:        string(out.Reason),
		Attempts:      out.Attempts,
	}
}

func (s *Service) setRunning(id string, r types.BatchRunning) {
	s.mu.Lock()
	s.running[id] = r
	s.mu.Unlock()
}

func (s *Service) clearRunning(id string) {
	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()
}

// Finalize commits the job's results to the ledger, computes weekly deltas
// and completes the job. Finalizing a completed job returns its cached report.
func (s *Service) Finalize(ctx context.Context, id string) (*job.Report, error) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	j, err := s.Job(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case j.Status == job.StatusCompleted && j.Report != nil:
		return j.Report, nil
	case j.Status == job.StatusFailed:
		return nil, fmt.Errorf("%w: %s", ErrJobFailed, j.FailureReason)
	case !j.Done():
		return nil, fmt.Errorf("%w: %d of %d batches processed", ErrJobIncomplete, j.BatchIndex, len(j.Batches))
	}

	at := s.now()
	cycle := repository.Cycle{
		Account:   j.Account,
		JobID:     j.ID,
		At:        at,
		Entries:   make([]repository.CycleEntry, 0, len(j.Participants)),
		SetMarker: true,
	}
	if j.Kind == job.KindRefresh {
		cycle.MarkerBefore = j.CreatedAt
	}
	for _, p := range j.Participants {
		cycle.Entries = append(cycle.Entries, repository.CycleEntry{
			ParticipantID: p.ID,
			Points:        s.resultOf(j, p).Points,
		})
	}
	inserted, err := s.store.CommitCycle(ctx, cycle)
	if errors.Is(err, repository.ErrMarkerAdvanced) {
		err = fmt.Errorf("%w: a cycle was committed after this refresh started", ErrCooldownActive)
	}
	if err != nil {
		_, err = s.failJob(ctx, j, "committing cycle", err)
		return nil, err
	}

	entries := make([]job.ReportEntry, 0, len(j.Participants))
	for _, p := range j.Participants {
		r := s.resultOf(j, p)
		latest, previous, err := s.store.LatestAndPrevious(ctx, p.ID)
		if err != nil {
			_, err = s.failJob(ctx, j, "reading ledger", err)
			return nil, err
		}
		var delta job.Delta
		if latest != nil && previous != nil {
			delta = job.DeltaOf(*latest - *previous)
		}
		entries = append(entries, job.ReportEntry{
			ParticipantID:  p.ID,
			Name:           p.Name,
			ResolvedPoints: r.Points,
			WeeklyDelta:    delta,
			ProfileRef:     p.ProfileRef,
			Status:         r.Status,
		})
	}

	report := job.BuildReport(j.ID, entries, j.Warnings, at.Sub(j.CreatedAt), at)
	if err := j.MarkCompleted(report, at); err != nil {
		return nil, err
	}
	if err := s.store.SaveJob(ctx, j); err != nil {
		// The cycle is committed; finalizing again rebuilds the same report.
		return nil, err
	}

	metrics.RecordJob(string(j.Kind), string(job.StatusCompleted))
	s.logger.Info(ctx, "job finalized",
		logger.String("jobID", j.ID),
		logger.String("account", j.Account),
		logger.Int("records", inserted),
		logger.Int("succeeded", report.Summary.Succeeded),
		logger.Int("failed", report.Summary.Failed),
	)
	return report, nil
}

func (s *Service) resultOf(j *job.Job, p model.Participant) job.Result {
	if r, ok := j.Results[p.ID]; ok {
		return r
	}
	return job.Result{ParticipantID: p.ID, Status: job.StatusErrorLabel, Reason: "missing"}
}

// failJob moves j to Failed, persists it when possible and returns err.
func (s *Service) failJob(ctx context.Context, j *job.Job, op string, err error) (*job.Job, error) {
	reason := op + ": " + err.Error()
	if ferr := j.Fail(reason, s.now()); ferr != nil {
		return j, err
	}
	if serr := s.store.SaveJob(ctx, j); serr != nil {
		s.logger.Error(ctx, "persisting failed job", logger.String("jobID", j.ID), logger.Error(serr))
	}
	metrics.RecordJob(string(j.Kind), string(job.StatusFailed))
	s.logger.Error(ctx, "job failed", logger.String("jobID", j.ID), logger.String("op", op), logger.Error(err))
	return j, fmt.Errorf("%s: %w", op, err)
}

// Run processes every remaining batch and finalizes the job.
func (s *Service) Run(ctx context.Context, id string) (*job.Report, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		j, err := s.Job(ctx, id)
		if err != nil {
			return nil, err
		}
		if !j.CanContinue() {
			break
		}
		if _, err := s.ProcessNextBatch(ctx, id); err != nil {
			return nil, err
		}
	}
	return s.Finalize(ctx, id)
}

// RefreshEligibility reports whether the account's cooldown has passed.
func (s *Service) RefreshEligibility(ctx context.Context, account string) (types.Eligibility, error) {
	last, ok, err := s.store.LastRefresh(ctx, account)
	if err != nil {
		return types.Eligibility{}, err
	}
	return types.EligibilityAt(last, ok, s.cooldown, s.now()), nil
}

// Participants lists the account's participants with current, previous and
// weekly change, biggest gain first.
func (s *Service) Participants(ctx context.Context, account string) ([]types.Standing, error) {
	ps, err := s.store.Participants(ctx, account)
	if err != nil {
		return nil, err
	}
	out := make([]types.Standing, 0, len(ps))
	for _, p := range ps {
		latest, previous, err := s.store.LatestAndPrevious(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, types.NewStanding(p, latest, previous))
	}
	types.SortStandings(out)
	return out, nil
}

// History returns a participant's ledger, newest first.
func (s *Service) History(ctx context.Context, account string, participantID int64) ([]model.PointsRecord, error) {
	if _, err := s.store.Participant(ctx, account, participantID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrParticipantNotFound, participantID)
		}
		return nil, err
	}
	return s.store.History(ctx, participantID)
}

// Purge deletes everything stored for the account.
func (s *Service) Purge(ctx context.Context, account string) error {
	if err := s.store.Purge(ctx, account); err != nil {
		return err
	}
	s.logger.Warn(ctx, "account purged", logger.String("account", account))
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]interface{} {
	s.mu.RLock()
	stats := map[string]interface{}{
		"started":        s.started,
		"batchSize":      s.batchSize,
		"cooldownHours":  s.cooldown.Hours(),
		"jobTTLMinutes":  s.jobTTL.Minutes(),
		"runningBatches": len(s.running),
	}
	s.mu.RUnlock()

	st, err := s.store.Stats(ctx)
	if err != nil {
		s.logger.Warn(ctx, "reading store stats", logger.Error(err))
		return stats
	}
	stats["participants"] = st.Participants
	stats["records"] = st.Records
	stats["jobs"] = st.Jobs
	stats["activeJobs"] = st.ActiveJobs

	metrics.UpdateJobsActive(int(st.ActiveJobs))
	return stats
}
