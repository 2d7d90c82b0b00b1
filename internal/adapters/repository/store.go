// Package repository persists participants, the points ledger, refresh
// markers and processing jobs.
package repository

import (
	"context"
	"time"

	"github.com/okian/pointsledger/internal/domain/job"
	"github.com/okian/pointsledger/internal/domain/model"
)

// Ledger is the append-only points history.
type Ledger interface {
	// AppendRecord adds a record for participantID. Replaying the same jobID is a no-op.
	AppendRecord(ctx context.Context, participantID int64, jobID string, points int, at time.Time) error

	// LatestAndPrevious returns the two most recent values; either may be nil.
	LatestAndPrevious(ctx context.Context, participantID int64) (latest, previous *int, err error)

	// LastRefresh returns the account's last completed refresh, if any.
	LastRefresh(ctx context.Context, account string) (time.Time, bool, error)
}

// CycleEntry is one participant's resolved value in a finalized cycle.
type CycleEntry struct {
	ParticipantID int64
	Points        int
}

// Cycle is everything finalization writes in one transaction.
type Cycle struct {
	Account   string
	JobID     string
	At        time.Time
	Entries   []CycleEntry
	SetMarker bool
	// MarkerBefore, when set, refuses the commit with ErrMarkerAdvanced if the
	// account's marker is not older than it. A replay of a committed cycle passes.
	MarkerBefore time.Time
}

// Stats are row counts across the store.
type Stats struct {
	Participants int64 `json:"participants"`
	Records      int64 `json:"records"`
	Jobs         int64 `json:"jobs"`
	ActiveJobs   int64 `json:"activeJobs"`
}

// Store is the full persistence surface used by the service.
type Store interface {
	Ledger

	// UpsertParticipants creates or corrects participants in one transaction,
	// keyed by account and profile reference, and returns them in input order.
	UpsertParticipants(ctx context.Context, account string, ds []model.Descriptor) ([]model.Participant, error)
	Participants(ctx context.Context, account string) ([]model.Participant, error)
	Participant(ctx context.Context, account string, id int64) (model.Participant, error)
	History(ctx context.Context, participantID int64) ([]model.PointsRecord, error)

	// CommitCycle appends one record per entry, updates current points and,
	// when requested, the refresh marker. It reports how many records were new.
	CommitCycle(ctx context.Context, c Cycle) (int, error)

	SaveJob(ctx context.Context, j *job.Job) error
	LoadJob(ctx context.Context, id string) (*job.Job, error)
	// DeleteJobsBefore removes jobs idle since cutoff and returns how many were not terminal.
	DeleteJobsBefore(ctx context.Context, cutoff time.Time) (expired int, err error)

	Purge(ctx context.Context, account string) error
	Backup(ctx context.Context, dir string, keep int) (string, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}
