// Package job implements the processing job state machine:
//
//	Pending -> Validated -> Parsed -> Scraping(batchIndex) -> Completed
//	any non-terminal state -> Failed(reason)
//
// Batches are independent units of commit. A failed batch is recorded and the
// job advances to the next one; only Fail ends a job early.
package job

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pointsledger/internal/domain/model"
)

// Kind distinguishes a fresh upload from a cooldown-gated refresh.
type Kind string

// Job kinds.
const (
	KindUpload  Kind = "upload"
	KindRefresh Kind = "refresh"
)

// Status is the overall job state.
type Status string

// Job states.
const (
	StatusPending   Status = "pending"
	StatusValidated Status = "validated"
	StatusParsed    Status = "parsed"
	StatusScraping  Status = "scraping"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// BatchStatus is the state of one batch.
type BatchStatus string

// Batch states.
const (
	BatchPending   BatchStatus = "pending"
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
)

// Participant result labels.
const (
	StatusSuccessLabel = "success"
	StatusErrorLabel   = "error"
)

// Result is the resolved value of one participant.
type Result struct {
	ParticipantID int64  `json:"participantId"`
	Points        int    `json:"points"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	Attempts      int    `json:"attempts"`
}

// Batch is a fixed-size slice of the job's participants.
type Batch struct {
	Index          int         `json:"index"`
	ParticipantIDs []int64     `json:"participantIds"`
	Status         BatchStatus `json:"status"`
	Results        []Result    `json:"results,omitempty"`
	Warnings       []string    `json:"warnings,omitempty"`
	StartedAt      *time.Time  `json:"startedAt,omitempty"`
	FinishedAt     *time.Time  `json:"finishedAt,omitempty"`
}

// Job is one upload or refresh attempt.
type Job struct {
	ID            string              `json:"id"`
	Account       string              `json:"account"`
	Source        string              `json:"source"`
	Kind          Kind                `json:"kind"`
	Status        Status              `json:"status"`
	BatchIndex    int                 `json:"batchIndex"`
	Participants  []model.Participant `json:"participants"`
	Batches       []Batch             `json:"batches"`
	Results       map[int64]Result    `json:"results"`
	Warnings      []string            `json:"warnings,omitempty"`
	Errors        []string            `json:"errors,omitempty"`
	FailureReason string              `json:"failureReason,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
	FinishedAt    *time.Time          `json:"finishedAt,omitempty"`
	Report        *Report             `json:"report,omitempty"`
}

// Progress summarises how far a job has come.
type Progress struct {
	Status       Status  `json:"status"`
	BatchIndex   int     `json:"batchIndex"`
	TotalBatches int     `json:"totalBatches"`
	Processed    int     `json:"processed"`
	Total        int     `json:"total"`
	Percent      float64 `json:"percent"`
}

// New creates a pending job.
func New(account, source string, kind Kind, now time.Time) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Account:   account,
		Source:    source,
		Kind:      kind,
		Status:    StatusPending,
		Results:   make(map[int64]Result),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Partition splits ps into consecutive slices of at most size elements.
func Partition(ps []model.Participant, size int) [][]model.Participant {
	if size <= 0 {
		size = 1
	}
	out := make([][]model.Participant, 0, (len(ps)+size-1)/size)
	for start := 0; start < len(ps); start += size {
		end := min(start+size, len(ps))
		out = append(out, ps[start:end])
	}
	return out
}

func (j *Job) transition(from []Status, to Status, now time.Time) error {
	for _, s := range from {
		if j.Status == s {
			j.Status = to
			j.UpdatedAt = now
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
}

// MarkValidated records that the input passed its structural check.
func (j *Job) MarkValidated(now time.Time) error {
	return j.transition([]Status{StatusPending}, StatusValidated, now)
}

// MarkParsed stores the participants and groups them into batches.
func (j *Job) MarkParsed(ps []model.Participant, batchSize int, now time.Time) error {
	if err := j.transition([]Status{StatusValidated}, StatusParsed, now); err != nil {
		return err
	}
	j.Participants = ps
	j.Batches = j.Batches[:0]
	for i, group := range Partition(ps, batchSize) {
		ids := make([]int64, len(group))
		for k, p := range group {
			ids[k] = p.ID
		}
		j.Batches = append(j.Batches, Batch{Index: i, ParticipantIDs: ids, Status: BatchPending})
	}
	j.BatchIndex = 0
	return nil
}

// Done reports whether every batch has been processed.
func (j *Job) Done() bool {
	return j.BatchIndex >= len(j.Batches)
}

// CanContinue reports whether another batch may be started.
func (j *Job) CanContinue() bool {
	return (j.Status == StatusParsed || j.Status == StatusScraping) && !j.Done()
}

// Terminal reports whether the job is completed or failed.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// BeginBatch moves the job into Scraping and returns the participants of the current batch.
func (j *Job) BeginBatch(now time.Time) ([]model.Participant, error) {
	if j.Status != StatusParsed && j.Status != StatusScraping {
		return nil, fmt.Errorf("%w: cannot scrape from %s", ErrInvalidTransition, j.Status)
	}
	if j.Done() {
		return nil, ErrNoPendingBatch
	}

	b := &j.Batches[j.BatchIndex]
	if b.Status != BatchPending && b.Status != BatchRunning {
		return nil, fmt.Errorf("%w: batch %d is %s", ErrInvalidTransition, b.Index, b.Status)
	}
	b.Status = BatchRunning
	b.StartedAt = &now
	j.Status = StatusScraping
	j.UpdatedAt = now

	return j.participantsOf(b.ParticipantIDs), nil
}

// CompleteBatch merges the current batch's results and advances batchIndex.
// A failed batch keeps its fallback results and does not halt the job.
func (j *Job) CompleteBatch(results []Result, failed bool, warnings []string, now time.Time) error {
	if j.Status != StatusScraping || j.Done() {
		return fmt.Errorf("%w: no running batch", ErrInvalidTransition)
	}
	b := &j.Batches[j.BatchIndex]
	if b.Status != BatchRunning {
		return fmt.Errorf("%w: batch %d is %s", ErrInvalidTransition, b.Index, b.Status)
	}

	b.Results = results
	b.Warnings = warnings
	b.FinishedAt = &now
	b.Status = BatchCompleted
	if failed {
		b.Status = BatchFailed
		j.Warnings = append(j.Warnings, fmt.Sprintf("batch %d failed: no participant resolved", b.Index+1))
	}
	for _, r := range results {
		j.Results[r.ParticipantID] = r
	}
	j.Warnings = append(j.Warnings, warnings...)
	j.BatchIndex++
	j.UpdatedAt = now
	return nil
}

// MarkCompleted stores the final report. Every batch must have been processed.
func (j *Job) MarkCompleted(report *Report, now time.Time) error {
	if !j.Done() {
		return fmt.Errorf("%w: %d of %d batches processed", ErrInvalidTransition, j.BatchIndex, len(j.Batches))
	}
	if err := j.transition([]Status{StatusParsed, StatusScraping}, StatusCompleted, now); err != nil {
		return err
	}
	j.Report = report
	j.FinishedAt = &now
	return nil
}

// Fail ends the job with reason. Results of processed batches are kept.
func (j *Job) Fail(reason string, now time.Time) error {
	if j.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusFailed)
	}
	if j.Status == StatusScraping && !j.Done() && j.Batches[j.BatchIndex].Status == BatchRunning {
		j.Batches[j.BatchIndex].Status = BatchFailed
	}
	j.Status = StatusFailed
	j.FailureReason = reason
	j.Errors = append(j.Errors, reason)
	j.UpdatedAt = now
	j.FinishedAt = &now
	return nil
}

// AddWarning records a non-fatal problem.
func (j *Job) AddWarning(msg string) {
	j.Warnings = append(j.Warnings, msg)
}

// Progress reports processed participants out of the total.
func (j *Job) Progress() Progress {
	p := Progress{
		Status:       j.Status,
		BatchIndex:   j.BatchIndex,
		TotalBatches: len(j.Batches),
		Processed:    len(j.Results),
		Total:        len(j.Participants),
	}
	if p.Total > 0 {
		p.Percent = round2(float64(p.Processed) * 100 / float64(p.Total))
	} else if j.Status == StatusCompleted {
		p.Percent = 100
	}
	return p
}

// Participant looks up a participant of the job by ID.
func (j *Job) Participant(id int64) (model.Participant, bool) {
	for _, p := range j.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return model.Participant{}, false
}

func (j *Job) participantsOf(ids []int64) []model.Participant {
	byID := make(map[int64]model.Participant, len(j.Participants))
	for _, p := range j.Participants {
		byID[p.ID] = p
	}
	out := make([]model.Participant, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out
}
