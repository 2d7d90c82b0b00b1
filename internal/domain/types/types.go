// Package types contains the view types shared by the service, the HTTP API
// and the CLI.
package types

import (
	"fmt"
	"sort"
	"time"

	"github.com/okian/pointsledger/internal/domain/job"
	"github.com/okian/pointsledger/internal/domain/model"
)

// Eligibility answers whether an account may start a refresh now.
type Eligibility struct {
	CanRefresh           bool          `json:"canRefresh"`
	TimeRemaining        time.Duration `json:"-"`
	TimeRemainingSeconds float64       `json:"timeRemainingSeconds"`
	TimeRemainingText    string        `json:"timeRemaining"`
	LastRefresh          *time.Time    `json:"lastRefresh,omitempty"`
	NextRefresh          *time.Time    `json:"nextRefresh,omitempty"`
}

// EligibilityAt evaluates the cooldown window. ok is false when the account
// has never been refreshed.
func EligibilityAt(last time.Time, ok bool, cooldown time.Duration, now time.Time) Eligibility {
	if !ok {
		return Eligibility{CanRefresh: true, TimeRemainingText: FormatRemaining(0)}
	}
	next := last.Add(cooldown)
	remaining := next.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return Eligibility{
		CanRefresh:           remaining == 0,
		TimeRemaining:        remaining,
		TimeRemainingSeconds: remaining.Seconds(),
		TimeRemainingText:    FormatRemaining(remaining),
		LastRefresh:          &last,
		NextRefresh:          &next,
	}
}

// FormatRemaining renders d as "3d 4h 5m".
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	return fmt.Sprintf("%dd %dh %dm", days, hours, int(d/time.Minute))
}

// Standing is a participant with its two latest ledger values.
type Standing struct {
	model.Participant
	Current  *int      `json:"current"`
	Previous *int      `json:"previous"`
	Change   job.Delta `json:"weeklyChange"`
}

// NewStanding derives the weekly change from latest and previous.
func NewStanding(p model.Participant, latest, previous *int) Standing {
	s := Standing{Participant: p, Current: latest, Previous: previous}
	if latest != nil && previous != nil {
		s.Change = job.DeltaOf(*latest - *previous)
	}
	return s
}

// SortStandings orders by weekly change descending. Unknown changes go last,
// then current points descending, then name.
func SortStandings(ss []Standing) {
	sort.SliceStable(ss, func(i, j int) bool {
		a, b := ss[i], ss[j]
		if a.Change.Known() != b.Change.Known() {
			return a.Change.Known()
		}
		if a.Change.Known() && *a.Change.Value != *b.Change.Value {
			return *a.Change.Value > *b.Change.Value
		}
		if ca, cb := value(a.Current), value(b.Current); ca != cb {
			return ca > cb
		}
		return a.Name < b.Name
	})
}

func value(v *int) int {
	if v == nil {
		return -1
	}
	return *v
}

// JobView is what clients see of a job.
type JobView struct {
	ID            string        `json:"id"`
	Account       string        `json:"account"`
	Source        string        `json:"source"`
	Kind          job.Kind      `json:"kind"`
	Status        job.Status    `json:"status"`
	Progress      job.Progress  `json:"progress"`
	Batches       []BatchView   `json:"batches"`
	Warnings      []string      `json:"warnings,omitempty"`
	Errors        []string      `json:"errors,omitempty"`
	FailureReason string        `json:"failureReason,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	FinishedAt    *time.Time    `json:"finishedAt,omitempty"`
	Report        *job.Report   `json:"report,omitempty"`
	Running       *BatchRunning `json:"running,omitempty"`
}

// BatchView summarises one batch.
type BatchView struct {
	Index     int             `json:"index"`
	Status    job.BatchStatus `json:"status"`
	Size      int             `json:"size"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
}

// BatchRunning reports live progress of the batch being scraped.
type BatchRunning struct {
	Index int `json:"index"`
	Done  int `json:"done"`
	Total int `json:"total"`
}

// NewJobView projects j. running may be nil.
func NewJobView(j *job.Job, running *BatchRunning) JobView {
	v := JobView{
		ID:            j.ID,
		Account:       j.Account,
		Source:        j.Source,
		Kind:          j.Kind,
		Status:        j.Status,
		Progress:      j.Progress(),
		Batches:       make([]BatchView, 0, len(j.Batches)),
		Warnings:      j.Warnings,
		Errors:        j.Errors,
		FailureReason: j.FailureReason,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
		FinishedAt:    j.FinishedAt,
		Report:        j.Report,
		Running:       running,
	}
	for _, b := range j.Batches {
		bv := BatchView{Index: b.Index, Status: b.Status, Size: len(b.ParticipantIDs)}
		for _, r := range b.Results {
			if r.Status == job.StatusSuccessLabel {
				bv.Succeeded++
			} else {
				bv.Failed++
			}
		}
		v.Batches = append(v.Batches, bv)
	}
	return v
}
