package job

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// FirstUploadDelta is reported when a participant has no previous record.
const FirstUploadDelta = "N/A (first upload)"

// Delta is a weekly change: latest minus previous, or FirstUploadDelta when
// there is no previous record. It marshals as a number or that string.
type Delta struct {
	Value *int
}

// DeltaOf builds a known delta.
func DeltaOf(v int) Delta { return Delta{Value: &v} }

// Known reports whether a previous record existed.
func (d Delta) Known() bool { return d.Value != nil }

func (d Delta) String() string {
	if d.Value == nil {
		return FirstUploadDelta
	}
	return strconv.Itoa(*d.Value)
}

// MarshalJSON implements json.Marshaler.
func (d Delta) MarshalJSON() ([]byte, error) {
	if d.Value == nil {
		return json.Marshal(FirstUploadDelta)
	}
	return []byte(strconv.Itoa(*d.Value)), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Delta) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s != FirstUploadDelta {
			return fmt.Errorf("unknown delta %q", s)
		}
		d.Value = nil
		return nil
	}
	var v int
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	d.Value = &v
	return nil
}

// ReportEntry is one row of a finalized job.
type ReportEntry struct {
	ParticipantID  int64  `json:"participantId"`
	Name           string `json:"name"`
	ResolvedPoints int    `json:"resolvedPoints"`
	WeeklyDelta    Delta  `json:"weeklyDelta"`
	ProfileRef     string `json:"profileRef"`
	Status         string `json:"status"`
}

// Summary aggregates a finalized job.
type Summary struct {
	TotalParticipants     int     `json:"totalParticipants"`
	Succeeded             int     `json:"succeeded"`
	Failed                int     `json:"failed"`
	SuccessRatePercent    float64 `json:"successRatePercent"`
	ProcessingTimeSeconds float64 `json:"processingTimeSeconds"`
}

// Report is the cached output of finalization.
type Report struct {
	JobID       string        `json:"jobId"`
	Entries     []ReportEntry `json:"entries"`
	Summary     Summary       `json:"summary"`
	Warnings    []string      `json:"warnings,omitempty"`
	FinalizedAt time.Time     `json:"finalizedAt"`
}

// BuildReport sorts entries by resolved points descending (name breaks ties)
// and computes the summary.
func BuildReport(jobID string, entries []ReportEntry, warnings []string, elapsed time.Duration, now time.Time) *Report {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].ResolvedPoints != entries[j].ResolvedPoints {
			return entries[i].ResolvedPoints > entries[j].ResolvedPoints
		}
		return entries[i].Name < entries[j].Name
	})

	s := Summary{TotalParticipants: len(entries)}
	for _, e := range entries {
		if e.Status == StatusSuccessLabel {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	if s.TotalParticipants > 0 {
		s.SuccessRatePercent = round2(float64(s.Succeeded) * 100 / float64(s.TotalParticipants))
	}
	s.ProcessingTimeSeconds = round2(elapsed.Seconds())

	return &Report{
		JobID:       jobID,
		Entries:     entries,
		Summary:     s,
		Warnings:    warnings,
		FinalizedAt: now,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
