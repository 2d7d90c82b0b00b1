// Package model contains domain models passed between layers.
package model

import (
	"net/url"
	"strings"
	"time"
)

// InvalidProfilePrefix marks a profile reference that was missing from the source data.
const InvalidProfilePrefix = "INVALID_PROFILE_URL"

// Descriptor is one input row before it becomes a Participant.
type Descriptor struct {
	Name       string `json:"name"`
	ProfileRef string `json:"profileRef,omitempty"`
	Email      string `json:"email,omitempty"`
}

// Normalize trims every field and substitutes the placeholder for a missing profile reference.
func (d Descriptor) Normalize() Descriptor {
	d.Name = strings.TrimSpace(d.Name)
	d.Email = strings.TrimSpace(d.Email)
	d.ProfileRef = strings.TrimSpace(d.ProfileRef)
	if d.ProfileRef == "" {
		d.ProfileRef = PlaceholderRef(d.Name)
	}
	return d
}

// Participant is an entity whose external profile is scraped for a points value.
type Participant struct {
	ID            int64     `json:"id"`
	Account       string    `json:"account"`
	Name          string    `json:"name"`
	Email         string    `json:"email,omitempty"`
	ProfileRef    string    `json:"profileRef"`
	CurrentPoints int       `json:"currentPoints"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// HasValidProfile reports whether the participant can be fetched at all.
func (p Participant) HasValidProfile() bool {
	return !IsInvalidProfileRef(p.ProfileRef)
}

// PointsRecord is one append-only ledger entry.
type PointsRecord struct {
	ID            int64     `json:"id"`
	ParticipantID int64     `json:"participantId"`
	JobID         string    `json:"jobId"`
	Points        int       `json:"points"`
	RecordedAt    time.Time `json:"recordedAt"`
}

// RefreshMarker records the last completed full refresh of an account.
type RefreshMarker struct {
	Account     string    `json:"account"`
	RefreshedAt time.Time `json:"refreshedAt"`
}

// PlaceholderRef builds the invalid-profile marker for a participant name.
func PlaceholderRef(name string) string {
	return InvalidProfilePrefix + "_" + strings.Join(strings.Fields(name), "_")
}

// IsInvalidProfileRef reports whether ref cannot be fetched: empty, the placeholder
// marker, or anything other than an absolute http(s) URL.
func IsInvalidProfileRef(ref string) bool {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, InvalidProfilePrefix) {
		return true
	}
	u, err := url.Parse(ref)
	if err != nil {
		return true
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return true
	}
	return u.Host == ""
}

// RawPage is the body of a fetched profile page. Skipped is set when the
// reference was a placeholder and no request was made.
type RawPage struct {
	Body    []byte
	Status  int
	Skipped bool
}
