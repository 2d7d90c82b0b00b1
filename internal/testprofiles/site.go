package testprofiles

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// PathPrefix is where the Site serves profiles: /profiles/{id}.
const PathPrefix = "/profiles/"

// Profile is one fake profile.
type Profile struct {
	Name    string
	Points  int
	Variant Variant
}

type fault struct {
	remaining int
	status    int
	hang      time.Duration
}

// Site is an http.Handler serving registered profiles with per-profile fault injection.
type Site struct {
	mu       sync.Mutex
	profiles map[string]Profile
	faults   map[string]*fault
	hits     map[string]int
}

// NewSite creates an empty Site.
func NewSite() *Site {
	return &Site{
		profiles: make(map[string]Profile),
		faults:   make(map[string]*fault),
		hits:     make(map[string]int),
	}
}

// Add registers a profile under id.
func (s *Site) Add(id string, p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[id] = p
}

// SetPoints changes the points of an existing profile.
func (s *Site) SetPoints(id string, points int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profiles[id]
	p.Points = points
	s.profiles[id] = p
}

// FailTimes makes the next n requests for id answer with status.
// A negative n fails every request.
func (s *Site) FailTimes(id string, n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[id] = &fault{remaining: n, status: status}
}

// Hang delays every response for id by d.
func (s *Site) Hang(id string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[id] = &fault{remaining: -1, hang: d}
}

// Profile returns the profile registered under id.
func (s *Site) Profile(id string) (Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	return p, ok
}

// Hits returns how many requests reached id.
func (s *Site) Hits(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[id]
}

// TotalHits returns the number of profile requests served.
func (s *Site) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.hits {
		total += n
	}
	return total
}

// URL returns the profile reference of id relative to base.
func URL(base, id string) string {
	return strings.TrimRight(base, "/") + PathPrefix + id
}

func (s *Site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, ok := strings.CutPrefix(r.URL.Path, PathPrefix)
	if !ok || id == "" {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	s.hits[id]++
	p, known := s.profiles[id]
	f := s.faults[id]
	var (
		status int
		hang   time.Duration
	)
	if f != nil && f.remaining != 0 {
		status, hang = f.status, f.hang
		if f.remaining > 0 {
			f.remaining--
		}
	}
	s.mu.Unlock()

	if hang > 0 {
		select {
		case <-time.After(hang):
		case <-r.Context().Done():
			return
		}
	}
	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if !known {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(Page(p.Variant, p.Name, p.Points)))
}
