// Package dedupe tracks profile references already claimed within one refresh cycle.
package dedupe

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/okian/pointsledger/internal/domain/model"
)

// Deduper records seen keys so a profile is resolved at most once per cycle.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	Size() int64
}

type inMemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewInMemoryDeduper creates an empty deduper for one upload.
func NewInMemoryDeduper() Deduper {
	return &inMemoryDeduper{seen: make(map[string]struct{})}
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[key]; exists {
		return true
	}
	d.seen[key] = struct{}{}
	return false
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}

// ProfileKey canonicalises a profile reference for duplicate detection: scheme and
// host are lower-cased, the fragment and a trailing slash are dropped. Placeholder
// and unparsable references are returned trimmed.
func ProfileKey(ref string) string {
	ref = strings.TrimSpace(ref)
	if model.IsInvalidProfileRef(ref) {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}
