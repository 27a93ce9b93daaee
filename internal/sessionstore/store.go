// Package sessionstore persists the last delegation session per profile so a
// later invocation can resume it. The registry is a single JSON object keyed
// by profile name; several cswitch processes may write it concurrently, so
// every write replaces the file via temp-file + rename while holding an
// advisory file lock.
package sessionstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
)

const (
	// DefaultRetention is how long an untouched session is kept.
	DefaultRetention = 30 * 24 * time.Hour
	// DefaultSweepChance is the probability MaybeSweep performs a sweep.
	DefaultSweepChance = 0.1
)

var (
	// ErrNotFound is returned by Update when no record with the given
	// session id exists for the profile.
	ErrNotFound = errors.New("session not found")
	// ErrCorrupt is returned when the registry file cannot be parsed.
	ErrCorrupt = errors.New("session registry corrupt")
)

// Record is the last session of one profile.
type Record struct {
	Profile     string    `json:"-"`
	SessionID   string    `json:"sessionId"`
	TotalCost   float64   `json:"totalCost"`
	Turns       int       `json:"turns"`
	Cwd         string    `json:"cwd"`
	CreatedAt   time.Time `json:"createdAt"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Usage is the per-execution delta folded into a record.
type Usage struct {
	Cost  float64
	Turns int
	Cwd   string
}

// Store reads and writes the registry file.
type Store struct {
	path        string
	retention   time.Duration
	sweepChance float64
	now         func() time.Time
	rand        func() float64
}

// Option configures a Store.
type Option func(*Store)

// WithRetention overrides DefaultRetention.
func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithSweepChance overrides DefaultSweepChance.
func WithSweepChance(p float64) Option {
	return func(s *Store) { s.sweepChance = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRand overrides the random source used by MaybeSweep.
func WithRand(r func() float64) Option {
	return func(s *Store) { s.rand = r }
}

// New returns a Store backed by path. The file is created on first write.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:        path,
		retention:   DefaultRetention,
		sweepChance: DefaultSweepChance,
		now:         time.Now,
		rand:        rand.Float64,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Path returns the registry file path.
func (s *Store) Path() string { return s.path }

// Last returns the last session recorded for profile, or nil if none.
func (s *Store) Last(profile string) (*Record, error) {
	recs, err := s.load()
	if err != nil {
		return nil, err
	}
	rec, ok := recs[profile]
	if !ok {
		return nil, nil
	}
	rec.Profile = profile
	return &rec, nil
}

// List returns every record sorted by profile name.
func (s *Store) List() ([]Record, error) {
	recs, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(recs))
	for name, rec := range recs {
		rec.Profile = name
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Profile < out[j].Profile })
	return out, nil
}

// Put replaces the record for profile.
func (s *Store) Put(profile string, rec Record) error {
	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.LastUpdated = now
	return s.mutate(func(recs map[string]Record) bool {
		recs[profile] = rec
		return true
	})
}

// Update folds usage into the existing record for profile when its session
// id matches sessionID. Cost and turns accumulate.
func (s *Store) Update(profile, sessionID string, u Usage) error {
	var found bool
	err := s.mutate(func(recs map[string]Record) bool {
		rec, ok := recs[profile]
		if !ok || rec.SessionID != sessionID {
			return false
		}
		found = true
		rec.TotalCost += u.Cost
		rec.Turns += u.Turns
		if u.Cwd != "" {
			rec.Cwd = u.Cwd
		}
		rec.LastUpdated = s.now()
		recs[profile] = rec
		return true
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s for profile %s", ErrNotFound, sessionID, profile)
	}
	return nil
}

// Save updates the record when sessionID continues the stored session and
// replaces it otherwise.
func (s *Store) Save(profile, sessionID string, u Usage) error {
	err := s.Update(profile, sessionID, u)
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.Put(profile, Record{
		SessionID: sessionID,
		TotalCost: u.Cost,
		Turns:     u.Turns,
		Cwd:       u.Cwd,
	})
}

// Delete removes the record for profile. Deleting a missing record is not
// an error.
func (s *Store) Delete(profile string) error {
	return s.mutate(func(recs map[string]Record) bool {
		if _, ok := recs[profile]; !ok {
			return false
		}
		delete(recs, profile)
		return true
	})
}

// SweepExpired removes records not updated within the retention window and
// returns how many were removed.
func (s *Store) SweepExpired() (int, error) {
	cutoff := s.now().Add(-s.retention)
	removed := 0
	err := s.mutate(func(recs map[string]Record) bool {
		for name, rec := range recs {
			if rec.LastUpdated.Before(cutoff) {
				delete(recs, name)
				removed++
			}
		}
		return removed > 0
	})
	return removed, err
}

// MaybeSweep runs SweepExpired with the configured probability. It reports
// whether a sweep ran.
func (s *Store) MaybeSweep() (bool, int, error) {
	if s.rand() >= s.sweepChance {
		return false, 0, nil
	}
	n, err := s.SweepExpired()
	return true, n, err
}

func (s *Store) load() (map[string]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Record{}, nil
		}
		return nil, fmt.Errorf("read session registry: %w", err)
	}
	recs := map[string]Record{}
	if len(data) == 0 {
		return recs, nil
	}
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	return recs, nil
}

// mutate applies fn under the registry lock and writes the result if fn
// reports a change. A corrupt registry is replaced rather than failing
// every later write.
func (s *Store) mutate(fn func(map[string]Record) bool) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}

	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock session registry: %w", err)
	}
	defer lock.Unlock()

	recs, err := s.load()
	if err != nil {
		if !errors.Is(err, ErrCorrupt) {
			return err
		}
		recs = map[string]Record{}
	}
	if !fn(recs) {
		return nil
	}
	return writeAtomic(s.path, recs)
}

func writeAtomic(path string, recs map[string]Record) error {
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session registry: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp registry: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp registry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp registry: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp registry: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace session registry: %w", err)
	}
	return nil
}
