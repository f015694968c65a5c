package tracking

import (
	"math"
	"sync"

	"github.com/unklstewy/l2p-scope/pkg/l2p"
	"github.com/unklstewy/l2p-scope/pkg/logging"
)

// Feed timing constants, inherited from the station server's own
// bookkeeping. The rollover is deliberately 86000 rather than a calendar
// day: it is the constant the feed itself corrects by, and both sides
// must agree.
const (
	// DefaultEpochRollover is added to an epoch that lands below its
	// predecessor, which happens when the feed's day counter wraps.
	DefaultEpochRollover = 86000

	// DefaultGapThreshold is the corrected-epoch jump, in seconds, past
	// which an observation is treated as a gap rather than a sample.
	DefaultGapThreshold = 600000
)

// Config holds the track store tunables.
type Config struct {
	// MinElevation is the admission horizon in degrees. Records below it
	// are rejected before they touch any track.
	MinElevation float64

	// MaxAge is the staleness limit in seconds for batch eviction.
	// Negative disables eviction entirely.
	MaxAge float64

	// EpochRollover overrides DefaultEpochRollover when positive
	EpochRollover float64

	// GapThreshold overrides DefaultGapThreshold when positive
	GapThreshold float64
}

// withDefaults fills unset constants with the protocol defaults.
func (cfg Config) withDefaults() Config {
	if cfg.EpochRollover <= 0 {
		cfg.EpochRollover = DefaultEpochRollover
	}
	if cfg.GapThreshold <= 0 {
		cfg.GapThreshold = DefaultGapThreshold
	}
	return cfg
}

// Stats counts what the store has done with the records offered to it.
type Stats struct {
	// Admitted is the number of samples appended to tracks
	Admitted uint64 `json:"admitted"`

	// FilteredLowElevation is the number of records rejected below the
	// admission horizon
	FilteredLowElevation uint64 `json:"filtered_low_elevation"`

	// GapDiscards is the number of records dropped by the gap rule
	GapDiscards uint64 `json:"gap_discards"`

	// Evicted is the number of tracks removed as stale
	Evicted uint64 `json:"evicted"`
}

// Store holds every live track, keyed by aircraft ID, preserving the
// order tracks first appeared so display clients iterate stably. It is
// safe for concurrent use; ingestion writes while display and API
// readers snapshot.
type Store struct {
	cfg Config
	log *logging.Logger

	mu     sync.RWMutex
	tracks map[string]*Track
	order  []string
	stats  Stats
}

// NewStore creates an empty track store.
func NewStore(cfg Config, log *logging.Logger) *Store {
	return &Store{
		cfg:    cfg.withDefaults(),
		log:    log,
		tracks: make(map[string]*Track),
	}
}

// Apply feeds one position record through the admission pipeline:
// horizon filter, get-or-create, rollover correction, gap check, append.
func (s *Store) Apply(rec l2p.PositionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(rec)
}

// ApplyBatch applies records in order, then evicts stale tracks. The
// eviction reference is the raw epoch of the batch's last record, taken
// before any rollover correction and regardless of whether that record
// itself was admitted; it is the freshest statement of feed time the
// batch contains. An empty batch evicts nothing: with no statement of
// feed time there is nothing to age against.
func (s *Store) ApplyBatch(recs []l2p.PositionRecord) {
	if len(recs) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range recs {
		s.apply(rec)
	}

	if s.cfg.MaxAge < 0 {
		return
	}
	s.evict(recs[len(recs)-1].Epoch)
}

// apply is the admission pipeline. Callers hold s.mu.
func (s *Store) apply(rec l2p.PositionRecord) {
	if rec.Elevation < s.cfg.MinElevation {
		s.stats.FilteredLowElevation++
		return
	}

	tr := s.tracks[rec.ID]
	if tr == nil {
		tr = &Track{
			ID:           rec.ID,
			Callsign:     rec.Callsign,
			LastEpoch:    rec.Epoch,
			MaxElevation: math.Inf(-1),
		}
		s.tracks[rec.ID] = tr
		s.order = append(s.order, rec.ID)
		s.log.Debugf("track %s (%s) created", tr.ID, tr.Callsign)
	}

	corrected := rec.Epoch
	if corrected < tr.LastEpoch {
		corrected += s.cfg.EpochRollover
	}

	if corrected-tr.LastEpoch > s.cfg.GapThreshold {
		tr.Gap = true
		s.stats.GapDiscards++
		s.log.Debugf("track %s gap: %.3f jumps %.3f", tr.ID, tr.LastEpoch, corrected)
		return
	}

	tr.Samples = append(tr.Samples, sampleFromRecord(rec, corrected))
	tr.LastEpoch = corrected
	if rec.Elevation > tr.MaxElevation {
		tr.MaxElevation = rec.Elevation
	}
	s.stats.Admitted++
}

// evict removes every track whose last admitted epoch sits further than
// MaxAge from the reference epoch. Callers hold s.mu.
func (s *Store) evict(ref float64) {
	if len(s.tracks) == 0 {
		return
	}

	kept := s.order[:0]
	for _, id := range s.order {
		tr := s.tracks[id]
		if math.Abs(ref-tr.LastEpoch) > s.cfg.MaxAge {
			delete(s.tracks, id)
			s.stats.Evicted++
			s.log.Debugf("track %s evicted: last epoch %.3f vs reference %.3f", id, tr.LastEpoch, ref)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

// Snapshot returns deep copies of every track in first-seen order.
func (s *Store) Snapshot() []Track {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Track, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tracks[id].clone())
	}
	return out
}

// Get returns a deep copy of one track.
func (s *Store) Get(id string) (Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tr, ok := s.tracks[id]
	if !ok {
		return Track{}, false
	}
	return tr.clone(), true
}

// Len reports the number of live tracks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tracks)
}

// Stats returns a copy of the store's counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Clear removes every track. The counters survive; tracks do not.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = make(map[string]*Track)
	s.order = nil
}
