// Package tracking maintains the in-memory state of every aircraft track
// the station feed reports, plus the bookkeeping that makes a noisy feed
// usable: day rollover correction, gap detection, horizon filtering, and
// staleness eviction.
package tracking

import "github.com/unklstewy/l2p-scope/pkg/l2p"

// Sample is one admitted observation of one aircraft.
type Sample struct {
	// Epoch is the corrected time of day in seconds. Within a track it
	// never decreases; observations that land after the feed's day
	// rollover are shifted forward by the rollover constant.
	Epoch float64

	// Latitude in decimal degrees
	Latitude float64

	// Longitude in decimal degrees
	Longitude float64

	// Altitude in meters above mean sea level
	Altitude float64

	// Range is the slant distance from the station in kilometers
	Range float64

	// Azimuth from the station in radians
	Azimuth float64

	// Elevation above the station horizon in degrees
	Elevation float64
}

// Track is the accumulated state of one aircraft.
type Track struct {
	// ID is the 24-bit ICAO address from the feed
	ID string

	// Callsign is taken from the record that created the track
	Callsign string

	// Samples are the admitted observations, in arrival order
	Samples []Sample

	// LastEpoch is the corrected epoch of the most recent admitted
	// sample. A brand new track starts at the raw epoch of the record
	// that created it, before that record's sample is admitted.
	LastEpoch float64

	// MaxElevation is the highest elevation any admitted sample reached,
	// in degrees. Culmination is what decides whether a pass was worth
	// pointing at.
	MaxElevation float64

	// Gap is set once any observation arrives more than the gap
	// threshold after the previous one. It stays set; a track that
	// dropped out mid-pass is suspect even after data resumes.
	Gap bool
}

// LastSample returns the most recent admitted sample.
func (t *Track) LastSample() (Sample, bool) {
	if len(t.Samples) == 0 {
		return Sample{}, false
	}
	return t.Samples[len(t.Samples)-1], true
}

// clone returns a deep copy safe to hand outside the store's lock.
func (t *Track) clone() Track {
	out := *t
	out.Samples = make([]Sample, len(t.Samples))
	copy(out.Samples, t.Samples)
	return out
}

// sampleFromRecord builds the stored observation, with the corrected
// epoch replacing the wire epoch.
func sampleFromRecord(rec l2p.PositionRecord, corrected float64) Sample {
	return Sample{
		Epoch:     corrected,
		Latitude:  rec.Latitude,
		Longitude: rec.Longitude,
		Altitude:  rec.Altitude,
		Range:     rec.Range,
		Azimuth:   rec.Azimuth,
		Elevation: rec.Elevation,
	}
}
