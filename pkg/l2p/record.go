package l2p

// Record is one classified feed line. The concrete types are
// PositionRecord, TelescopeStatus, and ControlSentinel; consumers
// dispatch with a type switch.
type Record interface {
	record()
}

// PositionRecord is one ADS-B observation of one aircraft, reduced by the
// station server to the fields a co-located telescope cares about. Units
// are normalized on decode: the wire carries altitude in feet and azimuth
// in degrees, the record stores meters and radians. Elevation stays in
// degrees because every downstream comparison (horizon filters, display)
// works in degrees.
type PositionRecord struct {
	// MJD is the Modified Julian Date of the observation
	MJD int

	// Epoch is the time of day in seconds (0 up to roughly 86400; the
	// feed's day rollover handling lives in the track store)
	Epoch float64

	// ID is the 24-bit ICAO aircraft address as lowercase hex (e.g., "4ca626")
	ID string

	// Callsign is the flight number or registration (e.g., "RYR8JT")
	Callsign string

	// Latitude in decimal degrees (-90 to +90)
	Latitude float64

	// Longitude in decimal degrees (-180 to +180)
	Longitude float64

	// Altitude in meters above mean sea level (converted from feet)
	Altitude float64

	// Range is the slant distance from the station in kilometers
	Range float64

	// Azimuth from the station in radians (converted from degrees)
	Azimuth float64

	// Elevation above the station horizon in degrees
	Elevation float64
}

func (PositionRecord) record() {}

// TelescopeStatus is the station telescope's pointing report. The parked
// default the server sends before the mount reports anything is
// "0 0 0 00.00 00.00 1".
type TelescopeStatus struct {
	// MJD is the Modified Julian Date of the report
	MJD int

	// Epoch is the time of day in seconds
	Epoch float64

	// Tag is the reporting unit's label (e.g., "telscp")
	Tag string

	// Azimuth of the mount in degrees
	Azimuth float64

	// Elevation of the mount in degrees
	Elevation float64

	// Valid reports whether the mount considers the pointing solution
	// good. On the wire it is the first byte of the last token: '1' is
	// valid, anything else is not.
	Valid bool
}

func (TelescopeStatus) record() {}

// ControlSentinel is a two-token control line. Historically the feed used
// these to signal connection trouble in-stream; the live client now
// reports failures out of band via Payload.Err, but recorded feeds and
// older servers still produce sentinel lines, and both forms drive the
// same reconnect path.
type ControlSentinel struct {
	Tokens [2]string
}

func (ControlSentinel) record() {}
