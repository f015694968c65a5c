// Package coordinates provides the unit conversions shared by the feed
// decoder and the display clients. The upstream feed mixes units (altitude
// in feet, azimuth in degrees) while the rest of the system works in meters
// and radians, so every conversion lives here rather than being repeated at
// each call site.
package coordinates

import "math"

// Constants for unit conversions
const (
	// DegreesToRadians converts degrees to radians
	DegreesToRadians = math.Pi / 180.0

	// RadiansToDegrees converts radians to degrees
	RadiansToDegrees = 180.0 / math.Pi

	// FeetToMeters converts feet to meters
	FeetToMeters = 0.3048

	// MetersToFeet converts meters to feet
	MetersToFeet = 3.28084
)

// DegToRad converts an angle in degrees to radians.
func DegToRad(deg float64) float64 {
	return deg * DegreesToRadians
}

// RadToDeg converts an angle in radians to degrees.
func RadToDeg(rad float64) float64 {
	return rad * RadiansToDegrees
}

// NormalizeAzimuthDeg wraps an azimuth in degrees into [0, 360).
func NormalizeAzimuthDeg(az float64) float64 {
	az = math.Mod(az, 360.0)
	if az < 0 {
		az += 360.0
	}
	return az
}
