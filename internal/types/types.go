// README: Common value types shared across modules.
package types

// ID identifies a user, signal, or interaction.
type ID string

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Lat float64
	Lng float64
	// AccuracyM is the reported horizontal accuracy in meters, 0 when unknown.
	AccuracyM float64
}
