// Package geo defines the canonical geographic value types shared by every
// provider client and tool: bounding boxes in [minLon, minLat, maxLon, maxLat]
// order, calendar dates and date ranges, and polygons derived from boxes.
//
// No network or provider code lives here. Conversions to provider shapes go
// through [github.com/paulmach/orb] geometries so they can be encoded as
// GeoJSON without hand-written coordinate plumbing.
package geo
