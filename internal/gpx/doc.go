// Package gpx renders waypoint documents in the GPS Exchange Format 1.1.
package gpx
