// Package waypoint turns raw point fragments scraped from a canyon map page
// into canonical waypoints and resolves their display labels.
//
// Each matching rule (coordinates, category, note) is a separate function so a
// change in the source page format stays local to one pattern. Labelling goes
// through a single category table with a generic fallback, so any category,
// including an empty one, renders without failing.
package waypoint
