// Package converter drives the canyon-to-GPX pipeline.
//
// For one canyon it resolves the ID, fetches the map and topo pages in
// parallel, extracts and labels the waypoints and renders the GPX document.
// A failed topo fetch only costs the canyon title; a failed map fetch fails
// the request. Region conversion runs the same pipeline for every canyon of a
// listing page, one canyon at a time, and skips canyons that fail.
package converter
