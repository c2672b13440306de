// Package scraper fetches canyon pages from descente-canyon.com and extracts
// the raw data embedded in them.
//
// The map page carries its waypoints as script object literals ("var point =
// {...};"), which are not valid JSON and are therefore located by pattern. The
// topo page provides the canyon title through its heading markup, and regional
// listing pages embed the canyon links of the region in a script array.
package scraper
