package converter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pfrederiksen/canyon-gpx/internal/canyon"
	"github.com/pfrederiksen/canyon-gpx/internal/gpx"
	"github.com/pfrederiksen/canyon-gpx/internal/logger"
	"github.com/pfrederiksen/canyon-gpx/internal/metrics"
	"github.com/pfrederiksen/canyon-gpx/internal/scraper"
	"github.com/pfrederiksen/canyon-gpx/internal/waypoint"
)

var (
	// ErrInvalidInput means no canyon ID could be resolved from the request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSourceUnavailable means the mandatory page could not be fetched or was empty.
	ErrSourceUnavailable = errors.New("topo not found")
	// ErrNoWaypoints means the map page was fetched but held no usable point.
	ErrNoWaypoints = errors.New("no waypoints found")
)

// Fetcher downloads a page. Implementations must honor their own timeout.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Request identifies the canyon to convert. ID takes precedence over URL.
type Request struct {
	ID  string
	URL string
}

// Result is a rendered GPX file
type Result struct {
	ID        canyon.ID // zero for region files
	Title     string
	Filename  string
	Waypoints int
	GPX       []byte
}

// Converter runs the conversion pipeline. It holds no per-request state and
// is safe for concurrent use.
type Converter struct {
	fetcher Fetcher
	baseURL string
}

// New creates a Converter fetching pages through f
func New(f Fetcher) *Converter {
	return &Converter{
		fetcher: f,
		baseURL: canyon.BaseURL,
	}
}

// canyonData is the outcome of the per-canyon pipeline
type canyonData struct {
	sources   canyon.Sources
	title     string
	waypoints []gpx.Waypoint
}

// Outcome classifies a conversion error for metrics
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, ErrNoWaypoints):
		return "no_waypoints"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}

// record counts a finished conversion
func record(mode string, result *Result, err error) {
	metrics.Conversions.WithLabelValues(mode, Outcome(err)).Inc()
	if err == nil {
		metrics.WaypointsEmitted.WithLabelValues(mode).Add(float64(result.Waypoints))
	}
}

// Convert builds the GPX file for a single canyon
func (c *Converter) Convert(ctx context.Context, req Request) (result *Result, err error) {
	defer func() { record("canyon", result, err) }()

	id, err := canyon.Resolve(req.ID, req.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	data, err := c.collect(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(data.waypoints) == 0 {
		return nil, fmt.Errorf("canyon %d: %w", id, ErrNoWaypoints)
	}

	doc := &gpx.Document{
		Name:      data.title,
		Link:      data.sources.Canonical,
		Waypoints: data.waypoints,
	}

	logger.Info("Canyon converted", logger.Fields{
		"canyon_id": int(id),
		"title":     data.title,
		"waypoints": len(data.waypoints),
	})

	return &Result{
		ID:        id,
		Title:     data.title,
		Filename:  id.Filename(),
		Waypoints: len(data.waypoints),
		GPX:       []byte(gpx.Generate(doc)),
	}, nil
}

// ConvertRegion builds one GPX file holding the waypoints of every canyon
// listed on a regional listing page. Canyons that fail are logged and skipped.
func (c *Converter) ConvertRegion(ctx context.Context, listingURL string) (result *Result, err error) {
	defer func() { record("region", result, err) }()

	if listingURL == "" {
		listingURL = canyon.DefaultListingURL
	}

	listing, ok := c.fetch(ctx, "listing", listingURL)
	if !ok {
		return nil, fmt.Errorf("listing %s: %w", listingURL, ErrSourceUnavailable)
	}

	ids := scraper.ListingIDs(listing)
	logger.Info("Region listing parsed", logger.Fields{
		"url":     listingURL,
		"canyons": len(ids),
	})

	doc := &gpx.Document{
		Name: scraper.ListingTitle(listing),
		Link: listingURL,
	}

	converted := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("region conversion interrupted: %w", err)
		}

		data, err := c.collect(ctx, id)
		if err == nil && len(data.waypoints) == 0 {
			err = ErrNoWaypoints
		}
		if err != nil {
			metrics.RegionCanyons.WithLabelValues("skipped").Inc()
			logger.Warn("Skipping canyon", logger.Fields{
				"canyon_id": int(id),
				"error":     err.Error(),
			})
			continue
		}

		converted++
		metrics.RegionCanyons.WithLabelValues("converted").Inc()
		doc.Waypoints = append(doc.Waypoints, data.waypoints...)
	}

	if len(doc.Waypoints) == 0 {
		return nil, fmt.Errorf("listing %s: %w", listingURL, ErrNoWaypoints)
	}

	logger.Info("Region converted", logger.Fields{
		"url":       listingURL,
		"canyons":   converted,
		"skipped":   len(ids) - converted,
		"waypoints": len(doc.Waypoints),
	})

	return &Result{
		Title:     doc.Name,
		Filename:  canyon.ListingFilename(listingURL),
		Waypoints: len(doc.Waypoints),
		GPX:       []byte(gpx.Generate(doc)),
	}, nil
}

// collect fetches both pages of a canyon and turns them into labelled waypoints
func (c *Converter) collect(ctx context.Context, id canyon.ID) (*canyonData, error) {
	sources := canyon.SourcesFor(c.baseURL, id)

	var (
		mapDoc, topoDoc string
		mapOK, topoOK   bool
	)

	// Fetch failures are turned into absent documents, so neither goroutine
	// returns an error.
	var g errgroup.Group
	g.SetLimit(2)
	g.Go(func() error {
		mapDoc, mapOK = c.fetch(ctx, "map", sources.Map)
		return nil
	})
	g.Go(func() error {
		topoDoc, topoOK = c.fetch(ctx, "topo", sources.Topo)
		return nil
	})
	_ = g.Wait()

	if !mapOK {
		return nil, fmt.Errorf("canyon %d: %w", id, ErrSourceUnavailable)
	}

	title := scraper.DefaultTitle
	if topoOK {
		title = scraper.Title(topoDoc)
	} else {
		logger.Warn("Topo page unavailable, using default title", logger.Fields{
			"canyon_id": int(id),
			"url":       sources.Topo,
		})
	}

	waypoints := make([]gpx.Waypoint, 0)
	dropped := 0
	for fragment := range scraper.Fragments(mapDoc) {
		w, ok := waypoint.Normalize(fragment)
		if !ok {
			dropped++
			continue
		}
		label := waypoint.Resolve(w, title)

		rendered := gpx.Waypoint{
			Lat:    w.Lat,
			Lon:    w.Lon,
			Name:   label.Name,
			Symbol: label.Symbol,
			Type:   label.Type,
		}
		if label.Link {
			rendered.Link = sources.Canonical
		}
		waypoints = append(waypoints, rendered)
	}

	if dropped > 0 {
		metrics.FragmentsDropped.Add(float64(dropped))
		logger.Debug("Dropped malformed point fragments", logger.Fields{
			"canyon_id": int(id),
			"dropped":   dropped,
		})
	}

	return &canyonData{
		sources:   sources,
		title:     title,
		waypoints: waypoints,
	}, nil
}

// fetch downloads one page. Errors and blank bodies are logged and reported
// as an absent document.
func (c *Converter) fetch(ctx context.Context, kind, url string) (string, bool) {
	start := time.Now()
	body, err := c.fetcher.Fetch(ctx, url)
	metrics.FetchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.Fetches.WithLabelValues(kind, "failed").Inc()
		logger.Warn("Fetch failed", logger.Fields{
			"document": kind,
			"url":      url,
			"error":    err.Error(),
		})
		return "", false
	}
	if strings.TrimSpace(body) == "" {
		metrics.Fetches.WithLabelValues(kind, "empty").Inc()
		logger.Warn("Fetched empty document", logger.Fields{
			"document": kind,
			"url":      url,
		})
		return "", false
	}

	metrics.Fetches.WithLabelValues(kind, "ok").Inc()
	return body, true
}
