package converter

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pfrederiksen/canyon-gpx/internal/canyon"
	"github.com/pfrederiksen/canyon-gpx/internal/logger"
	"github.com/pfrederiksen/canyon-gpx/internal/metrics"
	"github.com/pfrederiksen/canyon-gpx/internal/scraper"
)

func init() {
	logger.SetDefault(logger.New(logger.LevelError, &bytes.Buffer{}))
}

func mapPage(points ...string) string {
	var b strings.Builder
	b.WriteString("<html><head><script>\nfunction initialize() {\n")
	for _, p := range points {
		fmt.Fprintf(&b, "\tvar point = {%s};addMarker(point);\n", p)
	}
	b.WriteString("}\n</script></head><body></body></html>")
	return b.String()
}

func topoPage(title string) string {
	return `<html><body><h2>Menu</h2><h1 class="nom">` + title + `</h1></body></html>`
}

// fakeFetcher serves pages from a map keyed by URL; missing URLs fail.
type fakeFetcher struct {
	mu     sync.Mutex
	pages  map[string]string
	errs   map[string]error
	called []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called = append(f.called, url)
	if err, ok := f.errs[url]; ok {
		return "", err
	}
	page, ok := f.pages[url]
	if !ok {
		return "", fmt.Errorf("unexpected status code: %d", http.StatusNotFound)
	}
	return page, nil
}

type gpxFile struct {
	Metadata struct {
		Name string `xml:"name"`
		Link struct {
			Href string `xml:"href,attr"`
		} `xml:"link"`
	} `xml:"metadata"`
	Waypoints []struct {
		Lat  string `xml:"lat,attr"`
		Lon  string `xml:"lon,attr"`
		Name string `xml:"name"`
		Sym  string `xml:"sym"`
		Type string `xml:"type"`
	} `xml:"wpt"`
}

func parseGPX(t *testing.T, data []byte) gpxFile {
	t.Helper()
	var f gpxFile
	if err := xml.Unmarshal(data, &f); err != nil {
		t.Fatalf("invalid GPX: %v\n%s", err, data)
	}
	return f
}

func waypointNames(f gpxFile) []string {
	names := make([]string, 0, len(f.Waypoints))
	for _, w := range f.Waypoints {
		names = append(names, w.Name)
	}
	return names
}

func TestConvert(t *testing.T) {
	sources := canyon.SourcesFor(canyon.BaseURL, 2669)
	f := &fakeFetcher{pages: map[string]string{
		sources.Map: mapPage(
			`position: new google.maps.LatLng(46.2,8.95), type:'parking_amont', remarque:'gravel',auteur:'x'`,
			`position: new google.maps.LatLng(46.1,8.9), type:'depart'`,
			`position: new google.maps.LatLng(46.0), type:'broken'`,
			`position: new google.maps.LatLng(46.05,8.85), type:'arrivee', remarque:'pont <D&R>'`,
			`position: new google.maps.LatLng(46.06,8.86), type:'echappatoire'`,
		),
		sources.Topo: topoPage("Gorges Test"),
	}}

	result, err := New(f).Convert(context.Background(), Request{URL: "https://www.descente-canyon.com/canyoning/canyon-carte/2669/carte.html"})
	if err != nil {
		t.Fatalf("Convert() error: %v", err)
	}

	if result.ID != 2669 || result.Filename != "canyon-2669.gpx" || result.Title != "Gorges Test" {
		t.Errorf("result = %+v", result)
	}
	if result.Waypoints != 4 {
		t.Errorf("Waypoints = %d, want 4", result.Waypoints)
	}

	doc := parseGPX(t, result.GPX)
	if doc.Metadata.Name != "Gorges Test" {
		t.Errorf("metadata name = %q", doc.Metadata.Name)
	}
	if doc.Metadata.Link.Href != sources.Canonical {
		t.Errorf("metadata link = %q, want canonical %q", doc.Metadata.Link.Href, sources.Canonical)
	}

	want := []string{
		"Parking amont (gravel)",
		"Départ Gorges Test",
		"Arrivée Gorges Test (pont <D&R>)",
		"echappatoire",
	}
	if diff := cmp.Diff(want, waypointNames(doc)); diff != "" {
		t.Errorf("waypoint names mismatch (-want +got):\n%s", diff)
	}
	if doc.Waypoints[0].Sym != "parking" || doc.Waypoints[3].Sym != "circle" {
		t.Errorf("symbols = %q, %q", doc.Waypoints[0].Sym, doc.Waypoints[3].Sym)
	}
	if doc.Waypoints[1].Lat != "46.1" || doc.Waypoints[1].Lon != "8.9" {
		t.Errorf("start coordinates = %s,%s", doc.Waypoints[1].Lat, doc.Waypoints[1].Lon)
	}
	if !bytes.Contains(result.GPX, []byte("pont &lt;D&amp;R&gt;")) {
		t.Error("note was not escaped in output")
	}
}

func TestConvert_NoteWithScriptSyntax(t *testing.T) {
	sources := canyon.SourcesFor(canyon.BaseURL, 12)
	f := &fakeFetcher{pages: map[string]string{
		sources.Map: mapPage(
			`position: new google.maps.LatLng(46.1, 8.9), type:'parking', remarque:'a};b', auteur:'x'`,
			`position: new google.maps.LatLng(46.2, 8.8), type:'depart', remarque:'\x41\u00e9 \ud83d\ude00'`,
		),
		sources.Topo: topoPage("Test"),
	}}

	result, err := New(f).Convert(context.Background(), Request{ID: "12"})
	if err != nil {
		t.Fatalf("Convert() error: %v", err)
	}

	want := []string{"Parking (a};b)", "Départ Test (Aé 😀)"}
	if diff := cmp.Diff(want, waypointNames(parseGPX(t, result.GPX))); diff != "" {
		t.Errorf("waypoint names mismatch (-want +got):\n%s", diff)
	}
}

func TestConvert_InvalidInput(t *testing.T) {
	f := &fakeFetcher{}
	c := New(f)

	for _, req := range []Request{{}, {ID: "abc"}, {ID: "-3"}, {URL: "https://www.descente-canyon.com/"}} {
		_, err := c.Convert(context.Background(), req)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Convert(%+v) error = %v, want ErrInvalidInput", req, err)
		}
		if !errors.Is(err, canyon.ErrInvalidID) {
			t.Errorf("Convert(%+v) error = %v, should wrap canyon.ErrInvalidID", req, err)
		}
	}
	if len(f.called) != 0 {
		t.Errorf("invalid input triggered fetches: %v", f.called)
	}
}

func TestConvert_MapUnavailable(t *testing.T) {
	sources := canyon.SourcesFor(canyon.BaseURL, 7)

	tests := []struct {
		name string
		f    *fakeFetcher
	}{
		{
			name: "map fetch error with topo ok",
			f: &fakeFetcher{
				pages: map[string]string{sources.Topo: topoPage("Ignored")},
				errs:  map[string]error{sources.Map: context.DeadlineExceeded},
			},
		},
		{
			name: "empty map body",
			f: &fakeFetcher{pages: map[string]string{
				sources.Map:  "  \n ",
				sources.Topo: topoPage("Ignored"),
			}},
		},
		{
			name: "both missing",
			f:    &fakeFetcher{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.f).Convert(context.Background(), Request{ID: "7"})
			if !errors.Is(err, ErrSourceUnavailable) {
				t.Fatalf("Convert() error = %v, want ErrSourceUnavailable", err)
			}
			if len(tt.f.called) != 2 {
				t.Errorf("expected both pages to be requested, got %v", tt.f.called)
			}
		})
	}
}

func TestConvert_TopoUnavailable(t *testing.T) {
	sources := canyon.SourcesFor(canyon.BaseURL, 8)
	f := &fakeFetcher{
		pages: map[string]string{
			sources.Map: mapPage(`LatLng(46.1,8.9), type:'depart'`),
		},
		errs: map[string]error{sources.Topo: errors.New("connection reset")},
	}

	result, err := New(f).Convert(context.Background(), Request{ID: "8"})
	if err != nil {
		t.Fatalf("Convert() error: %v", err)
	}
	if result.Title != scraper.DefaultTitle {
		t.Errorf("Title = %q, want %q", result.Title, scraper.DefaultTitle)
	}
	doc := parseGPX(t, result.GPX)
	if got := waypointNames(doc); len(got) != 1 || got[0] != "Départ Canyon" {
		t.Errorf("waypoint names = %v", got)
	}
}

func TestConvert_NoWaypoints(t *testing.T) {
	sources := canyon.SourcesFor(canyon.BaseURL, 9)
	f := &fakeFetcher{pages: map[string]string{
		sources.Map:  "<html><body>carte indisponible</body></html>",
		sources.Topo: topoPage("Vide"),
	}}

	_, err := New(f).Convert(context.Background(), Request{ID: "9"})
	if !errors.Is(err, ErrNoWaypoints) {
		t.Fatalf("Convert() error = %v, want ErrNoWaypoints", err)
	}
}

func TestConvert_Metrics(t *testing.T) {
	sources := canyon.SourcesFor(canyon.BaseURL, 10)
	f := &fakeFetcher{pages: map[string]string{
		sources.Map: mapPage(
			`LatLng(46.1,8.9), type:'depart'`,
			`LatLng(46.2), type:'broken'`,
		),
	}}

	okBefore := testutil.ToFloat64(metrics.Conversions.WithLabelValues("canyon", "ok"))
	invalidBefore := testutil.ToFloat64(metrics.Conversions.WithLabelValues("canyon", "invalid_input"))
	mapOKBefore := testutil.ToFloat64(metrics.Fetches.WithLabelValues("map", "ok"))
	topoFailedBefore := testutil.ToFloat64(metrics.Fetches.WithLabelValues("topo", "failed"))
	droppedBefore := testutil.ToFloat64(metrics.FragmentsDropped)
	waypointsBefore := testutil.ToFloat64(metrics.WaypointsEmitted.WithLabelValues("canyon"))

	c := New(f)
	if _, err := c.Convert(context.Background(), Request{ID: "10"}); err != nil {
		t.Fatalf("Convert() error: %v", err)
	}
	if _, err := c.Convert(context.Background(), Request{ID: "x"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Convert() error = %v, want ErrInvalidInput", err)
	}

	checks := []struct {
		name   string
		before float64
		got    float64
		delta  float64
	}{
		{"conversions ok", okBefore, testutil.ToFloat64(metrics.Conversions.WithLabelValues("canyon", "ok")), 1},
		{"conversions invalid", invalidBefore, testutil.ToFloat64(metrics.Conversions.WithLabelValues("canyon", "invalid_input")), 1},
		{"map fetched", mapOKBefore, testutil.ToFloat64(metrics.Fetches.WithLabelValues("map", "ok")), 1},
		{"topo failed", topoFailedBefore, testutil.ToFloat64(metrics.Fetches.WithLabelValues("topo", "failed")), 1},
		{"fragments dropped", droppedBefore, testutil.ToFloat64(metrics.FragmentsDropped), 1},
		{"waypoints emitted", waypointsBefore, testutil.ToFloat64(metrics.WaypointsEmitted.WithLabelValues("canyon")), 1},
	}
	for _, tt := range checks {
		if tt.got != tt.before+tt.delta {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.before+tt.delta)
		}
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{fmt.Errorf("%w: x", ErrInvalidInput), "invalid_input"},
		{fmt.Errorf("canyon 1: %w", ErrSourceUnavailable), "source_unavailable"},
		{fmt.Errorf("canyon 1: %w", ErrNoWaypoints), "no_waypoints"},
		{fmt.Errorf("region conversion interrupted: %w", context.DeadlineExceeded), "cancelled"},
		{errors.New("boom"), "error"},
	}

	for _, tt := range tests {
		if got := Outcome(tt.err); got != tt.want {
			t.Errorf("Outcome(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestConvert_HTTPSite(t *testing.T) {
	var mu sync.Mutex
	requested := make(map[string]bool)

	mux := http.NewServeMux()
	mux.HandleFunc("/canyon-carte/2669/carte.html", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requested[r.URL.Path] = true
		mu.Unlock()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(mapPage(`position: new google.maps.LatLng(46.1,8.9), type:'depart'`)))
	})
	mux.HandleFunc("/canyon-description/2669/topo.html", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requested[r.URL.Path] = true
		mu.Unlock()
		w.Write([]byte(topoPage("Gorges   <em>Test</em>")))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := New(scraper.New())
	c.baseURL = server.URL

	result, err := c.Convert(context.Background(), Request{ID: "2669"})
	if err != nil {
		t.Fatalf("Convert() error: %v", err)
	}

	doc := parseGPX(t, result.GPX)
	if got := waypointNames(doc); len(got) != 1 || got[0] != "Départ Gorges Test" {
		t.Errorf("waypoint names = %v", got)
	}
	if doc.Metadata.Link.Href != server.URL+"/canyon/2669/" {
		t.Errorf("metadata link = %q", doc.Metadata.Link.Href)
	}
	if len(requested) != 2 {
		t.Errorf("requested pages = %v, want map and topo", requested)
	}
}

func TestConvertRegion(t *testing.T) {
	const listingURL = "https://www.descente-canyon.com/canyoning/lieu/01025/Haute-Savoie.html"
	good := canyon.SourcesFor(canyon.BaseURL, 11)
	empty := canyon.SourcesFor(canyon.BaseURL, 12)
	other := canyon.SourcesFor(canyon.BaseURL, 14)

	listing := `<html><body><h1>Haute-Savoie</h1><script>
		var rows = [
			{"nom":"<a href='/canyoning/canyon/11/'>A</a>"},
			{"nom":"<a href='/canyoning/canyon/12/'>B</a>"},
			{"nom":"<a href='/canyoning/canyon/13/'>C</a>"},
			{"nom":"<a href='/canyoning/canyon/14/'>D</a>"},
			{"nom":"<a href='/canyoning/canyon/11/'>A again</a>"}
		], searchNom = '';
	</script></body></html>`

	f := &fakeFetcher{pages: map[string]string{
		listingURL: listing,
		good.Map: mapPage(
			`LatLng(46.1,6.1), type:'depart'`,
			`LatLng(46.0,6.0), type:'arrivee'`,
		),
		good.Topo:  topoPage("Canyon A"),
		empty.Map:  mapPage(),
		empty.Topo: topoPage("Canyon B"),
		// 13 is missing entirely
		other.Map: mapPage(`LatLng(45.9,6.3), type:'parking'`),
	}}

	result, err := New(f).ConvertRegion(context.Background(), listingURL)
	if err != nil {
		t.Fatalf("ConvertRegion() error: %v", err)
	}

	if result.Filename != "canyons-haute-savoie.gpx" {
		t.Errorf("Filename = %q", result.Filename)
	}
	if result.ID != 0 {
		t.Errorf("ID = %d, want 0 for region files", result.ID)
	}

	doc := parseGPX(t, result.GPX)
	if doc.Metadata.Name != "Haute-Savoie" || doc.Metadata.Link.Href != listingURL {
		t.Errorf("metadata = %+v", doc.Metadata)
	}

	want := []string{"Départ Canyon A", "Arrivée Canyon A", "Parking"}
	if diff := cmp.Diff(want, waypointNames(doc)); diff != "" {
		t.Errorf("waypoint names mismatch (-want +got):\n%s", diff)
	}
}

func TestConvertRegion_ListingUnavailable(t *testing.T) {
	_, err := New(&fakeFetcher{}).ConvertRegion(context.Background(), "https://example.com/lieu/1/X.html")
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("ConvertRegion() error = %v, want ErrSourceUnavailable", err)
	}
}

func TestConvertRegion_NothingConverted(t *testing.T) {
	const listingURL = "https://example.com/lieu/1/X.html"
	f := &fakeFetcher{pages: map[string]string{
		listingURL: `var rows = [{"u":"/canyon/5/"}], searchNom = '';`,
	}}

	_, err := New(f).ConvertRegion(context.Background(), listingURL)
	if !errors.Is(err, ErrNoWaypoints) {
		t.Fatalf("ConvertRegion() error = %v, want ErrNoWaypoints", err)
	}
}

func TestConvertRegion_DefaultListing(t *testing.T) {
	f := &fakeFetcher{}
	_, _ = New(f).ConvertRegion(context.Background(), "")

	if len(f.called) == 0 || f.called[0] != canyon.DefaultListingURL {
		t.Errorf("first fetch = %v, want default listing", f.called)
	}
}

func TestConvertRegion_Cancelled(t *testing.T) {
	const listingURL = "https://example.com/lieu/1/X.html"
	f := &fakeFetcher{pages: map[string]string{
		listingURL: `var rows = [{"u":"/canyon/5/"}], searchNom = '';`,
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(f).ConvertRegion(ctx, listingURL)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ConvertRegion() error = %v, want context.Canceled", err)
	}
}
