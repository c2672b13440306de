package waypoint

import "strings"

// Label is the rendered identity of a waypoint in the GPX output
type Label struct {
	Name   string
	Symbol string
	Type   string
	// Link marks waypoints that should point back at the canyon page.
	Link bool
}

const DefaultSymbol = "circle"

type labelRule struct {
	name      string
	withTitle bool
	symbol    string
	gpxType   string
	link      bool
}

// labels is keyed on the exact, case-sensitive category value.
var labels = map[string]labelRule{
	"parking_amont": {name: "Parking amont", symbol: "parking", gpxType: "parking"},
	"parking_aval":  {name: "Parking aval", symbol: "parking", gpxType: "parking"},
	"parking":       {name: "Parking", symbol: "parking", gpxType: "parking"},
	"depart":        {name: "Départ", withTitle: true, symbol: "place", gpxType: "place", link: true},
	"arrivee":       {name: "Arrivée", withTitle: true, symbol: "warningflag", gpxType: "warningflag"},
}

// Resolve maps a waypoint to its display name, symbol and GPX type. Start and
// end points carry the canyon title; unknown categories render generically.
func Resolve(w Waypoint, title string) Label {
	rule, ok := labels[w.Category]
	if !ok {
		return Label{
			Name:   w.Category + noteSuffix(w),
			Symbol: DefaultSymbol,
			Type:   w.Category,
		}
	}

	name := rule.name
	if rule.withTitle {
		name += " " + title
	}
	return Label{
		Name:   name + noteSuffix(w),
		Symbol: rule.symbol,
		Type:   rule.gpxType,
		Link:   rule.link,
	}
}

func noteSuffix(w Waypoint) string {
	if !w.HasNote || strings.TrimSpace(w.Note) == "" {
		return ""
	}
	return " (" + w.Note + ")"
}
