// Package location extracts and compares US city/state locations.
package location

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sells-group/placement-monitor/internal/model"
)

// abbrToState maps state abbreviations to lowercase full names.
var abbrToState = map[string]string{
	"AL": "alabama", "AK": "alaska", "AZ": "arizona", "AR": "arkansas",
	"CA": "california", "CO": "colorado", "CT": "connecticut", "DE": "delaware",
	"FL": "florida", "GA": "georgia", "HI": "hawaii", "ID": "idaho",
	"IL": "illinois", "IN": "indiana", "IA": "iowa", "KS": "kansas",
	"KY": "kentucky", "LA": "louisiana", "ME": "maine", "MD": "maryland",
	"MA": "massachusetts", "MI": "michigan", "MN": "minnesota", "MS": "mississippi",
	"MO": "missouri", "MT": "montana", "NE": "nebraska", "NV": "nevada",
	"NH": "new hampshire", "NJ": "new jersey", "NM": "new mexico", "NY": "new york",
	"NC": "north carolina", "ND": "north dakota", "OH": "ohio", "OK": "oklahoma",
	"OR": "oregon", "PA": "pennsylvania", "RI": "rhode island", "SC": "south carolina",
	"SD": "south dakota", "TN": "tennessee", "TX": "texas", "UT": "utah",
	"VT": "vermont", "VA": "virginia", "WA": "washington", "WV": "west virginia",
	"WI": "wisconsin", "WY": "wyoming", "DC": "district of columbia",
}

// maxCityWords bounds a city name. Longer capitalized runs before the state
// are a practice or street name running into the city.
const maxCityWords = 3

var (
	// The city group takes the whole capitalized run on one line; cityFrom
	// trims it to the city.
	cityStateRe = regexp.MustCompile(`\b([A-Z][A-Za-z.'\-]*(?:[ \t]+[A-Z][A-Za-z.'\-]*)*),\s*([A-Z]{2})\b`)
	stateNameRe = func() *regexp.Regexp {
		names := make([]string, 0, len(abbrToState))
		for _, full := range abbrToState {
			names = append(names, regexp.QuoteMeta(full))
		}
		// Longest first so "west virginia" wins over "virginia".
		sort.Slice(names, func(i, j int) bool {
			if len(names[i]) != len(names[j]) {
				return len(names[i]) > len(names[j])
			}
			return names[i] < names[j]
		})
		return regexp.MustCompile(`(?i)\b(` + strings.Join(names, "|") + `)\b`)
	}()
	stateToAbbr = func() map[string]string {
		m := make(map[string]string, len(abbrToState))
		for abbr, full := range abbrToState {
			m[full] = abbr
		}
		return m
	}()
)

// StateCode returns the two-letter code for an abbreviation or full state
// name, or "" when the input is not a US state.
func StateCode(s string) string {
	s = strings.TrimSpace(s)
	if up := strings.ToUpper(s); abbrToState[up] != "" {
		return up
	}
	return stateToAbbr[strings.ToLower(s)]
}

// IsUSState reports whether s names or abbreviates a US state.
func IsUSState(s string) bool { return StateCode(s) != "" }

// Extract finds the last "City, ST" in text, falling back to the last full
// state name mentioned. Later occurrences win because result snippets and
// signatures put the current location last.
func Extract(text string) model.Location {
	var loc model.Location
	for _, m := range cityStateRe.FindAllStringSubmatch(text, -1) {
		if abbrToState[m[2]] == "" {
			continue
		}
		loc = model.Location{City: cityFrom(m[1]), State: m[2]}
	}
	if loc.State != "" {
		return loc
	}

	matches := stateNameRe.FindAllString(text, -1)
	if len(matches) > 0 {
		return model.Location{State: stateToAbbr[strings.ToLower(matches[len(matches)-1])]}
	}
	return model.Location{}
}

// cityFrom trims a capitalized run to the city: the words after the last
// sentence break, or only the final word when the run is too long to be a
// city. Short abbreviations such as "St." do not break a sentence.
func cityFrom(run string) string {
	words := strings.Fields(run)
	for i := len(words) - 2; i >= 0; i-- {
		if w := words[i]; strings.HasSuffix(w, ".") && len(w) > 4 {
			words = words[i+1:]
			break
		}
	}
	if len(words) > maxCityWords {
		words = words[len(words)-1:]
	}
	return strings.Join(words, " ")
}

// Result is the outcome of comparing two locations.
type Result struct {
	Match      bool
	Confidence model.Confidence
	Reason     string
}

// Match compares two locations. Both states must be known and equal; a
// matching or contained city raises the result to high confidence.
func Match(a, b model.Location) Result {
	sa, sb := StateCode(a.State), StateCode(b.State)
	if sa == "" || sb == "" {
		return Result{Reason: "state unknown"}
	}
	if sa != sb {
		return Result{Reason: "different states (" + sa + " vs " + sb + ")"}
	}

	ca, cb := cityKey(a.City), cityKey(b.City)
	if ca != "" && cb != "" && (ca == cb || strings.Contains(ca, cb) || strings.Contains(cb, ca)) {
		return Result{Match: true, Confidence: model.ConfidenceHigh, Reason: "same city (" + a.City + ", " + sa + ")"}
	}
	return Result{Match: true, Confidence: model.ConfidenceLow, Reason: "same state (" + sa + ")"}
}

func cityKey(city string) string {
	city = strings.ToLower(strings.TrimSpace(city))
	city = strings.NewReplacer(".", "", "saint ", "st ").Replace(city)
	return strings.Join(strings.Fields(city), " ")
}
