package hop

import (
	"regexp"
	"strconv"
)

// ParseResult is the outcome of scanning a peer message or invite payload.
// Both fields are optional: unparseable text yields the zero value, never an
// error.
type ParseResult struct {
	Layer     *int
	Continent Continent
}

var (
	layerPattern     = regexp.MustCompile(`(?i)\blayer\s*#?\s*(\d{1,3})\b`)
	continentPattern = regexp.MustCompile(`(?i)\b(azeroth|outland)\b`)
)

// ParseMessage extracts an explicit target layer number and an optional
// continent tag from free text, e.g. "heading to layer 3" or
// "inviting from Outland, layer 5". Malformed or unrelated text is treated
// as carrying no information.
func ParseMessage(text string) ParseResult {
	var res ParseResult
	if m := layerPattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			res.Layer = &n
		}
	}
	if m := continentPattern.FindStringSubmatch(text); m != nil {
		res.Continent = ContinentFromName(m[1])
	}
	return res
}
