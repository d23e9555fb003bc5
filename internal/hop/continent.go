package hop

import "strings"

// Continent is one of the disjoint layer pools. Two clients in different
// pools can never share a layer, so a cross-continent invite is useless.
type Continent int

const (
	ContinentUnknown Continent = iota
	ContinentAzeroth
	ContinentOutland
)

func (c Continent) String() string {
	switch c {
	case ContinentAzeroth:
		return "azeroth"
	case ContinentOutland:
		return "outland"
	}
	return "unknown"
}

// ContinentFromName parses a continent tag from free text tokens.
// Unrecognized names map to ContinentUnknown.
func ContinentFromName(name string) Continent {
	switch strings.ToLower(name) {
	case "azeroth":
		return ContinentAzeroth
	case "outland":
		return ContinentOutland
	}
	return ContinentUnknown
}

// outlandZones lists the zone ids whose layer pool is Outland. Everything
// else shares the Azeroth pool. Static world geography; never changes at
// runtime.
var outlandZones = map[int]bool{
	3483: true, // Hellfire Peninsula
	3518: true, // Nagrand
	3519: true, // Terokkar Forest
	3520: true, // Shadowmoon Valley
	3521: true, // Zangarmarsh
	3522: true, // Blade's Edge Mountains
	3523: true, // Netherstorm
	3703: true, // Shattrath City
	3562: true, // Hellfire Ramparts
	3713: true, // The Blood Furnace
	3714: true, // The Shattered Halls
}

// ClassifyZone maps a zone id to its layer pool. Total and pure: unknown
// zone ids fall into the Azeroth pool rather than erroring, since the
// Azeroth pool is the catch-all for the old world.
func ClassifyZone(zoneID int) Continent {
	if outlandZones[zoneID] {
		return ContinentOutland
	}
	return ContinentAzeroth
}
