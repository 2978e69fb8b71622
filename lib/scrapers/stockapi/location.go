package stockapi

import (
	"regexp"
	"strings"
)

type shelfLocation struct {
	Aisle       string `json:"aisle"`
	BayNumber   string `json:"bayNumber"`
	ShelfNumber string `json:"shelfNumber"`
}

var sideRe = regexp.MustCompile(`(?i)^([LR])(\d+)$`)

// formatLocation renders one raw shelf location as a human phrase, e.g.
// "Aisle 12, Left bay 3, shelf 2". Bay numbers may carry an L/R side
// prefix which is unfolded into words.
func formatLocation(loc shelfLocation) string {
	aisle := loc.Aisle
	bay := loc.BayNumber
	shelf := loc.ShelfNumber

	side := ""
	if m := sideRe.FindStringSubmatch(bay); m != nil {
		if strings.EqualFold(m[1], "L") {
			side = "Left"
		} else {
			side = "Right"
		}
		bay = m[2]
	}

	var parts []string
	if aisle != "" {
		parts = append(parts, "Aisle "+aisle)
	}
	switch {
	case side != "":
		parts = append(parts, side+" bay "+bay)
	case bay != "":
		parts = append(parts, "Bay "+bay)
	}
	if shelf != "" {
		parts = append(parts, "shelf "+shelf)
	}
	return strings.Join(parts, ", ")
}

func simplifyLocations(locs []shelfLocation) string {
	if len(locs) == 0 {
		return ""
	}
	formatted := make([]string, len(locs))
	for i, l := range locs {
		formatted[i] = formatLocation(l)
	}
	return strings.Join(formatted, "; ")
}
