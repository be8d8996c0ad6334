// Package parse extracts placement hints from machine display names.
package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	spaceRe = regexp.MustCompile(`\s+`)
	seqRe   = regexp.MustCompile(`-\s*(\d+)\s*$`)
	floorRe = regexp.MustCompile(`(?i)(?:\bfloor\s*)?(\d+)\s*(?:F|层)?\s*$`)
)

// ParsedName holds the structured data parsed from a machine's display name.
type ParsedName struct {
	Building string
	Floor    int
	Seq      int
}

// ParseName splits names such as "North 3#2-4" or "Annex 2F" into building, floor
// and sequence. floorHint is used when the name itself carries no floor. A name
// without an explicit "-N" suffix has Seq 0.
func ParseName(raw string, floorHint string) (ParsedName, error) {
	// '#' separates building and floor, so keep it as a space to avoid "3#2" becoming "32".
	s := strings.ReplaceAll(strings.TrimSpace(raw), "#", " ")
	s = strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))

	seq := 0
	if loc := seqRe.FindStringSubmatchIndex(s); loc != nil {
		if n, err := strconv.Atoi(s[loc[2]:loc[3]]); err == nil {
			seq = n
			s = strings.TrimSpace(s[:loc[0]])
		}
	}

	floor := 0
	building := s
	if loc := floorRe.FindStringSubmatchIndex(s); loc != nil {
		if n, err := strconv.Atoi(s[loc[2]:loc[3]]); err == nil {
			floor = n
			building = strings.TrimSpace(s[:loc[0]])
		}
	}

	hint := strings.TrimSpace(floorHint)
	if floor == 0 && hint != "" {
		if f, err := strconv.Atoi(hint); err == nil {
			floor = f
			tailRe := regexp.MustCompile(`(?i)\s*` + regexp.QuoteMeta(hint) + `\s*(?:F|层)?\s*$`)
			building = strings.TrimSpace(tailRe.ReplaceAllString(building, ""))
		}
	}

	if floor == 0 {
		return ParsedName{}, fmt.Errorf("unable to parse floor from name: %q", raw)
	}
	return ParsedName{Building: building, Floor: floor, Seq: seq}, nil
}
