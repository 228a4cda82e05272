package paint

import (
	"regexp"
	"strconv"
)

// Command is one parsed paint request.
// Color is a normalized "#rrggbb" hex, or "" to use the region default.
type Command struct {
	RegionID int
	Color    string
}

var commandRe = regexp.MustCompile(`^!paint\s+(\d+)(?:\s+(\S+))?\s*$`)

// ParseCommand matches the "!paint <regionId> [color]" chat grammar.
// Unrecognized grammar returns ok=false. An invalid color token is dropped
// (the fill proceeds with the region default), not treated as a parse failure.
func ParseCommand(text string) (Command, bool) {
	m := commandRe.FindStringSubmatch(text)
	if m == nil {
		return Command{}, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return Command{}, false
	}
	return Command{RegionID: id, Color: NormalizeColor(m[2])}, true
}
