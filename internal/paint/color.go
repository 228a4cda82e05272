package paint

import (
	"regexp"
	"strings"
)

// colorNames maps accepted color words to hex values. Lookup is case-insensitive.
var colorNames = map[string]string{
	"red":       "#ff0000",
	"crimson":   "#dc143c",
	"orange":    "#ffa500",
	"gold":      "#ffd700",
	"yellow":    "#ffff00",
	"lime":      "#00ff00",
	"green":     "#008000",
	"teal":      "#008080",
	"cyan":      "#00ffff",
	"aqua":      "#00ffff",
	"blue":      "#0000ff",
	"navy":      "#000080",
	"purple":    "#800080",
	"violet":    "#ee82ee",
	"magenta":   "#ff00ff",
	"pink":      "#ffc0cb",
	"hotpink":   "#ff69b4",
	"brown":     "#a52a2a",
	"chocolate": "#d2691e",
	"tan":       "#d2b48c",
	"white":     "#ffffff",
	"silver":    "#c0c0c0",
	"gray":      "#808080",
	"grey":      "#808080",
	"black":     "#000000",
	"coral":     "#ff7f50",
	"salmon":    "#fa8072",
	"turquoise": "#40e0d0",
	"indigo":    "#4b0082",
	"lavender":  "#e6e6fa",
	"olive":     "#808000",
	"maroon":    "#800000",
}

var hexColorRe = regexp.MustCompile(`^#?([0-9a-f]{6}|[0-9a-f]{3})$`)

// NormalizeColor resolves a color token to a "#rrggbb" hex string.
// Accepts known color names and 3/6-digit hex codes with or without a leading '#',
// case-insensitive. Returns "" for anything else.
func NormalizeColor(token string) string {
	t := strings.ToLower(strings.TrimSpace(token))
	if t == "" {
		return ""
	}
	if hex, ok := colorNames[t]; ok {
		return hex
	}
	m := hexColorRe.FindStringSubmatch(t)
	if m == nil {
		return ""
	}
	h := m[1]
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	return "#" + h
}
