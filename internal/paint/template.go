package paint

import (
	"sort"
	"strings"
)

// Template is a fixed set of regions that chat fills in collaboratively.
type Template struct {
	ID      string
	Name    string
	Regions map[int]*Region
}

// RegionIDs returns the template's region ids in ascending order.
func (t *Template) RegionIDs() []int {
	ids := make([]int, 0, len(t.Regions))
	for id := range t.Regions {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// parseLayout builds regions from a rows-of-digits picture. Each digit 1-9 (and
// letters a-z continuing from 10) marks a cell of that region; '.' is empty space.
func parseLayout(rows []string, defaults map[int]string) map[int]*Region {
	regions := make(map[int]*Region)
	for y, row := range rows {
		for x, r := range row {
			var id int
			switch {
			case r >= '1' && r <= '9':
				id = int(r - '0')
			case r >= 'a' && r <= 'z':
				id = int(r-'a') + 10
			default:
				continue
			}
			reg := regions[id]
			if reg == nil {
				color := defaults[id]
				if color == "" {
					color = "#cccccc"
				}
				reg = &Region{ID: id, DefaultColor: color}
				regions[id] = reg
			}
			reg.Pixels = append(reg.Pixels, Pixel{X: x, Y: y})
		}
	}
	return regions
}

// Templates is the built-in template registry.
var Templates = map[string]*Template{
	"heart": {
		ID:   "heart",
		Name: "Heart",
		Regions: parseLayout([]string{
			".11..22.",
			"13344522",
			"63444556",
			".744445.",
			"..788...",
			"...9....",
		}, map[int]string{
			1: "#e84057", 2: "#e84057", 3: "#f06272", 4: "#c22b41",
			5: "#f06272", 6: "#a31f33", 7: "#c22b41", 8: "#a31f33", 9: "#7d1426",
		}),
	},
	"star": {
		ID:   "star",
		Name: "Star",
		Regions: parseLayout([]string{
			"...11...",
			"..2132..",
			"44333344",
			".533335.",
			".663366.",
			".7....7.",
		}, map[int]string{
			1: "#ffd447", 2: "#f2b705", 3: "#ffe38a", 4: "#f2b705",
			5: "#d99a05", 6: "#ffd447", 7: "#b37d04",
		}),
	},
}

// LookupTemplate resolves a template id case-insensitively.
func LookupTemplate(id string) (*Template, bool) {
	t, ok := Templates[strings.ToLower(id)]
	return t, ok
}
