package paint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		text string
		ok   bool
		cmd  Command
	}{
		{"plain fill", "!paint 3", true, Command{RegionID: 3}},
		{"named color", "!paint 3 red", true, Command{RegionID: 3, Color: "#ff0000"}},
		{"named color mixed case", "!paint 12 HotPink", true, Command{RegionID: 12, Color: "#ff69b4"}},
		{"hex with hash", "!paint 1 #a1b2c3", true, Command{RegionID: 1, Color: "#a1b2c3"}},
		{"hex without hash", "!paint 1 A1B2C3", true, Command{RegionID: 1, Color: "#a1b2c3"}},
		{"short hex", "!paint 1 f00", true, Command{RegionID: 1, Color: "#ff0000"}},
		{"invalid color dropped", "!paint 4 notacolor", true, Command{RegionID: 4}},
		{"extra whitespace", "!paint   7   blue  ", true, Command{RegionID: 7, Color: "#0000ff"}},
		{"no region id", "!paint", false, Command{}},
		{"non-numeric region", "!paint three", false, Command{}},
		{"different command", "!point 3", false, Command{}},
		{"plain chat", "hello everyone", false, Command{}},
		{"trailing junk", "!paint 3 red please", false, Command{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, ok := ParseCommand(tt.text)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.cmd, cmd)
			}
		})
	}
}

func TestNormalizeColor(t *testing.T) {
	assert.Equal(t, "#ff0000", NormalizeColor("RED"))
	assert.Equal(t, "#808080", NormalizeColor("grey"))
	assert.Equal(t, "#aabbcc", NormalizeColor("#AaBbCc"))
	assert.Equal(t, "#ffaa00", NormalizeColor("fa0"))
	assert.Equal(t, "", NormalizeColor(""))
	assert.Equal(t, "", NormalizeColor("#12345"))
	assert.Equal(t, "", NormalizeColor("redd"))
	assert.Equal(t, "", NormalizeColor("#gggggg"))
}
