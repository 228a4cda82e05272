// Package paint implements the collaborative region-fill engine driven by chat commands.
package paint

import (
	"time"
)

// Pixel is one cell of a region shape. Coordinates are grid positions, not screen pixels.
type Pixel struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Region is a fixed shape within a template. Shape and default color never change.
type Region struct {
	ID           int     `json:"id"`
	Pixels       []Pixel `json:"pixels"`
	DefaultColor string  `json:"defaultColor"`
}

// RegionFill is the mutable fill data for one region.
// Filled implies FilledBy and FilledAt are set.
type RegionFill struct {
	Filled   bool      `json:"filled"`
	FilledBy string    `json:"filledBy,omitempty"`
	FilledAt time.Time `json:"filledAt,omitempty"`
	Color    string    `json:"color,omitempty"`
}

// TemplateState is the per-session fill state for one template.
type TemplateState struct {
	TemplateID  string              `json:"templateId"`
	StartedAt   time.Time           `json:"startedAt"`
	CompletedAt *time.Time          `json:"completedAt,omitempty"`
	Fills       map[int]*RegionFill `json:"fills"`
}

// Clone returns a deep copy detached from the live state, safe to serialize
// while the original keeps mutating under the manager lock.
func (s *TemplateState) Clone() *TemplateState {
	out := &TemplateState{
		TemplateID: s.TemplateID,
		StartedAt:  s.StartedAt,
		Fills:      make(map[int]*RegionFill, len(s.Fills)),
	}
	if s.CompletedAt != nil {
		ts := *s.CompletedAt
		out.CompletedAt = &ts
	}
	for id, f := range s.Fills {
		fc := *f
		out.Fills[id] = &fc
	}
	return out
}

// Completed reports whether every region of the template is filled.
func (s *TemplateState) Completed(tpl *Template) bool {
	for id := range tpl.Regions {
		f := s.Fills[id]
		if f == nil || !f.Filled {
			return false
		}
	}
	return true
}
