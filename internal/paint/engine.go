package paint

import (
	"time"
)

// DefaultCooldown is how long a filler must wait before repainting their own region.
const DefaultCooldown = 60 * time.Second

// Engine applies fill commands to template states.
// Per-region rules: an unfilled region is always paintable; a filled region may
// only be repainted by its current filler after the cooldown. Everything else is
// a silent no-op, since late or duplicate chat commands are routine.
type Engine struct {
	cooldown time.Duration
	now      func() time.Time
}

// NewEngine creates an engine with the given refill cooldown (0 means DefaultCooldown).
func NewEngine(cooldown time.Duration) *Engine {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Engine{cooldown: cooldown, now: time.Now}
}

// NewState creates a fresh all-unfilled state for a template.
func (e *Engine) NewState(tpl *Template) *TemplateState {
	return &TemplateState{
		TemplateID: tpl.ID,
		StartedAt:  e.now(),
		Fills:      make(map[int]*RegionFill, len(tpl.Regions)),
	}
}

// Apply executes one paint command for user against the state.
// Returns true when the state changed.
func (e *Engine) Apply(tpl *Template, st *TemplateState, user string, cmd Command) bool {
	region, ok := tpl.Regions[cmd.RegionID]
	if !ok {
		return false
	}
	now := e.now()
	fill := st.Fills[cmd.RegionID]
	if fill != nil && fill.Filled {
		if fill.FilledBy != user || now.Sub(fill.FilledAt) < e.cooldown {
			return false
		}
	}
	color := cmd.Color
	if color == "" {
		color = region.DefaultColor
	}
	st.Fills[cmd.RegionID] = &RegionFill{
		Filled:   true,
		FilledBy: user,
		FilledAt: now,
		Color:    color,
	}
	e.markCompletion(tpl, st, now)
	return true
}

// FillAll unconditionally fills every region with the issuing identity and a
// fresh timestamp, bypassing cooldown. Used for resets and demos.
func (e *Engine) FillAll(tpl *Template, st *TemplateState, user string) {
	now := e.now()
	for id, region := range tpl.Regions {
		color := region.DefaultColor
		if prev := st.Fills[id]; prev != nil && prev.Filled && prev.Color != "" {
			color = prev.Color
		}
		st.Fills[id] = &RegionFill{Filled: true, FilledBy: user, FilledAt: now, Color: color}
	}
	e.markCompletion(tpl, st, now)
}

// markCompletion records the one-way completion transition. The timestamp is
// set the instant all regions become filled and never touched afterwards.
func (e *Engine) markCompletion(tpl *Template, st *TemplateState, now time.Time) {
	if st.CompletedAt == nil && st.Completed(tpl) {
		ts := now
		st.CompletedAt = &ts
	}
}
