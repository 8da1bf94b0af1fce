package device

// QuietHours suppresses delivery inside a daily clock window. Start and End
// use minute-resolution 24-hour "HH:MM" strings in the device's local time.
type QuietHours struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start,omitempty"`
	End     string `json:"end,omitempty"`
}

// Preferences controls which notifications a device accepts.
type Preferences struct {
	Enabled    bool              `json:"enabled"`
	Categories map[Category]bool `json:"categories"`
	Priorities map[Priority]bool `json:"priorities"`
	QuietHours QuietHours        `json:"quiet_hours"`
}

// DefaultPreferences returns the preferences applied to a freshly registered
// device: notifications enabled, every category on except marketing, every
// priority on, quiet hours off.
func DefaultPreferences() Preferences {
	categories := make(map[Category]bool, len(Categories()))
	for _, c := range Categories() {
		categories[c] = c != CategoryMarketing
	}
	priorities := make(map[Priority]bool, len(Priorities()))
	for _, p := range Priorities() {
		priorities[p] = true
	}
	return Preferences{
		Enabled:    true,
		Categories: categories,
		Priorities: priorities,
	}
}

// PreferencesPatch is a partial preferences update. Nil fields are left
// unchanged; category and priority maps are merged key-by-key.
type PreferencesPatch struct {
	Enabled    *bool             `json:"enabled,omitempty"`
	Categories map[Category]bool `json:"categories,omitempty"`
	Priorities map[Priority]bool `json:"priorities,omitempty"`
	QuietHours *QuietHours       `json:"quiet_hours,omitempty"`
}

// merge applies the patch onto p, shallow-merging the maps.
func (p *Preferences) merge(patch PreferencesPatch) {
	if patch.Enabled != nil {
		p.Enabled = *patch.Enabled
	}
	if len(patch.Categories) > 0 {
		if p.Categories == nil {
			p.Categories = make(map[Category]bool, len(patch.Categories))
		}
		for c, v := range patch.Categories {
			p.Categories[c] = v
		}
	}
	if len(patch.Priorities) > 0 {
		if p.Priorities == nil {
			p.Priorities = make(map[Priority]bool, len(patch.Priorities))
		}
		for pr, v := range patch.Priorities {
			p.Priorities[pr] = v
		}
	}
	if patch.QuietHours != nil {
		p.QuietHours = *patch.QuietHours
	}
}

// clone returns a deep copy so storage implementations can hand out
// preferences without sharing map state.
func (p Preferences) clone() Preferences {
	out := p
	if p.Categories != nil {
		out.Categories = make(map[Category]bool, len(p.Categories))
		for c, v := range p.Categories {
			out.Categories[c] = v
		}
	}
	if p.Priorities != nil {
		out.Priorities = make(map[Priority]bool, len(p.Priorities))
		for pr, v := range p.Priorities {
			out.Priorities[pr] = v
		}
	}
	return out
}
