// Package derive selects the contextual affordances shown next to a
// transaction: suggested next actions, empty-state copy and the event
// templates a role may start from.
package derive

import (
	"dealtrail/internal/domain"
	"dealtrail/internal/registry"
)

type SuggestedAction struct {
	ID          string           `json:"id"`
	Label       string           `json:"label"`
	Description string           `json:"description,omitempty"`
	EventType   domain.EventType `json:"event_type,omitempty"`
	Phases      []domain.Phase   `json:"-"`
	Roles       []domain.Role    `json:"-"`
}

type EmptyState struct {
	View    string         `json:"view"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	CTA     string         `json:"cta,omitempty"`
	Phases  []domain.Phase `json:"-"`
	Roles   []domain.Role  `json:"-"`
}

// EventTemplate is a starting point for a manually emitted event.
type EventTemplate struct {
	Type         domain.EventType `json:"type"`
	Label        string           `json:"label"`
	Fields       []string         `json:"fields"`
	AllowedRoles []domain.Role    `json:"-"`
}

type Catalog struct {
	Actions     []SuggestedAction
	EmptyStates []EmptyState
	Templates   []EventTemplate
}

// SuggestedActions returns the actions offered to role in phase, in table
// order.
func (c *Catalog) SuggestedActions(phase domain.Phase, role domain.Role) []SuggestedAction {
	res := make([]SuggestedAction, 0)
	for _, a := range c.Actions {
		if domain.HasRole(a.Roles, role) && hasPhase(a.Phases, phase) {
			res = append(res, a)
		}
	}
	return res
}

// EmptyState returns the first entry for view matching phase and role.
func (c *Catalog) EmptyState(view string, phase domain.Phase, role domain.Role) (EmptyState, bool) {
	for _, e := range c.EmptyStates {
		if e.View == view && domain.HasRole(e.Roles, role) && hasPhase(e.Phases, phase) {
			return e, true
		}
	}
	return EmptyState{}, false
}

// EventTemplates returns the templates role may emit.
func (c *Catalog) EventTemplates(role domain.Role) []EventTemplate {
	res := make([]EventTemplate, 0)
	for _, t := range c.Templates {
		if domain.HasRole(t.AllowedRoles, role) {
			res = append(res, t)
		}
	}
	return res
}

// TemplatesFromRegistry offers every non system-only definition of reg as a
// template, with the roles the registry allows.
func TemplatesFromRegistry(reg *registry.Registry) []EventTemplate {
	var res []EventTemplate
	for _, t := range reg.Types() {
		def, _ := reg.Lookup(t)
		if def.SystemOnly {
			continue
		}
		fields := make([]string, 0, len(def.Fields))
		for _, f := range def.Fields {
			fields = append(fields, f.Name)
		}
		label := def.Description
		if label == "" {
			label = string(def.Type)
		}
		res = append(res, EventTemplate{
			Type:         def.Type,
			Label:        label,
			Fields:       fields,
			AllowedRoles: def.AllowedRoles,
		})
	}
	return res
}

func hasPhase(phases []domain.Phase, phase domain.Phase) bool {
	for _, p := range phases {
		if p == phase {
			return true
		}
	}
	return false
}
