// Package timeline renders events into role-filtered timeline entries.
package timeline

import (
	"sort"

	"dealtrail/internal/domain"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var DefaultLanguage = language.AmericanEnglish

// Rendering is what a template produces for one event and one viewer.
type Rendering struct {
	Title          string
	Description    string
	Icon           string
	Emphasis       domain.Emphasis
	VisibleToRoles []domain.Role
}

// Template renders ev for viewer, or returns nil to suppress it.
type Template func(ev domain.Event, viewer domain.Role, f *Formatter) *Rendering

type Projector struct {
	templates map[domain.EventType]Template
	formatter *Formatter
}

type Option func(*Projector)

// WithLanguage sets the locale used for amounts and dates.
func WithLanguage(tag language.Tag) Option {
	return func(p *Projector) {
		p.formatter = NewFormatter(tag)
	}
}

func NewProjector(templates map[domain.EventType]Template, opts ...Option) *Projector {
	p := &Projector{
		templates: templates,
		formatter: NewFormatter(DefaultLanguage),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Project renders the events visible to viewer, ascending by occurrence.
// Events without a template are skipped.
func (p *Projector) Project(events []domain.Event, viewer domain.Role) []domain.TimelineItem {
	items := make([]domain.TimelineItem, 0, len(events))
	for _, ev := range events {
		r := p.render(ev, viewer)
		if r == nil {
			continue
		}
		emphasis := r.Emphasis
		if emphasis == "" {
			emphasis = domain.EmphasisNormal
		}
		items = append(items, domain.TimelineItem{
			EventID:        ev.ID,
			TransactionID:  ev.TransactionID,
			ContactID:      ev.ContactID,
			OccurredAt:     ev.CreatedAt,
			Title:          r.Title,
			Description:    r.Description,
			Icon:           r.Icon,
			Emphasis:       emphasis,
			VisibleToRoles: append([]domain.Role(nil), r.VisibleToRoles...),
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].OccurredAt.Before(items[j].OccurredAt)
	})
	return items
}

// Visible reports whether viewer would see ev on its timeline.
func (p *Projector) Visible(ev domain.Event, viewer domain.Role) bool {
	return p.render(ev, viewer) != nil
}

func (p *Projector) render(ev domain.Event, viewer domain.Role) *Rendering {
	tmpl, ok := p.templates[ev.Type]
	if !ok {
		return nil
	}
	r := tmpl(ev, viewer, p.formatter)
	if r == nil || !domain.HasRole(r.VisibleToRoles, viewer) {
		return nil
	}
	return r
}

// Formatter localises the amounts and dates quoted in timeline copy.
type Formatter struct {
	printer *message.Printer
}

func NewFormatter(tag language.Tag) *Formatter {
	return &Formatter{printer: message.NewPrinter(tag)}
}

// Price renders a dollar amount with digit grouping, cents only when present.
func (f *Formatter) Price(amount float64) string {
	if amount == float64(int64(amount)) {
		return f.printer.Sprintf("$%d", int64(amount))
	}
	return f.printer.Sprintf("$%.2f", amount)
}

func (f *Formatter) Sprintf(format string, args ...any) string {
	return f.printer.Sprintf(format, args...)
}
