package timeline

import (
	"time"

	"dealtrail/internal/domain"
)

var (
	parties     = []domain.Role{domain.RoleAgent, domain.RoleBuyer, domain.RoleSeller, domain.RoleAdmin, domain.RoleAttorney}
	staff       = []domain.Role{domain.RoleAgent, domain.RoleAdmin, domain.RoleAttorney}
	agentsOnly  = []domain.Role{domain.RoleAgent, domain.RoleAdmin}
	offerParty  = []domain.Role{domain.RoleAgent, domain.RoleBuyer, domain.RoleSeller, domain.RoleAdmin}
	closedLike  = map[string]bool{string(domain.StatusClosed): true, string(domain.StatusCancelled): true}
	dateLayouts = []string{time.RFC3339Nano, time.DateOnly}
)

// DefaultTemplates covers the event types of the default catalog that belong
// on a timeline. Task field edits (assignment, due date, status) are left
// out.
func DefaultTemplates() map[domain.EventType]Template {
	return map[domain.EventType]Template{
		domain.EventOfferSubmitted:           offerSubmitted,
		domain.EventOfferAccepted:            offerAccepted,
		domain.EventOfferRejected:            offerRejected,
		domain.EventSystemTaskCompleted:      taskCompleted,
		domain.EventDocumentUploaded:         documentUploaded,
		domain.EventTransactionStatusChanged: statusChanged,
		domain.EventMessageSent:              messageSent,
		domain.EventTaskCreated:              taskCreated,
		domain.EventTaskAutoCreated:          taskCreated,
		domain.EventTaskCompleted:            taskCompleted,
		domain.EventMilestoneReached:         milestoneReached,
		domain.EventDeadlineCreated:          deadlineCreated,
		domain.EventContactNoteAdded:         contactNote,
		domain.EventContactStageChange:       contactStage,
	}
}

func offerSubmitted(ev domain.Event, viewer domain.Role, f *Formatter) *Rendering {
	r := &Rendering{
		Title:          "Offer submitted",
		Icon:           "file-signature",
		Emphasis:       domain.EmphasisImportant,
		VisibleToRoles: offerParty,
	}
	if viewer == domain.RoleBuyer {
		r.Title = "Your offer was submitted"
	}
	if price, ok := ev.PayloadNumber("offerPrice"); ok {
		r.Description = f.Sprintf("Offer of %s", f.Price(price))
	}
	return r
}

func offerAccepted(ev domain.Event, viewer domain.Role, f *Formatter) *Rendering {
	r := &Rendering{
		Title:          "Offer accepted",
		Icon:           "handshake",
		Emphasis:       domain.EmphasisCritical,
		VisibleToRoles: offerParty,
	}
	switch viewer {
	case domain.RoleBuyer:
		r.Title = "Your offer was accepted"
	case domain.RoleSeller:
		r.Title = "You accepted an offer"
	}
	if price, ok := ev.PayloadNumber("offerPrice"); ok {
		r.Description = f.Sprintf("Accepted at %s", f.Price(price))
	}
	return r
}

func offerRejected(ev domain.Event, viewer domain.Role, _ *Formatter) *Rendering {
	r := &Rendering{
		Title:          "Offer rejected",
		Icon:           "x-circle",
		Emphasis:       domain.EmphasisImportant,
		VisibleToRoles: offerParty,
	}
	if viewer == domain.RoleBuyer {
		r.Title = "Your offer was not accepted"
	}
	r.Description, _ = ev.PayloadString("reason")
	return r
}

func taskCompleted(ev domain.Event, _ domain.Role, _ *Formatter) *Rendering {
	return &Rendering{
		Title:          "Task completed",
		Icon:           "check",
		Emphasis:       domain.EmphasisNormal,
		VisibleToRoles: staff,
	}
}

func taskCreated(ev domain.Event, _ domain.Role, f *Formatter) *Rendering {
	title, ok := ev.PayloadString("title")
	if !ok {
		return nil
	}
	r := &Rendering{
		Title:          "Task created: " + title,
		Icon:           "list-plus",
		Emphasis:       domain.EmphasisNormal,
		VisibleToRoles: staff,
	}
	if reason, ok := ev.PayloadString("reason"); ok {
		r.Description = "Created automatically: " + reason
	}
	if due, ok := payloadDate(ev, "dueDate"); ok {
		if r.Description != "" {
			r.Description += ". "
		}
		r.Description += f.Sprintf("Due %s", due.Format("Jan 2, 2006"))
	}
	if p, _ := ev.PayloadString("priority"); p == string(domain.TaskPriorityHigh) {
		r.Emphasis = domain.EmphasisImportant
	}
	return r
}

func documentUploaded(ev domain.Event, _ domain.Role, _ *Formatter) *Rendering {
	name, ok := ev.PayloadString("documentName")
	if !ok {
		return nil
	}
	return &Rendering{
		Title:          "Document uploaded: " + name,
		Icon:           "file",
		Emphasis:       domain.EmphasisNormal,
		VisibleToRoles: parties,
	}
}

func statusChanged(ev domain.Event, _ domain.Role, _ *Formatter) *Rendering {
	status, ok := ev.PayloadString("newStatus")
	if !ok {
		return nil
	}
	r := &Rendering{
		Title:          "Status changed to " + status,
		Icon:           "flag",
		Emphasis:       domain.EmphasisImportant,
		VisibleToRoles: parties,
	}
	if prev, ok := ev.PayloadString("previousStatus"); ok {
		r.Description = "Previously " + prev
	}
	if closedLike[status] {
		r.Emphasis = domain.EmphasisCritical
	}
	return r
}

// messageSent is visible to staff, the sender's role and the addressed role.
func messageSent(ev domain.Event, viewer domain.Role, _ *Formatter) *Rendering {
	visible := append([]domain.Role(nil), agentsOnly...)
	for _, role := range []domain.Role{ev.ActorRole, domain.Role(stringOr(ev, "recipientRole", ""))} {
		if role != "" && role != domain.RoleSystem && !domain.HasRole(visible, role) {
			visible = append(visible, role)
		}
	}
	title := "New message"
	if viewer == ev.ActorRole {
		title = "Message sent"
	}
	return &Rendering{
		Title:          title,
		Description:    stringOr(ev, "body", ""),
		Icon:           "message",
		Emphasis:       domain.EmphasisNormal,
		VisibleToRoles: visible,
	}
}

func milestoneReached(ev domain.Event, _ domain.Role, _ *Formatter) *Rendering {
	milestone, ok := ev.PayloadString("milestone")
	if !ok {
		return nil
	}
	return &Rendering{
		Title:          "Milestone: " + milestone,
		Description:    stringOr(ev, "description", ""),
		Icon:           "trophy",
		Emphasis:       domain.EmphasisCritical,
		VisibleToRoles: parties,
	}
}

func deadlineCreated(ev domain.Event, _ domain.Role, f *Formatter) *Rendering {
	title, ok := ev.PayloadString("title")
	if !ok {
		return nil
	}
	r := &Rendering{
		Title:          "Deadline: " + title,
		Icon:           "clock",
		Emphasis:       domain.EmphasisImportant,
		VisibleToRoles: parties,
	}
	if due, ok := payloadDate(ev, "dueDate"); ok {
		r.Description = f.Sprintf("Due %s", due.Format("Jan 2, 2006"))
	}
	return r
}

func contactNote(ev domain.Event, _ domain.Role, _ *Formatter) *Rendering {
	return &Rendering{
		Title:          "Note added",
		Description:    stringOr(ev, "note", ""),
		Icon:           "sticky-note",
		VisibleToRoles: agentsOnly,
	}
}

func contactStage(ev domain.Event, _ domain.Role, _ *Formatter) *Rendering {
	stage, ok := ev.PayloadString("stage")
	if !ok {
		return nil
	}
	return &Rendering{
		Title:          "Stage changed to " + stage,
		Icon:           "user",
		VisibleToRoles: agentsOnly,
	}
}

func stringOr(ev domain.Event, key, fallback string) string {
	if v, ok := ev.PayloadString(key); ok {
		return v
	}
	return fallback
}

func payloadDate(ev domain.Event, key string) (time.Time, bool) {
	s, ok := ev.PayloadString(key)
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
