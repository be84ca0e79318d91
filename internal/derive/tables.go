package derive

import (
	"dealtrail/internal/domain"
	"dealtrail/internal/registry"
)

var (
	allPhases    = []domain.Phase{domain.PhasePreContract, domain.PhaseUnderContract, domain.PhaseClosing, domain.PhaseClosed}
	openPhases   = []domain.Phase{domain.PhasePreContract, domain.PhaseUnderContract, domain.PhaseClosing}
	staffRoles   = []domain.Role{domain.RoleAgent, domain.RoleAdmin}
	partyRoles   = []domain.Role{domain.RoleAgent, domain.RoleBuyer, domain.RoleSeller, domain.RoleAdmin, domain.RoleAttorney}
	clientRoles  = []domain.Role{domain.RoleBuyer, domain.RoleSeller}
	closingRoles = []domain.Role{domain.RoleAgent, domain.RoleAdmin, domain.RoleAttorney}
)

// DefaultCatalog builds the stock tables; event templates come from reg.
func DefaultCatalog(reg *registry.Registry) *Catalog {
	return &Catalog{
		Actions:     defaultActions(),
		EmptyStates: defaultEmptyStates(),
		Templates:   TemplatesFromRegistry(reg),
	}
}

func defaultActions() []SuggestedAction {
	return []SuggestedAction{
		{
			ID:        "submit-offer",
			Label:     "Submit an offer",
			EventType: domain.EventOfferSubmitted,
			Phases:    []domain.Phase{domain.PhasePreContract},
			Roles:     []domain.Role{domain.RoleAgent, domain.RoleBuyer},
		},
		{
			ID:        "respond-to-offer",
			Label:     "Respond to the offer",
			EventType: domain.EventOfferAccepted,
			Phases:    []domain.Phase{domain.PhasePreContract},
			Roles:     []domain.Role{domain.RoleAgent, domain.RoleSeller},
		},
		{
			ID:          "move-under-contract",
			Label:       "Mark as under contract",
			Description: "Schedules the home inspection automatically.",
			EventType:   domain.EventTransactionStatusChanged,
			Phases:      []domain.Phase{domain.PhasePreContract},
			Roles:       staffRoles,
		},
		{
			ID:        "upload-inspection",
			Label:     "Upload the inspection report",
			EventType: domain.EventDocumentUploaded,
			Phases:    []domain.Phase{domain.PhaseUnderContract},
			Roles:     []domain.Role{domain.RoleAgent, domain.RoleBuyer, domain.RoleAttorney},
		},
		{
			ID:        "add-deadline",
			Label:     "Add a contract deadline",
			EventType: domain.EventDeadlineCreated,
			Phases:    []domain.Phase{domain.PhaseUnderContract, domain.PhaseClosing},
			Roles:     closingRoles,
		},
		{
			ID:        "add-task",
			Label:     "Add a task",
			EventType: domain.EventTaskCreated,
			Phases:    openPhases,
			Roles:     closingRoles,
		},
		{
			ID:          "clear-to-close",
			Label:       "Mark clear to close",
			Description: "Creates the final walkthrough and wire verification tasks.",
			EventType:   domain.EventTransactionStatusChanged,
			Phases:      []domain.Phase{domain.PhaseUnderContract},
			Roles:       staffRoles,
		},
		{
			ID:        "confirm-walkthrough",
			Label:     "Confirm the final walkthrough",
			EventType: domain.EventMessageSent,
			Phases:    []domain.Phase{domain.PhaseClosing},
			Roles:     clientRoles,
		},
		{
			ID:        "message-parties",
			Label:     "Message the other parties",
			EventType: domain.EventMessageSent,
			Phases:    allPhases,
			Roles:     partyRoles,
		},
	}
}

func defaultEmptyStates() []EmptyState {
	return []EmptyState{
		{
			View:    "tasks",
			Title:   "No tasks yet",
			Message: "Tasks appear here once an offer is accepted.",
			Phases:  []domain.Phase{domain.PhasePreContract},
			Roles:   partyRoles,
		},
		{
			View:    "tasks",
			Title:   "Nothing to do",
			Message: "Add a task to keep the transaction moving.",
			CTA:     "Add task",
			Phases:  openPhases,
			Roles:   closingRoles,
		},
		{
			View:    "tasks",
			Title:   "You're all caught up",
			Message: "Your agent will let you know when something needs your attention.",
			Phases:  openPhases,
			Roles:   clientRoles,
		},
		{
			View:    "tasks",
			Title:   "Transaction closed",
			Message: "There is no more work on this transaction.",
			Phases:  []domain.Phase{domain.PhaseClosed},
			Roles:   partyRoles,
		},
		{
			View:    "timeline",
			Title:   "No activity yet",
			Message: "Offers, documents and milestones will show up here.",
			Phases:  allPhases,
			Roles:   partyRoles,
		},
		{
			View:    "documents",
			Title:   "No documents",
			Message: "Upload disclosures and reports to share them with everyone on the deal.",
			CTA:     "Upload document",
			Phases:  openPhases,
			Roles:   partyRoles,
		},
		{
			View:    "messages",
			Title:   "No messages",
			Message: "Start the conversation with the other parties.",
			CTA:     "Send message",
			Phases:  allPhases,
			Roles:   partyRoles,
		},
	}
}
