package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Contact is one address-book entry of a connected session, as the
// transport's device store knows it.
type Contact struct {
	JID          string
	Name         string
	PushName     string
	BusinessName string
}

// DisplayName picks the best available label for the contact.
func (c Contact) DisplayName() string {
	switch {
	case c.Name != "":
		return c.Name
	case c.BusinessName != "":
		return c.BusinessName
	case c.PushName != "":
		return c.PushName
	default:
		return c.JID
	}
}

// Contacts returns the contact list of a session's paired device, sorted
// by display name. Requires a live handle; the contact data lives in the
// per-session credential store.
func (m *Manager) Contacts(ctx context.Context, sessionID string) ([]Contact, error) {
	h, ok := m.registry.Get(sessionID)
	if !ok || h.Device == nil {
		return nil, fmt.Errorf("no open connection for session %s", sessionID)
	}

	all, err := h.Device.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load contacts: %w", err)
	}

	contacts := make([]Contact, 0, len(all))
	for jid, info := range all {
		contacts = append(contacts, Contact{
			JID:          jid.String(),
			Name:         info.FullName,
			PushName:     info.PushName,
			BusinessName: info.BusinessName,
		})
	}
	sort.Slice(contacts, func(i, j int) bool {
		return strings.ToLower(contacts[i].DisplayName()) < strings.ToLower(contacts[j].DisplayName())
	})
	return contacts, nil
}

// FilterContacts returns the contacts whose name, push name or number
// contains the query, case-insensitively.
func FilterContacts(contacts []Contact, query string) []Contact {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return contacts
	}
	var matched []Contact
	for _, c := range contacts {
		if strings.Contains(strings.ToLower(c.Name), q) ||
			strings.Contains(strings.ToLower(c.PushName), q) ||
			strings.Contains(strings.ToLower(c.BusinessName), q) ||
			strings.Contains(strings.ToLower(c.JID), q) {
			matched = append(matched, c)
		}
	}
	return matched
}
