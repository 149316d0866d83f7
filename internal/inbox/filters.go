package inbox

import (
	"strings"

	"github.com/wacrm/wacrm/internal/store"
)

// Group bucket names.
const (
	GroupTeam    = "Team"
	GroupClients = "Clients"
	GroupLeads   = "Leads"
)

// Filters are the five independent conversation list criteria. The zero
// value (and ContactType "all") matches everything.
type Filters struct {
	ContactType string // "", "all", or a store contact type
	Search      string // case-insensitive substring on contact name
	DateFrom    int64  // unix millis; 0 means open-ended
	DateTo      int64
	Assignee    string
	Tag         string // exact tag match
}

// IsZero reports whether no criteria are set.
func (f Filters) IsZero() bool {
	return (f.ContactType == "" || f.ContactType == "all") &&
		f.Search == "" && f.DateFrom == 0 && f.DateTo == 0 &&
		f.Assignee == "" && f.Tag == ""
}

// Matches reports whether a conversation passes every set criterion.
func (f Filters) Matches(c *store.Conversation) bool {
	if f.ContactType != "" && f.ContactType != "all" && c.ContactType != f.ContactType {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(c.ContactName), strings.ToLower(f.Search)) {
		return false
	}
	if f.DateFrom != 0 && c.LastMessageAt < f.DateFrom {
		return false
	}
	if f.DateTo != 0 && c.LastMessageAt > f.DateTo {
		return false
	}
	if f.Assignee != "" && c.AssignedTo != f.Assignee {
		return false
	}
	if f.Tag != "" && !containsTag(c.Tags, f.Tag) {
		return false
	}
	return true
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Apply returns the conversations passing every set criterion, preserving
// input order. An all-empty filter set returns the input unchanged.
func Apply(list []store.Conversation, f Filters) []store.Conversation {
	if f.IsZero() {
		return list
	}
	var out []store.Conversation
	for i := range list {
		if f.Matches(&list[i]) {
			out = append(out, list[i])
		}
	}
	return out
}

// Group buckets conversations by contact type into Team, Clients and Leads.
// Buckets with no conversations are absent from the map.
func Group(list []store.Conversation) map[string][]store.Conversation {
	groups := make(map[string][]store.Conversation)
	for i := range list {
		var key string
		switch list[i].ContactType {
		case store.ContactTeam:
			key = GroupTeam
		case store.ContactClient:
			key = GroupClients
		default:
			key = GroupLeads
		}
		groups[key] = append(groups[key], list[i])
	}
	return groups
}
