// Package mailbox holds the mailbox rules: which messages a user sees under
// each label, who may touch a message, and how replies and forwards are built.
// Everything here is pure; the repository compiles Filter into SQL and
// Filter.Match evaluates the same predicate in memory.
package mailbox

import (
	"slices"
	"strings"

	"webmail/internal/model"
)

// Label is a derived mailbox view.
type Label string

const (
	LabelInbox     Label = "inbox"
	LabelSent      Label = "sent"
	LabelDrafts    Label = "drafts"
	LabelImportant Label = "important"
	LabelTrash     Label = "trash"
)

// ParseLabel normalizes a requested label; unknown or empty values mean inbox.
func ParseLabel(s string) Label {
	switch l := Label(strings.ToLower(strings.TrimSpace(s))); l {
	case LabelInbox, LabelSent, LabelDrafts, LabelImportant, LabelTrash:
		return l
	}
	return LabelInbox
}

// Membership says which participant field must contain the user.
type Membership int

const (
	MemberTo Membership = iota + 1
	MemberFrom
	MemberAny // from, to, cc or bcc
)

// Filter is a conjunction of conditions over a message. Nil pointers are unconstrained.
type Filter struct {
	UserID     int64
	Membership Membership
	Deleted    bool
	Draft      *bool
	Important  *bool
	Read       *bool
	// Search is a literal, case-insensitive substring of subject or body.
	Search string
}

type SortField string

const SortCreatedAt SortField = "created_at"

type Sort struct {
	Field SortField
	Desc  bool
}

type Query struct {
	Label  Label
	Filter Filter
	Sort   Sort
}

func boolPtr(b bool) *bool { return &b }

func Inbox(userID int64) Filter {
	return Filter{UserID: userID, Membership: MemberTo, Draft: boolPtr(false)}
}

func Sent(userID int64) Filter {
	return Filter{UserID: userID, Membership: MemberFrom, Draft: boolPtr(false)}
}

func Drafts(userID int64) Filter {
	return Filter{UserID: userID, Membership: MemberFrom, Draft: boolPtr(true)}
}

func Important(userID int64) Filter {
	return Filter{UserID: userID, Membership: MemberTo, Draft: boolPtr(false), Important: boolPtr(true)}
}

func Trash(userID int64) Filter {
	return Filter{UserID: userID, Membership: MemberAny, Deleted: true}
}

// Unread narrows an inbox-style filter to unread messages.
func (f Filter) Unread() Filter {
	f.Read = boolPtr(false)
	return f
}

// FilterFor returns the membership filter for a label.
func FilterFor(label Label, userID int64) Filter {
	switch label {
	case LabelSent:
		return Sent(userID)
	case LabelDrafts:
		return Drafts(userID)
	case LabelImportant:
		return Important(userID)
	case LabelTrash:
		return Trash(userID)
	default:
		return Inbox(userID)
	}
}

// BuildQuery translates a requested view and optional search into a filter
// and sort. Search is ANDed with the label filter, never a replacement.
func BuildQuery(label string, userID int64, search string) Query {
	l := ParseLabel(label)
	f := FilterFor(l, userID)
	f.Search = strings.TrimSpace(search)
	return Query{
		Label:  l,
		Filter: f,
		Sort:   Sort{Field: SortCreatedAt, Desc: true},
	}
}

// Match evaluates the filter against a message.
func (f Filter) Match(m *model.Message) bool {
	if m == nil {
		return false
	}
	switch f.Membership {
	case MemberTo:
		if !slices.Contains(m.To, f.UserID) {
			return false
		}
	case MemberFrom:
		if m.From != f.UserID {
			return false
		}
	case MemberAny:
		if !IsParticipant(m, f.UserID) {
			return false
		}
	default:
		return false
	}

	if m.IsDeleted != f.Deleted {
		return false
	}
	if f.Draft != nil && m.IsDraft != *f.Draft {
		return false
	}
	if f.Important != nil && m.IsImportant != *f.Important {
		return false
	}
	if f.Read != nil && m.IsRead != *f.Read {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(m.Subject), needle) &&
			!strings.Contains(strings.ToLower(m.Body), needle) {
			return false
		}
	}
	return true
}
