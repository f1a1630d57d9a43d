package model

import "time"

// Stored labels. Mailbox membership is derived from flags, labels are informational.
const (
	LabelInbox     = "inbox"
	LabelSent      = "sent"
	LabelDraft     = "draft"
	LabelTrash     = "trash"
	LabelImportant = "important"
	LabelSpam      = "spam"
)

type Attachment struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
	Mimetype     string `json:"mimetype"`
	Size         int64  `json:"size"`
	StoragePath  string `json:"path"`
}

type Message struct {
	ID            int64
	From          int64
	To            []int64
	Cc            []int64
	Bcc           []int64
	Subject       string
	Body          string
	Attachments   []Attachment
	IsRead        bool
	IsImportant   bool
	IsDraft       bool
	IsDeleted     bool
	Labels        []string
	ReplyTo       *int64
	ForwardedFrom *int64
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MessageView is the response shape with participants resolved.
type MessageView struct {
	ID            int64         `json:"id"`
	From          Participant   `json:"from"`
	To            []Participant `json:"to"`
	Cc            []Participant `json:"cc"`
	Bcc           []Participant `json:"bcc"`
	Subject       string        `json:"subject"`
	Body          string        `json:"body"`
	Attachments   []Attachment  `json:"attachments"`
	IsRead        bool          `json:"isRead"`
	IsImportant   bool          `json:"isImportant"`
	IsDraft       bool          `json:"isDraft"`
	IsDeleted     bool          `json:"isDeleted"`
	Labels        []string      `json:"labels"`
	ReplyTo       *int64        `json:"replyTo,omitempty"`
	ForwardedFrom *int64        `json:"forwardedFrom,omitempty"`
	Version       int64         `json:"version"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// FlagPatch holds the mutable view-state flags. Nil fields are left unchanged.
type FlagPatch struct {
	IsRead      *bool
	IsImportant *bool
}

func (p FlagPatch) Empty() bool {
	return p.IsRead == nil && p.IsImportant == nil
}

// MessageStats are dashboard counters for one user.
type MessageStats struct {
	Inbox     int `json:"inbox"`
	Unread    int `json:"unread"`
	Sent      int `json:"sent"`
	Drafts    int `json:"drafts"`
	Important int `json:"important"`
	Trash     int `json:"trash"`
}
