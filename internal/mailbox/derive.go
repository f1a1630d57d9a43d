package mailbox

import (
	"strings"
	"unicode/utf8"

	"webmail/internal/model"
)

const (
	MaxSubjectLen = 200

	replyPrefix   = "Re: "
	forwardPrefix = "Fwd: "
)

func prefixSubject(prefix, subject string) string {
	if strings.HasPrefix(subject, prefix) {
		return truncateRunes(subject, MaxSubjectLen)
	}
	return truncateRunes(prefix+subject, MaxSubjectLen)
}

// ReplySubject prefixes "Re: " unless the subject already starts with it exactly.
func ReplySubject(subject string) string {
	return prefixSubject(replyPrefix, subject)
}

// ForwardSubject prefixes "Fwd: " unless the subject already starts with it exactly.
func ForwardSubject(subject string) string {
	return prefixSubject(forwardPrefix, subject)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// DeriveReply builds the reply from userID: to the original sender, cc minus the replier.
func DeriveReply(orig *model.Message, userID int64, body string) *model.Message {
	cc := make([]int64, 0, len(orig.Cc))
	for _, id := range orig.Cc {
		if id != userID {
			cc = append(cc, id)
		}
	}
	replyTo := orig.ID
	return &model.Message{
		From:    userID,
		To:      []int64{orig.From},
		Cc:      cc,
		Bcc:     []int64{},
		Subject: ReplySubject(orig.Subject),
		Body:    strings.TrimSpace(body),
		Labels:  []string{model.LabelSent},
		ReplyTo: &replyTo,
	}
}

// Recipients are resolved user ids for a new message.
type Recipients struct {
	To  []int64
	Cc  []int64
	Bcc []int64
}

// DeriveForward builds a forward of orig. A blank body falls back to quote.
func DeriveForward(orig *model.Message, userID int64, r Recipients, body, quote string) *model.Message {
	text := strings.TrimSpace(body)
	if text == "" {
		text = quote
	}
	forwardedFrom := orig.ID
	return &model.Message{
		From:          userID,
		To:            nonNil(r.To),
		Cc:            nonNil(r.Cc),
		Bcc:           nonNil(r.Bcc),
		Subject:       ForwardSubject(orig.Subject),
		Body:          text,
		Labels:        []string{model.LabelSent},
		ForwardedFrom: &forwardedFrom,
	}
}

// ForwardQuote renders the quoted original for a forward without a body.
func ForwardQuote(from model.Participant, to []model.Participant, subject, body string) string {
	names := make([]string, len(to))
	for i, p := range to {
		names[i] = p.Display()
	}

	var b strings.Builder
	b.WriteString("--- Forwarded message ---\n")
	b.WriteString("From: " + from.Display() + "\n")
	b.WriteString("To: " + strings.Join(names, ", ") + "\n")
	b.WriteString("Subject: " + subject + "\n\n")
	b.WriteString(body)
	return b.String()
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
