package mailbox

import (
	"slices"

	"webmail/internal/model"
)

// IsParticipant reports whether userID is the sender or in to, cc or bcc.
func IsParticipant(m *model.Message, userID int64) bool {
	return m.From == userID ||
		slices.Contains(m.To, userID) ||
		slices.Contains(m.Cc, userID) ||
		slices.Contains(m.Bcc, userID)
}

func CanRead(m *model.Message, userID int64) bool {
	return IsParticipant(m, userID)
}

// CanWrite uses the read predicate: any participant may toggle flags or trash a message.
func CanWrite(m *model.Message, userID int64) bool {
	return IsParticipant(m, userID)
}

// ShouldMarkRead is true when a fetch by userID must flip the message to read.
func ShouldMarkRead(m *model.Message, userID int64) bool {
	return !m.IsRead && slices.Contains(m.To, userID)
}

// CanReply allows to and cc recipients. Senders compose new mail instead.
func CanReply(m *model.Message, userID int64) bool {
	return slices.Contains(m.To, userID) || slices.Contains(m.Cc, userID)
}

func CanForward(m *model.Message, userID int64) bool {
	return IsParticipant(m, userID)
}

// CanSeeBcc hides the bcc list from everyone but the sender.
func CanSeeBcc(m *model.Message, userID int64) bool {
	return m.From == userID
}
