package mailbox

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"webmail/internal/apperr"
)

// NormalizeEmails lower-cases and trims addresses, dropping blanks and duplicates.
func NormalizeEmails(emails []string) []string {
	out := make([]string, 0, len(emails))
	seen := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// ValidAddress reports whether s is a bare address (no display name).
func ValidAddress(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// CheckAddresses adds an error for each malformed address in field.
func CheckAddresses(v *apperr.ValidationError, field string, emails []string) {
	for _, e := range emails {
		if !ValidAddress(e) {
			v.Add(field, "Invalid email address: "+e)
		}
	}
}

// CheckSubject trims the subject and validates presence and length.
func CheckSubject(v *apperr.ValidationError, subject string) string {
	subject = strings.TrimSpace(subject)
	switch {
	case subject == "":
		v.Add("subject", "Subject is required")
	case utf8.RuneCountInString(subject) > MaxSubjectLen:
		v.Add("subject", "Subject cannot exceed 200 characters")
	}
	return subject
}

// CheckBody trims the body and validates presence.
func CheckBody(v *apperr.ValidationError, field, body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		v.Add(field, "Body is required")
	}
	return body
}
