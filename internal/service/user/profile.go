package user

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"webmail/internal/apperr"
	"webmail/internal/mailbox"
	"webmail/internal/model"
)

var phonePattern = regexp.MustCompile(`^\+?[1-9]\d{0,15}$`)

// ProfileInput is a partial profile edit. Nil fields are left unchanged.
type ProfileInput struct {
	Email       *string
	FirstName   *string
	LastName    *string
	Phone       *string
	DateOfBirth *string
	Address     *model.Address
}

// ParseDate accepts YYYY-MM-DD or RFC 3339. Blank means unset.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, apperr.Invalid("dateOfBirth", "Date of birth must be a date (YYYY-MM-DD)")
}

// Apply merges in into u and validates the result.
func (in ProfileInput) Apply(u *model.User, now time.Time) error {
	v := &apperr.ValidationError{}

	if in.Email != nil {
		u.Email = strings.ToLower(strings.TrimSpace(*in.Email))
	}
	if in.FirstName != nil {
		u.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		u.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Phone != nil {
		phone := strings.TrimSpace(*in.Phone)
		if phone == "" {
			u.Phone = nil
		} else {
			u.Phone = &phone
		}
	}
	if in.DateOfBirth != nil {
		dob, err := ParseDate(*in.DateOfBirth)
		if err != nil {
			v.Add("dateOfBirth", "Date of birth must be a date (YYYY-MM-DD)")
		} else {
			u.DateOfBirth = dob
		}
	}
	if in.Address != nil {
		u.Address = trimAddress(*in.Address)
	}

	checkUser(v, u, now)
	return v.OrNil()
}

func checkUser(v *apperr.ValidationError, u *model.User, now time.Time) {
	if !mailbox.ValidAddress(u.Email) {
		v.Add("email", "Please enter a valid email")
	}
	if utf8.RuneCountInString(u.FirstName) < 2 {
		v.Add("firstName", "First name must be at least 2 characters")
	}
	if utf8.RuneCountInString(u.LastName) < 2 {
		v.Add("lastName", "Last name must be at least 2 characters")
	}
	if u.Phone != nil && !phonePattern.MatchString(*u.Phone) {
		v.Add("phone", "Please enter a valid phone number")
	}
	if u.DateOfBirth != nil && !u.DateOfBirth.Before(now) {
		v.Add("dateOfBirth", "Date of birth must be in the past")
	}
}

func trimAddress(a model.Address) model.Address {
	return model.Address{
		Street:  strings.TrimSpace(a.Street),
		City:    strings.TrimSpace(a.City),
		State:   strings.TrimSpace(a.State),
		ZipCode: strings.TrimSpace(a.ZipCode),
		Country: strings.TrimSpace(a.Country),
	}
}
