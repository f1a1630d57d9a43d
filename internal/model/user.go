package model

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type Address struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zipCode,omitempty"`
	Country string `json:"country,omitempty"`
}

// User is an account record. PasswordHash never leaves the server.
type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	IsActive     bool       `json:"isActive"`
	Phone        *string    `json:"phone,omitempty"`
	DateOfBirth  *time.Time `json:"dateOfBirth,omitempty"`
	Address      Address    `json:"address"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Participant is the only user shape embedded in message responses.
type Participant struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// Account is the slice of a user that request authorization depends on.
type Account struct {
	ID       int64  `json:"id"`
	Role     string `json:"role"`
	IsActive bool   `json:"isActive"`
}

func (u *User) Account() Account {
	return Account{ID: u.ID, Role: u.Role, IsActive: u.IsActive}
}

func (u *User) Summary() Participant {
	return Participant{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Email: u.Email}
}

// Display renders "First Last <email>".
func (p Participant) Display() string {
	name := p.FirstName
	if p.LastName != "" {
		if name != "" {
			name += " "
		}
		name += p.LastName
	}
	if name == "" {
		return "<" + p.Email + ">"
	}
	return name + " <" + p.Email + ">"
}
