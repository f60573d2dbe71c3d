// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// User represents a Piazza account. Password is empty for accounts created
// through Google sign-in.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id" bson:"_id"`
	Name      string    `gorm:"not null" json:"name" bson:"name"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email" bson:"email"`
	Password  string    `json:"-" bson:"password,omitempty"`
	GoogleID  *string   `gorm:"uniqueIndex" json:"googleId,omitempty" bson:"googleId,omitempty"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// UserSummary is the public projection of a user embedded in responses.
type UserSummary struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Summary returns the public projection of u.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
}

func summaryOf(u *User) *UserSummary {
	if u == nil {
		return nil
	}
	s := u.Summary()
	return &s
}

// HasPassword reports whether the account can log in with a password.
func (u *User) HasPassword() bool {
	return u.Password != ""
}
