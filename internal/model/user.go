// Package model defines the data structures used throughout the application.
package model

import "time"

// User is a forum member. The ID is the identity provider's stable subject
// (Google's "sub" claim), so the same person always maps to the same row no
// matter how often they sign in.
//
// Name and Image are refreshed on every sign-in and every content submission.
// Email is private: it is only ever serialised for the profile owner
// (GET /api/me). Public views use Author instead.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Author is the public projection of a User attached to questions and
// comments. It deliberately has no email field.
type Author struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

// Author returns the public projection of u.
func (u *User) Author() Author {
	return Author{ID: u.ID, Name: u.Name, Image: u.Image}
}

// Identity is what the identity resolver knows about the caller of a request.
// A nil *Identity means the request is anonymous.
type Identity struct {
	ID    string
	Name  string
	Email string
	Image string
}

// User converts the identity into the User row that gets upserted.
func (i *Identity) User() *User {
	return &User{
		ID:    i.ID,
		Name:  i.Name,
		Email: i.Email,
		Image: i.Image,
	}
}
