package entity

import "time"

// DefaultAvatar is assigned to every new profile until the user uploads one.
const DefaultAvatar = `data:image/svg+xml;utf8,<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24" fill="%2394a3b8"><circle cx="12" cy="8" r="4"/><path d="M4 20c0-4 4-6 8-6s8 2 8 6z"/></svg>`

// Profile is the public view of an account. Email is the primary key and
// never changes after creation.
type Profile struct {
	Email          string `json:"email"`
	Name           string `json:"name"`
	Title          string `json:"title"`
	Hospital       string `json:"hospital"`
	Qualifications string `json:"qualifications"`
	Avatar         string `json:"avatar"`
}

// Credential is the stored account record: the profile plus its secret.
// It must not leave the account package; use Public to hand out a Profile.
type Credential struct {
	Profile
	PasswordHash string    `json:"passwordHash"`
	PasswordAlgo string    `json:"passwordAlgo"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Public strips the secret.
func (c *Credential) Public() Profile { return c.Profile }
