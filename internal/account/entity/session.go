package entity

import "time"

// Session identifies the authenticated account for one caller. It is passed
// explicitly to every operation that needs authorization.
type Session struct {
	Email    string    `json:"email"`
	ID       string    `json:"id"`
	IssuedAt time.Time `json:"issuedAt"`
	// Token is the signed bearer form of the session; never persisted.
	Token string `json:"-"`
}
