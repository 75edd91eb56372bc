// Package identity defines the authenticated caller attached to requests and websocket sessions.
package identity

import "strings"

// Identity is an account resolved from the account store. It is immutable within a request.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Anonymous is the identity of a caller without a valid token.
var Anonymous = Identity{}

// IsAnonymous reports whether the identity carries no resolved account.
func (i Identity) IsAnonymous() bool {
	return strings.TrimSpace(i.ID) == "" && strings.TrimSpace(i.Username) == ""
}

// SameUser compares usernames case-insensitively, the way accounts are looked up.
func SameUser(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
