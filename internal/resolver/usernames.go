package resolver

import (
	"context"

	"github.com/memohai/chatgate/internal/apperr"
)

// Usernames maps backend user IDs to usernames. It is built from one listing fetch and is
// meant to be dropped once the caller has formatted its batch of posts.
type Usernames map[string]string

// Lookup returns the username of userID, or userID itself when it is unknown.
func (u Usernames) Lookup(userID string) string {
	if name, ok := u[userID]; ok && name != "" {
		return name
	}
	return userID
}

// Usernames fetches the user listing once and indexes it by ID.
func (r *Resolver) Usernames(ctx context.Context) (Usernames, error) {
	users, err := r.src.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	index := make(Usernames, len(users))
	for _, u := range users {
		index[u.ID] = u.Username
	}
	return index, nil
}

// Username is the reverse of User: it returns the username of a user ID or username.
func (r *Resolver) Username(ctx context.Context, identifier string) (string, error) {
	users, err := r.src.ListUsers(ctx)
	if err != nil {
		return "", err
	}
	for _, u := range users {
		if u.ID == identifier || u.Username == identifier {
			return u.Username, nil
		}
	}
	return "", apperr.NotFound(string(KindUser), identifier)
}
