package auth

import (
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/google/uuid"
)

// Actor is the caller on whose behalf a service operation runs.
// The zero value is an anonymous guest.
type Actor struct {
	UserID uuid.UUID
	Email  string
	Role   enums.Role
}

// Guest returns an unauthenticated actor.
func Guest() Actor {
	return Actor{}
}

// IsAuthenticated reports whether a user id was resolved from a token.
func (a Actor) IsAuthenticated() bool {
	return a.UserID != uuid.Nil
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.IsAuthenticated() && a.Role == enums.RoleAdmin
}

// UserRef returns the user id as a pointer, nil for guests.
func (a Actor) UserRef() *uuid.UUID {
	if !a.IsAuthenticated() {
		return nil
	}
	id := a.UserID
	return &id
}
