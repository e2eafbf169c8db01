package provider

import (
	"context"

	"identity-link/internal/auth"
)

// Delivery mediums for the invitation sent on user creation.
const (
	DeliveryEmail = "EMAIL"
	DeliverySMS   = "SMS"
)

// CreateUserInput carries everything the directory needs to create an identity.
type CreateUserInput struct {
	Username          string
	TemporaryPassword string
	Attributes        []auth.Attribute
	DeliveryMediums   []string
}

// UserPage is one page of a directory listing.
type UserPage struct {
	Users           []auth.RemoteUser
	PaginationToken string // empty on the last page
}

// IdentityProvider defines the administrative verbs issued against the
// directory service. Implementations are bound to a single pool and return
// provider errors unmodified, except that a missing identity is reported as
// auth.ErrNotFound.
type IdentityProvider interface {
	// GetUser fetches one identity by username.
	GetUser(ctx context.Context, username string) (*auth.RemoteUser, error)

	// CreateUser creates an identity and returns it as stored by the directory.
	CreateUser(ctx context.Context, in CreateUserInput) (*auth.RemoteUser, error)

	// UpdateUserAttributes replaces the given attributes of an identity.
	UpdateUserAttributes(ctx context.Context, username string, attrs []auth.Attribute) error

	// DeleteUser removes an identity.
	DeleteUser(ctx context.Context, username string) error

	// ListUsers returns one page of identities, starting at paginationToken.
	ListUsers(ctx context.Context, paginationToken string) (*UserPage, error)
}
