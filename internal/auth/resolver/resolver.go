package resolver

import (
	"context"

	"identity-link/internal/auth"
)

// Resolver determines which local record a verified token subject belongs to.
// It is the only place where subject-to-record lookup lives.
type Resolver interface {
	Resolve(ctx context.Context, subject string) (auth.Entity, error)
}
